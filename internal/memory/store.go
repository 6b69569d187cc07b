// Package memory holds process-local repositories for a monolithic deployment and
// for tests. A transaction locks every record it writes or reads for update until
// it ends and stages its writes; commit applies them in one step, rollback drops
// them. Readers only ever see committed records.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/ariefcatur/go-presale-orders/internal/presale"
)

type Store struct {
	mu      sync.RWMutex
	offers  map[string]presale.Offer
	orders  map[string]orders.Order
	refunds map[string]orders.Refund

	rowsMu sync.Mutex
	rows   map[string]chan struct{}
}

func NewStore() *Store {
	return &Store{
		offers:  make(map[string]presale.Offer),
		orders:  make(map[string]orders.Order),
		refunds: make(map[string]orders.Refund),
		rows:    make(map[string]chan struct{}),
	}
}

func offerRow(id string) string  { return "offer:" + id }
func orderRow(id string) string  { return "order:" + id }
func refundRow(id string) string { return "refund:" + id }

// row returns the one-slot semaphore guarding key.
func (s *Store) row(key string) chan struct{} {
	s.rowsMu.Lock()
	defer s.rowsMu.Unlock()
	ch, ok := s.rows[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rows[key] = ch
	}
	return ch
}

type txKey struct{}

// txn is one unit of work: the rows it holds and the writes it has staged.
type txn struct {
	store   *Store
	held    map[string]chan struct{}
	offers  map[string]presale.Offer
	orders  map[string]orders.Order
	refunds map[string]orders.Refund
}

func (s *Store) begin() *txn {
	return &txn{
		store:   s,
		held:    make(map[string]chan struct{}),
		offers:  make(map[string]presale.Offer),
		orders:  make(map[string]orders.Order),
		refunds: make(map[string]orders.Refund),
	}
}

func txnFrom(ctx context.Context) *txn {
	t, _ := ctx.Value(txKey{}).(*txn)
	return t
}

// lock takes key for the rest of the transaction.
func (t *txn) lock(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	ch := t.store.row(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	t.held[key] = ch
	return nil
}

func (t *txn) release() {
	for k, ch := range t.held {
		<-ch
		delete(t.held, k)
	}
}

func (t *txn) commit() {
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range t.offers {
		s.offers[k] = v
	}
	for k, v := range t.orders {
		s.orders[k] = v
	}
	for k, v := range t.refunds {
		s.refunds[k] = v
	}
}

func (t *txn) offer(id string) (presale.Offer, bool) {
	if o, ok := t.offers[id]; ok {
		return o, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	o, ok := t.store.offers[id]
	return o, ok
}

func (t *txn) order(id string) (*orders.Order, bool) {
	if o, ok := t.orders[id]; ok {
		return o.Clone(), true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	o, ok := t.store.orders[id]
	if !ok {
		return nil, false
	}
	return o.Clone(), true
}

func (t *txn) refund(id string) (orders.Refund, bool) {
	if r, ok := t.refunds[id]; ok {
		return r, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	r, ok := t.store.refunds[id]
	return r, ok
}

func (t *txn) putOffer(o presale.Offer)  { t.offers[o.ID] = o }
func (t *txn) putOrder(o *orders.Order)  { t.orders[o.ID] = *o.Clone() }
func (t *txn) putRefund(r orders.Refund) { t.refunds[r.ID] = r }

// allOffers returns committed offers overlaid with the staged ones, oldest first.
func (t *txn) allOffers() []presale.Offer {
	t.store.mu.RLock()
	out := make([]presale.Offer, 0, len(t.store.offers)+len(t.offers))
	for id, o := range t.store.offers {
		if _, staged := t.offers[id]; !staged {
			out = append(out, o)
		}
	}
	t.store.mu.RUnlock()
	for _, o := range t.offers {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (t *txn) allOrders() []orders.Order {
	t.store.mu.RLock()
	out := make([]orders.Order, 0, len(t.store.orders)+len(t.orders))
	for id, o := range t.store.orders {
		if _, staged := t.orders[id]; !staged {
			out = append(out, o)
		}
	}
	t.store.mu.RUnlock()
	for _, o := range t.orders {
		out = append(out, o)
	}
	return out
}

func (t *txn) allRefunds() []orders.Refund {
	t.store.mu.RLock()
	out := make([]orders.Refund, 0, len(t.store.refunds)+len(t.refunds))
	for id, r := range t.store.refunds {
		if _, staged := t.refunds[id]; !staged {
			out = append(out, r)
		}
	}
	t.store.mu.RUnlock()
	for _, r := range t.refunds {
		out = append(out, r)
	}
	return out
}

// write runs fn with key locked. Outside a transaction the change commits at once.
func (s *Store) write(ctx context.Context, key string, fn func(t *txn) error) error {
	if t := txnFrom(ctx); t != nil {
		if err := t.lock(ctx, key); err != nil {
			return err
		}
		return fn(t)
	}
	t := s.begin()
	defer t.release()
	if err := t.lock(ctx, key); err != nil {
		return err
	}
	if err := fn(t); err != nil {
		return err
	}
	t.commit()
	return nil
}

// view returns the caller's transaction, or a read-only one over committed state.
func (s *Store) view(ctx context.Context) *txn {
	if t := txnFrom(ctx); t != nil {
		return t
	}
	return s.begin()
}

// Tx implements orders.Transactor over a Store.
type Tx struct{ store *Store }

func NewTx(store *Store) *Tx { return &Tx{store: store} }

var _ orders.Transactor = (*Tx)(nil)

func (tx *Tx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txnFrom(ctx) != nil {
		return fn(ctx)
	}
	t := tx.store.begin()
	defer t.release()
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	t.commit()
	return nil
}
