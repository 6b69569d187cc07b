package memory

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/ariefcatur/go-presale-orders/internal/presale"
	"github.com/shopspring/decimal"
)

type Orders struct{ store *Store }

func NewOrders(store *Store) *Orders { return &Orders{store: store} }

var (
	_ orders.Repository = (*Orders)(nil)
	_ presale.Purchases = (*Orders)(nil)
)

func (r *Orders) Create(ctx context.Context, o *orders.Order) error {
	return r.store.write(ctx, orderRow(o.ID), func(t *txn) error {
		if _, ok := t.order(o.ID); ok {
			return fmt.Errorf("%w: %s", orders.ErrAlreadyExists, o.ID)
		}
		t.putOrder(o)
		return nil
	})
}

func (r *Orders) Get(ctx context.Context, id string) (*orders.Order, error) {
	o, ok := r.store.view(ctx).order(id)
	if !ok {
		return nil, orders.ErrNotFound
	}
	return o, nil
}

// GetForUpdate locks the order's row until the surrounding transaction ends.
// Outside a transaction it is Get.
func (r *Orders) GetForUpdate(ctx context.Context, id string) (*orders.Order, error) {
	t := txnFrom(ctx)
	if t == nil {
		return r.Get(ctx, id)
	}
	if err := t.lock(ctx, orderRow(id)); err != nil {
		return nil, err
	}
	o, ok := t.order(id)
	if !ok {
		return nil, orders.ErrNotFound
	}
	return o, nil
}

func (r *Orders) Update(ctx context.Context, o *orders.Order, from orders.Status) error {
	return r.store.write(ctx, orderRow(o.ID), func(t *txn) error {
		cur, ok := t.order(o.ID)
		if !ok {
			return orders.ErrNotFound
		}
		if cur.Status != from {
			return fmt.Errorf("%w: order %s is %s, expected %s", orders.ErrStatusChanged, o.ID, cur.Status, from)
		}
		t.putOrder(o)
		return nil
	})
}

func (r *Orders) Stats(ctx context.Context, f orders.StatsFilter) (*orders.Stats, error) {
	st := &orders.Stats{ByStatus: make(map[orders.Status]int), Gross: decimal.Zero}
	for _, o := range r.store.view(ctx).allOrders() {
		if !matches(o, f) {
			continue
		}
		st.Orders++
		st.ByStatus[o.Status]++
		if o.Status.Live() {
			st.Quantity += o.Quantity
		}
		if o.PaidAt != nil && o.Status != orders.StatusRefunded {
			st.Gross = st.Gross.Add(o.Amounts.Total)
		}
	}
	return st, nil
}

func matches(o orders.Order, f orders.StatsFilter) bool {
	switch {
	case f.OfferID != "" && o.OfferID != f.OfferID:
		return false
	case f.BuyerID != "" && o.BuyerID != f.BuyerID:
		return false
	case f.SellerID != "" && o.SellerID != f.SellerID:
		return false
	}
	return true
}

func (r *Orders) SumBuyerQuantity(ctx context.Context, offerID, buyerID string) (int, error) {
	total := 0
	for _, o := range r.store.view(ctx).allOrders() {
		if o.OfferID == offerID && o.BuyerID == buyerID && o.Status.Live() {
			total += o.Quantity
		}
	}
	return total, nil
}

func (r *Orders) CountByStatus(ctx context.Context, offerID string) (map[string]int, error) {
	out := make(map[string]int)
	for _, o := range r.store.view(ctx).allOrders() {
		if o.OfferID == offerID {
			out[string(o.Status)]++
		}
	}
	return out, nil
}

type Refunds struct{ store *Store }

func NewRefunds(store *Store) *Refunds { return &Refunds{store: store} }

var _ orders.RefundRepository = (*Refunds)(nil)

func (r *Refunds) Create(ctx context.Context, ref *orders.Refund) error {
	return r.store.write(ctx, refundRow(ref.ID), func(t *txn) error {
		if _, ok := t.refund(ref.ID); ok {
			return fmt.Errorf("%w: refund %s", ErrDuplicate, ref.ID)
		}
		for _, other := range t.allRefunds() {
			if other.OrderID == ref.OrderID && other.Status == orders.RefundPending {
				return orders.ErrRefundPending
			}
		}
		t.putRefund(*ref)
		return nil
	})
}

func (r *Refunds) Get(ctx context.Context, id string) (*orders.Refund, error) {
	ref, ok := r.store.view(ctx).refund(id)
	if !ok {
		return nil, orders.ErrRefundNotFound
	}
	return &ref, nil
}

func (r *Refunds) GetForUpdate(ctx context.Context, id string) (*orders.Refund, error) {
	t := txnFrom(ctx)
	if t == nil {
		return r.Get(ctx, id)
	}
	if err := t.lock(ctx, refundRow(id)); err != nil {
		return nil, err
	}
	ref, ok := t.refund(id)
	if !ok {
		return nil, orders.ErrRefundNotFound
	}
	return &ref, nil
}

func (r *Refunds) Update(ctx context.Context, ref *orders.Refund, from orders.RefundStatus) error {
	return r.store.write(ctx, refundRow(ref.ID), func(t *txn) error {
		cur, ok := t.refund(ref.ID)
		if !ok {
			return orders.ErrRefundNotFound
		}
		if cur.Status != from {
			return orders.ErrRefundResolved
		}
		t.putRefund(*ref)
		return nil
	})
}

func (r *Refunds) PendingForOrder(ctx context.Context, orderID string) (*orders.Refund, error) {
	for _, ref := range r.store.view(ctx).allRefunds() {
		if ref.OrderID == orderID && ref.Status == orders.RefundPending {
			return &ref, nil
		}
	}
	return nil, orders.ErrRefundNotFound
}
