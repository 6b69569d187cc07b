package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/ariefcatur/go-presale-orders/internal/presale"
)

var ErrDuplicate = apperr.New(apperr.KindConflict, "DUPLICATE_ID", "memory: record already exists")

type Offers struct{ store *Store }

func NewOffers(store *Store) *Offers { return &Offers{store: store} }

var _ presale.Repository = (*Offers)(nil)

func (r *Offers) Create(ctx context.Context, o *presale.Offer) error {
	return r.store.write(ctx, offerRow(o.ID), func(t *txn) error {
		if _, ok := t.offer(o.ID); ok {
			return fmt.Errorf("%w: offer %s", ErrDuplicate, o.ID)
		}
		t.putOffer(*o)
		return nil
	})
}

func (r *Offers) Get(ctx context.Context, id string) (*presale.Offer, error) {
	o, ok := r.store.view(ctx).offer(id)
	if !ok {
		return nil, presale.ErrNotFound
	}
	return &o, nil
}

func (r *Offers) TransitionStatus(ctx context.Context, id string, from, to presale.Status, at time.Time) (*presale.Offer, error) {
	return r.mutate(ctx, id, func(o *presale.Offer) error {
		if o.Status != from {
			return presale.ErrStatusChanged
		}
		o.Status = to
		o.UpdatedAt = at
		return nil
	})
}

func (r *Offers) ListByStatus(ctx context.Context, statuses ...presale.Status) ([]*presale.Offer, error) {
	want := make(map[presale.Status]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	out := make([]*presale.Offer, 0)
	for _, o := range r.store.view(ctx).allOffers() {
		if len(want) > 0 && !want[o.Status] {
			continue
		}
		cp := o
		out = append(out, &cp)
	}
	return out, nil
}

func (r *Offers) Reduce(ctx context.Context, id string, qty int, at time.Time) (*presale.Offer, error) {
	return r.mutate(ctx, id, func(o *presale.Offer) error {
		inv := &o.Inventory
		switch {
		case o.Status == presale.StatusSoldOut, inv.Available < qty:
			return presale.ErrInsufficientStock
		case o.Status != presale.StatusActive:
			return presale.ErrNotActive
		}
		inv.Available -= qty
		inv.Sold += qty
		inv.Reserved += qty
		if inv.Available == 0 {
			o.Status = presale.StatusSoldOut
		}
		o.UpdatedAt = at
		return nil
	})
}

func (r *Offers) Commit(ctx context.Context, id string, qty int, at time.Time) (*presale.Offer, error) {
	return r.mutate(ctx, id, func(o *presale.Offer) error {
		o.Inventory.Reserved -= min(qty, o.Inventory.Reserved)
		o.UpdatedAt = at
		return nil
	})
}

func (r *Offers) Release(ctx context.Context, id string, qty int, fromReserved bool, at time.Time) (*presale.Offer, error) {
	return r.mutate(ctx, id, func(o *presale.Offer) error {
		inv := &o.Inventory
		n := min(qty, inv.Sold)
		inv.Available += n
		inv.Sold -= n
		if fromReserved {
			inv.Reserved -= min(qty, inv.Reserved)
		}
		inv.Reserved = min(inv.Reserved, inv.Sold)
		if o.Status == presale.StatusSoldOut && inv.Available > 0 && o.Window.Contains(at) {
			o.Status = presale.StatusActive
		}
		o.UpdatedAt = at
		return nil
	})
}

// mutate applies fn to the offer with its row locked. Nothing is written when fn
// fails.
func (r *Offers) mutate(ctx context.Context, id string, fn func(o *presale.Offer) error) (*presale.Offer, error) {
	var out presale.Offer
	err := r.store.write(ctx, offerRow(id), func(t *txn) error {
		o, ok := t.offer(id)
		if !ok {
			return presale.ErrNotFound
		}
		if err := fn(&o); err != nil {
			return err
		}
		t.putOffer(o)
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
