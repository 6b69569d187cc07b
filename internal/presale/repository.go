package presale

import (
	"context"
	"time"
)

// Repository stores offers. Counter methods are single conditional writes: they never
// read the quadruple and write it back in two steps.
type Repository interface {
	Create(ctx context.Context, o *Offer) error
	Get(ctx context.Context, id string) (*Offer, error)
	// TransitionStatus moves the offer from -> to only while it is still in from.
	// It returns ErrStatusChanged otherwise.
	TransitionStatus(ctx context.Context, id string, from, to Status, at time.Time) (*Offer, error)
	ListByStatus(ctx context.Context, statuses ...Status) ([]*Offer, error)

	// Reduce moves qty from available to sold (and reserved) when the offer is active
	// and available >= qty at write time, flipping to sold_out at zero.
	Reduce(ctx context.Context, id string, qty int, at time.Time) (*Offer, error)
	// Commit drops qty from reserved once the order behind it is paid.
	Commit(ctx context.Context, id string, qty int, at time.Time) (*Offer, error)
	// Release returns qty sold units to available. With fromReserved it also drops the
	// reservation. A sold_out offer still inside its window turns active again.
	Release(ctx context.Context, id string, qty int, fromReserved bool, at time.Time) (*Offer, error)
}

// Purchases exposes the order-side aggregates the ledger needs without importing orders.
type Purchases interface {
	// SumBuyerQuantity totals the buyer's quantity over orders that are neither
	// cancelled nor refunded.
	SumBuyerQuantity(ctx context.Context, offerID, buyerID string) (int, error)
	CountByStatus(ctx context.Context, offerID string) (map[string]int, error)
}
