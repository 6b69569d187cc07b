package presale

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/ariefcatur/go-presale-orders/internal/metrics"
)

// Ledger owns the offer inventory quadruple. It is the only writer of the counters.
type Ledger struct {
	repo      Repository
	purchases Purchases
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewLedger(repo Repository, purchases Purchases, m *metrics.Metrics) *Ledger {
	return &Ledger{repo: repo, purchases: purchases, metrics: m, now: time.Now}
}

func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// CheckEligibility fails fast with a precise reason. Reduce re-validates stock, so
// the check and the write need not be one step.
func (l *Ledger) CheckEligibility(ctx context.Context, offerID, buyerID string, qty int) (*Offer, error) {
	if qty <= 0 {
		return nil, apperr.Validation("quantity must be positive, got %d", qty)
	}
	o, err := l.repo.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if err := checkOffer(o, qty, l.now()); err != nil {
		return o, err
	}
	if o.Inventory.LimitPerBuyer > 0 {
		bought, err := l.purchases.SumBuyerQuantity(ctx, offerID, buyerID)
		if err != nil {
			return o, fmt.Errorf("presale: buyer history: %w", err)
		}
		if bought+qty > o.Inventory.LimitPerBuyer {
			return o, ErrBuyerCapExceeded
		}
	}
	return o, nil
}

func checkOffer(o *Offer, qty int, now time.Time) error {
	switch {
	case o.Status == StatusSoldOut:
		return ErrInsufficientStock
	case o.Status != StatusActive:
		return ErrNotActive
	case !o.Window.Contains(now):
		return ErrOutsideWindow
	case qty < o.Inventory.MinPerOrder:
		return ErrBelowMinimum
	case o.Inventory.MaxPerOrder > 0 && qty > o.Inventory.MaxPerOrder:
		return ErrAboveMaximum
	case qty > o.Inventory.Available:
		return ErrInsufficientStock
	}
	return nil
}

// Reduce atomically takes qty units. Concurrent callers can never drive available
// below zero: the repository write is conditional on available >= qty.
func (l *Ledger) Reduce(ctx context.Context, offerID string, qty int) (*Offer, error) {
	if qty <= 0 {
		return nil, apperr.Validation("quantity must be positive, got %d", qty)
	}
	o, err := l.repo.Reduce(ctx, offerID, qty, l.now())
	switch {
	case err == nil:
		l.metrics.Reduce("committed")
	case errors.Is(err, ErrInsufficientStock):
		l.metrics.Reduce("insufficient_stock")
	default:
		l.metrics.Reduce("error")
	}
	return o, err
}

func (l *Ledger) Commit(ctx context.Context, offerID string, qty int) (*Offer, error) {
	return l.repo.Commit(ctx, offerID, qty, l.now())
}

// Release returns paid-for units, e.g. after an approved refund.
func (l *Ledger) Release(ctx context.Context, offerID string, qty int) (*Offer, error) {
	if qty <= 0 {
		return nil, apperr.Validation("quantity must be positive, got %d", qty)
	}
	return l.repo.Release(ctx, offerID, qty, false, l.now())
}

// ReleaseReservation returns units held by an order that was never paid.
func (l *Ledger) ReleaseReservation(ctx context.Context, offerID string, qty int) (*Offer, error) {
	if qty <= 0 {
		return nil, apperr.Validation("quantity must be positive, got %d", qty)
	}
	return l.repo.Release(ctx, offerID, qty, true, l.now())
}
