package presale_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/ariefcatur/go-presale-orders/internal/memory"
	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/ariefcatur/go-presale-orders/internal/presale"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

var now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	offers *memory.Offers
	orders *memory.Orders
	ledger *presale.Ledger
}

func newFixture(t *testing.T, inv presale.Inventory) *fixture {
	t.Helper()
	store := memory.NewStore()
	f := &fixture{offers: memory.NewOffers(store), orders: memory.NewOrders(store)}
	f.ledger = presale.NewLedger(f.offers, f.orders, nil).WithClock(func() time.Time { return now })

	inv.Available = inv.Total
	require.NoError(t, f.offers.Create(context.Background(), &presale.Offer{
		ID:        "offer-1",
		SellerID:  "seller-1",
		Title:     "Robusta lot 7",
		Status:    presale.StatusActive,
		Window:    presale.Window{Start: now.Add(-time.Hour), End: now.Add(time.Hour)},
		Pricing:   presale.Pricing{UnitPrice: decimal.RequireFromString("4.20"), Currency: "EUR"},
		Inventory: inv,
		CreatedAt: now,
	}))
	return f
}

func TestCheckEligibility_Reasons(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, presale.Inventory{Total: 10, MinPerOrder: 2, MaxPerOrder: 5, LimitPerBuyer: 6})
	require.NoError(t, f.orders.Create(ctx, &orders.Order{ID: "prior", OfferID: "offer-1", BuyerID: "b1", Quantity: 4, Status: orders.StatusPaid}))
	require.NoError(t, f.orders.Create(ctx, &orders.Order{ID: "gone", OfferID: "offer-1", BuyerID: "b1", Quantity: 5, Status: orders.StatusCancelled}))

	tests := []struct {
		name  string
		buyer string
		qty   int
		want  error
	}{
		{"ok", "b2", 3, nil},
		{"below minimum", "b2", 1, presale.ErrBelowMinimum},
		{"above maximum", "b2", 6, presale.ErrAboveMaximum},
		{"buyer cap counts live orders only", "b1", 2, nil},
		{"buyer cap exceeded", "b1", 3, presale.ErrBuyerCapExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ledger.CheckEligibility(ctx, "offer-1", tt.buyer, tt.qty)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := f.ledger.CheckEligibility(ctx, "offer-1", "b2", 0)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCheckEligibility_StatusAndWindow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, presale.Inventory{Total: 3, MinPerOrder: 1, MaxPerOrder: 3})

	_, err := f.ledger.CheckEligibility(ctx, "offer-1", "b", 4)
	assert.ErrorIs(t, err, presale.ErrAboveMaximum)

	_, err = f.offers.TransitionStatus(ctx, "offer-1", presale.StatusActive, presale.StatusPaused, now)
	require.NoError(t, err)
	_, err = f.ledger.CheckEligibility(ctx, "offer-1", "b", 1)
	assert.ErrorIs(t, err, presale.ErrNotActive)

	_, err = f.offers.TransitionStatus(ctx, "offer-1", presale.StatusPaused, presale.StatusActive, now)
	require.NoError(t, err)
	late := presale.NewLedger(f.offers, f.orders, nil).WithClock(func() time.Time { return now.Add(2 * time.Hour) })
	_, err = late.CheckEligibility(ctx, "offer-1", "b", 1)
	assert.ErrorIs(t, err, presale.ErrOutsideWindow)

	_, err = f.ledger.CheckEligibility(ctx, "missing", "b", 1)
	assert.ErrorIs(t, err, presale.ErrNotFound)
}

func TestReduce_NoOversellUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	const total, buyers = 25, 100
	f := newFixture(t, presale.Inventory{Total: total, MinPerOrder: 1, MaxPerOrder: 3})

	results := make([]int, buyers)
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		qty := i%3 + 1
		i := i
		g.Go(func() error {
			_, err := f.ledger.Reduce(ctx, "offer-1", qty)
			switch {
			case err == nil:
				results[i] = qty
			case errors.Is(err, presale.ErrInsufficientStock):
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	committed := 0
	for _, q := range results {
		committed += q
	}
	got, err := f.offers.Get(ctx, "offer-1")
	require.NoError(t, err)
	assert.LessOrEqual(t, committed, total)
	assert.Equal(t, committed, got.Inventory.Sold)
	assert.GreaterOrEqual(t, got.Inventory.Available, 0)
	assert.Equal(t, total, got.Inventory.Available+got.Inventory.Sold)
}

func TestReduce_TwoBuyersOneUnit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, presale.Inventory{Total: 1, MinPerOrder: 1, MaxPerOrder: 1})

	errs := make([]error, 2)
	var g errgroup.Group
	for i := range errs {
		i := i
		g.Go(func() error {
			_, errs[i] = f.ledger.Reduce(ctx, "offer-1", 1)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, presale.ErrInsufficientStock)
	}
	assert.Equal(t, 1, ok)

	got, _ := f.offers.Get(ctx, "offer-1")
	assert.Equal(t, 0, got.Inventory.Available)
	assert.Equal(t, 1, got.Inventory.Sold)
	assert.Equal(t, presale.StatusSoldOut, got.Status)
}

func TestReleaseInvertsReduce(t *testing.T) {
	ctx := context.Background()
	for n := 1; n <= 7; n++ {
		f := newFixture(t, presale.Inventory{Total: 7, MinPerOrder: 1, MaxPerOrder: 7})
		before, _ := f.offers.Get(ctx, "offer-1")

		_, err := f.ledger.Reduce(ctx, "offer-1", n)
		require.NoError(t, err)
		after, err := f.ledger.ReleaseReservation(ctx, "offer-1", n)
		require.NoError(t, err)

		assert.Equal(t, before.Inventory.Available, after.Inventory.Available, "n=%d", n)
		assert.Equal(t, before.Inventory.Sold, after.Inventory.Sold, "n=%d", n)
		assert.Equal(t, 0, after.Inventory.Reserved, "n=%d", n)
		assert.Equal(t, presale.StatusActive, after.Status, "n=%d", n)
	}
}

func TestCommitDropsReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, presale.Inventory{Total: 5, MinPerOrder: 1, MaxPerOrder: 5})

	got, err := f.ledger.Reduce(ctx, "offer-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Inventory.Reserved)

	got, err = f.ledger.Commit(ctx, "offer-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Inventory.Reserved)
	assert.Equal(t, 3, got.Inventory.Sold)

	got, err = f.ledger.Release(ctx, "offer-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Inventory.Available)
	assert.Equal(t, 0, got.Inventory.Sold)
}
