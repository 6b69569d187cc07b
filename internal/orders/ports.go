package orders

//go:generate mockgen -destination=mocks/external.go -package=mock_orders . Minter,Publisher,Settlement

import (
	"context"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/presale"
	"github.com/ariefcatur/go-presale-orders/internal/scheduler"
	"github.com/shopspring/decimal"
)

type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	// GetForUpdate reads the order and, inside a transaction, locks its row.
	GetForUpdate(ctx context.Context, id string) (*Order, error)
	// Update writes o only while the stored status still equals from; it returns
	// ErrStatusChanged otherwise.
	Update(ctx context.Context, o *Order, from Status) error
	Stats(ctx context.Context, f StatsFilter) (*Stats, error)

	presale.Purchases
}

type RefundRepository interface {
	Create(ctx context.Context, r *Refund) error
	Get(ctx context.Context, id string) (*Refund, error)
	GetForUpdate(ctx context.Context, id string) (*Refund, error)
	Update(ctx context.Context, r *Refund, from RefundStatus) error
	// PendingForOrder returns ErrRefundNotFound when the order has no open request.
	PendingForOrder(ctx context.Context, orderID string) (*Refund, error)
}

// Transactor runs fn in one serializable transaction carried by ctx. Nested calls
// join the outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Inventory is the slice of the presale ledger the coordinator drives.
type Inventory interface {
	CheckEligibility(ctx context.Context, offerID, buyerID string, qty int) (*presale.Offer, error)
	Reduce(ctx context.Context, offerID string, qty int) (*presale.Offer, error)
	Commit(ctx context.Context, offerID string, qty int) (*presale.Offer, error)
	Release(ctx context.Context, offerID string, qty int) (*presale.Offer, error)
	ReleaseReservation(ctx context.Context, offerID string, qty int) (*presale.Offer, error)
}

// Settlement moves money. Every call is keyed by the order id so retries are idempotent.
type Settlement interface {
	Escrow(ctx context.Context, orderID string, amount decimal.Decimal) error
	MarkShipped(ctx context.Context, orderID, tracking string) error
	ReleaseFunds(ctx context.Context, orderID string) error
	Refund(ctx context.Context, orderID string, rateBps int) error
}

// Minter issues the ownership token for a delivered order; repeated calls for the
// same order return the same token.
type Minter interface {
	Mint(ctx context.Context, orderID, buyerID string) (string, error)
}

type Timers interface {
	Schedule(ctx context.Context, kind scheduler.Kind, orderID string, fireAt time.Time) error
	Cancel(ctx context.Context, kind scheduler.Kind, orderID string) error
}

// Publisher emits lifecycle events after commit. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}
