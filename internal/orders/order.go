package orders

import (
	"fmt"
	"maps"
	"time"

	"github.com/shopspring/decimal"
)

type Amounts struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Total       decimal.Decimal
	Currency    string
}

type Shipping struct {
	Recipient string
	Phone     string
	Address   string
}

// Metadata keys written to the audit trail.
const (
	MetaCancelReason  = "cancel_reason"
	MetaCancelledBy   = "cancelled_by"
	MetaPaymentMethod = "payment_method"
	MetaPaymentProof  = "payment_proof"
	MetaTracking      = "tracking"
	MetaAutoConfirmed = "auto_confirmed"
	MetaRejectReason  = "reject_reason"
	MetaRefundID      = "refund_id"
	MetaNeedsReview   = "needs_review"
	MetaReviewReason  = "review_reason"
)

// Cancel reasons.
const (
	ReasonPaymentTimeout = "payment_timeout"
	ReasonDeadlinePassed = "payment_deadline_exceeded"
	ReasonBuyerCancelled = "buyer_cancelled"
)

type Order struct {
	ID       string
	BuyerID  string
	OfferID  string
	SellerID string
	Quantity int
	Amounts  Amounts
	Shipping Shipping

	Status          Status
	PaymentDeadline time.Time
	TokenRef        string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
	ConfirmedAt *time.Time
	ShippedAt   *time.Time
	DeliveredAt *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
	RefundedAt  *time.Time
	DisputedAt  *time.Time

	Metadata map[string]string
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	cp.Metadata = maps.Clone(o.Metadata)
	return &cp
}

// Transition is the only way an order changes status. It stamps the per-status
// timestamp and leaves the order untouched when the move is illegal.
func (o *Order) Transition(to Status, at time.Time) error {
	if o.Status == to {
		return fmt.Errorf("%w: order %s is already %s", ErrAlreadyInState, o.ID, to)
	}
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = at
	ts := at
	switch to {
	case StatusPaid:
		if o.PaidAt == nil {
			o.PaidAt = &ts
		}
	case StatusConfirmed:
		if o.ConfirmedAt == nil {
			o.ConfirmedAt = &ts
		}
	case StatusShipped:
		if o.ShippedAt == nil {
			o.ShippedAt = &ts
		}
	case StatusDelivered:
		o.DeliveredAt = &ts
	case StatusCompleted:
		o.CompletedAt = &ts
	case StatusCancelled:
		o.CancelledAt = &ts
	case StatusRefunded:
		o.RefundedAt = &ts
	case StatusDisputed:
		o.DisputedAt = &ts
	}
	return nil
}

func (o *Order) setMeta(k, v string) {
	if o.Metadata == nil {
		o.Metadata = make(map[string]string)
	}
	o.Metadata[k] = v
}

type RefundStatus string

const (
	RefundPending  RefundStatus = "pending"
	RefundApproved RefundStatus = "approved"
	RefundRejected RefundStatus = "rejected"
)

type Refund struct {
	ID      string
	OrderID string
	BuyerID string
	Amount  decimal.Decimal
	// RateBps is the refunded share of the order total in basis points, set on approval.
	RateBps int
	Reason  string
	Status  RefundStatus
	// PreviousStatus is the order status at the time the dispute was opened.
	PreviousStatus Status
	CreatedAt      time.Time
	ResolvedAt     *time.Time
}

func (r *Refund) Clone() *Refund {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

type StatsFilter struct {
	OfferID  string
	BuyerID  string
	SellerID string
}

type Stats struct {
	Orders   int
	Quantity int
	ByStatus map[Status]int
	// Gross sums totals of orders that were paid and not refunded.
	Gross decimal.Decimal
}
