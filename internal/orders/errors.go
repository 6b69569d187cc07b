package orders

import "github.com/ariefcatur/go-presale-orders/internal/apperr"

var (
	ErrNotFound          = apperr.New(apperr.KindNotFound, "ORDER_NOT_FOUND", "orders: order not found")
	ErrForbidden         = apperr.New(apperr.KindForbidden, "ORDER_FORBIDDEN", "orders: actor may not act on this order")
	ErrStatusChanged     = apperr.New(apperr.KindConflict, "ORDER_STATUS_CHANGED", "orders: order status changed concurrently")
	ErrAlreadyExists     = apperr.New(apperr.KindConflict, "ORDER_EXISTS", "orders: order already exists")
	ErrInvalidTransition = apperr.New(apperr.KindConflict, "INVALID_TRANSITION", "orders: invalid status transition")
	ErrAlreadyInState    = apperr.New(apperr.KindConflict, "ALREADY_IN_STATE", "orders: order already in requested state")
	ErrAlreadyPaid       = apperr.New(apperr.KindConflict, "ALREADY_PAID", "orders: order already paid")
	ErrAlreadyCancelled  = apperr.New(apperr.KindConflict, "ALREADY_CANCELLED", "orders: order already cancelled")

	ErrPaymentDeadlineExceeded = apperr.New(apperr.KindDeadline, "PAYMENT_DEADLINE_EXCEEDED", "orders: payment deadline exceeded, order cancelled")

	ErrRefundNotFound = apperr.New(apperr.KindNotFound, "REFUND_NOT_FOUND", "orders: refund not found")
	ErrRefundResolved = apperr.New(apperr.KindConflict, "REFUND_RESOLVED", "orders: refund already resolved")
	ErrRefundPending  = apperr.New(apperr.KindConflict, "REFUND_PENDING", "orders: a refund request is already pending")

	ErrSettlement = apperr.New(apperr.KindDependency, "SETTLEMENT_FAILED", "orders: settlement gateway failed")
	ErrMinting    = apperr.New(apperr.KindDependency, "MINT_FAILED", "orders: minting service failed")
)
