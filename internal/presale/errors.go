package presale

import "github.com/ariefcatur/go-presale-orders/internal/apperr"

var (
	ErrNotFound      = apperr.New(apperr.KindNotFound, "OFFER_NOT_FOUND", "presale: offer not found")
	ErrForbidden     = apperr.New(apperr.KindForbidden, "OFFER_FORBIDDEN", "presale: offer belongs to another seller")
	ErrStatusChanged = apperr.New(apperr.KindConflict, "OFFER_STATUS_CHANGED", "presale: offer status changed concurrently")
	ErrInvalidStatus = apperr.New(apperr.KindConflict, "OFFER_INVALID_TRANSITION", "presale: invalid offer status transition")

	// Eligibility reasons.
	ErrNotActive         = apperr.New(apperr.KindConflict, "NOT_ACTIVE", "presale: offer is not active")
	ErrOutsideWindow     = apperr.New(apperr.KindConflict, "OUTSIDE_WINDOW", "presale: outside the sale window")
	ErrBelowMinimum      = apperr.New(apperr.KindValidation, "BELOW_MINIMUM", "presale: quantity below per-order minimum")
	ErrAboveMaximum      = apperr.New(apperr.KindValidation, "ABOVE_MAXIMUM", "presale: quantity above per-order maximum")
	ErrInsufficientStock = apperr.New(apperr.KindConflict, "INSUFFICIENT_STOCK", "presale: insufficient stock")
	ErrBuyerCapExceeded  = apperr.New(apperr.KindConflict, "BUYER_CAP_EXCEEDED", "presale: per-buyer limit exceeded")
)
