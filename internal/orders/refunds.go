package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/ariefcatur/go-presale-orders/internal/lock"
	"github.com/ariefcatur/go-presale-orders/internal/scheduler"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var bpsDivisor = decimal.NewFromInt(fullRefundBps)

// RequestRefund opens a dispute on a paid order. The order moves to disputed and
// keeps the status it had so a rejected request can put it back.
func (c *Coordinator) RequestRefund(ctx context.Context, orderID, buyerID, reason string) (*Refund, error) {
	if err := requireIDs(orderID, buyerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation("refund reason is required")
	}

	var (
		prev Status
		ref  *Refund
	)
	o, _, err := c.guarded(ctx, orderID, mutation{
		check: func(o *Order) error {
			if o.BuyerID != buyerID {
				return ErrForbidden
			}
			switch o.Status {
			case StatusPaid, StatusConfirmed, StatusShipped, StatusDelivered:
			case StatusDisputed:
				return ErrRefundPending
			default:
				return fmt.Errorf("%w: refunds need a paid order, order is %s", ErrInvalidTransition, o.Status)
			}
			prev = o.Status
			return nil
		},
		to: StatusDisputed,
		effect: func(ctx context.Context, o *Order) error {
			switch open, err := c.refunds.PendingForOrder(ctx, o.ID); {
			case err == nil:
				return fmt.Errorf("%w: refund %s", ErrRefundPending, open.ID)
			case !errors.Is(err, ErrRefundNotFound):
				return fmt.Errorf("orders: pending refund lookup: %w", err)
			}
			ref = &Refund{
				ID:             uuid.NewString(),
				OrderID:        o.ID,
				BuyerID:        o.BuyerID,
				Amount:         o.Amounts.Total,
				Reason:         strings.TrimSpace(reason),
				Status:         RefundPending,
				PreviousStatus: prev,
				CreatedAt:      o.UpdatedAt,
			}
			if err := c.refunds.Create(ctx, ref); err != nil {
				return fmt.Errorf("orders: create refund: %w", err)
			}
			o.setMeta(MetaRefundID, ref.ID)
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	if prev == StatusShipped {
		c.disarm(ctx, scheduler.KindAutoConfirm, o.ID)
	}
	c.emit(ctx, EventOrderDisputed, o, ref.Reason)
	return ref, nil
}

// ResolveRefund applies an operator decision. Approval refunds rateBps of the order
// total and returns the units to the offer. Rejection restores the order to the
// status it had before the dispute; a delivered order is closed as completed.
func (c *Coordinator) ResolveRefund(ctx context.Context, refundID string, approve bool, rateBps int) (*Refund, error) {
	if strings.TrimSpace(refundID) == "" {
		return nil, apperr.Validation("refund id is required")
	}
	if approve && (rateBps <= 0 || rateBps > fullRefundBps) {
		return nil, apperr.Validation("refund rate must be within 1..%d basis points, got %d", fullRefundBps, rateBps)
	}

	r, err := c.refunds.Get(ctx, refundID)
	if err != nil {
		return nil, err
	}

	var (
		out *Order
		res *Refund
	)
	err = c.withLock(ctx, lock.OrderKey(r.OrderID), func(ctx context.Context) error {
		// refunds only change under the order lock, so this read is stable
		cur, err := c.refunds.Get(ctx, refundID)
		if err != nil {
			return err
		}
		if cur.Status != RefundPending {
			return ErrRefundResolved
		}

		to := restoreTarget(cur.PreviousStatus)
		if approve {
			to = StatusRefunded
		}
		out, _, err = c.apply(ctx, cur.OrderID, mutation{
			check: func(o *Order) error {
				if o.Status != StatusDisputed {
					return fmt.Errorf("%w: order %s is %s, not disputed", ErrInvalidTransition, o.ID, o.Status)
				}
				return nil
			},
			to: to,
			effect: func(ctx context.Context, o *Order) error {
				locked, err := c.refunds.GetForUpdate(ctx, refundID)
				if err != nil {
					return err
				}
				if locked.Status != RefundPending {
					return ErrRefundResolved
				}
				at := o.UpdatedAt
				locked.ResolvedAt = &at
				if approve {
					if err := c.settlement.Refund(ctx, o.ID, rateBps); err != nil {
						return err
					}
					if _, err := c.inventory.Release(ctx, o.OfferID, o.Quantity); err != nil {
						return fmt.Errorf("orders: release stock: %w", err)
					}
					locked.Status = RefundApproved
					locked.RateBps = rateBps
					locked.Amount = refundAmount(o.Amounts.Total, rateBps)
				} else {
					locked.Status = RefundRejected
					if to == StatusShipped {
						if err := c.timers.Schedule(ctx, scheduler.KindAutoConfirm, o.ID, at.Add(c.cfg.AutoConfirmAfter)); err != nil {
							return err
						}
					}
				}
				if err := c.refunds.Update(ctx, locked, RefundPending); err != nil {
					return err
				}
				res = locked
				return nil
			},
		})
		return err
	})
	if err != nil {
		c.flagOnDependency(ctx, r.OrderID, "refund", err)
		return nil, err
	}

	c.log.Info("refund resolved",
		zap.String("refund_id", res.ID),
		zap.String("order_id", out.ID),
		zap.String("decision", string(res.Status)),
		zap.Int("rate_bps", res.RateBps),
	)
	if approve {
		c.emit(ctx, EventOrderRefunded, out, res.Reason)
	} else {
		c.emit(ctx, EventOrderRestored, out, res.Reason)
	}
	return res, nil
}

// restoreTarget is where a rejected dispute sends the order. Delivered goods have
// already been paid out and minted, so the order closes instead of reopening.
func restoreTarget(prev Status) Status {
	switch prev {
	case StatusDelivered:
		return StatusCompleted
	case StatusPaid, StatusConfirmed, StatusShipped:
		return prev
	}
	return StatusConfirmed
}

func refundAmount(total decimal.Decimal, rateBps int) decimal.Decimal {
	return total.Mul(decimal.NewFromInt(int64(rateBps))).Div(bpsDivisor).Round(2)
}
