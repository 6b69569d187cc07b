package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/ariefcatur/go-presale-orders/internal/lock"
	"github.com/ariefcatur/go-presale-orders/internal/scheduler"
)

// fullRefundBps refunds the whole order total.
const fullRefundBps = 10000

// guarded runs m under the order lock and returns the resulting order.
func (c *Coordinator) guarded(ctx context.Context, orderID string, m mutation) (*Order, bool, error) {
	var (
		out  *Order
		noop bool
	)
	err := c.withLock(ctx, lock.OrderKey(orderID), func(ctx context.Context) error {
		var err error
		out, noop, err = c.apply(ctx, orderID, m)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return out, noop, nil
}

func sellerOnly(sellerID string) func(o *Order) error {
	return func(o *Order) error {
		if o.SellerID != sellerID {
			return ErrForbidden
		}
		return nil
	}
}

func buyerOnly(buyerID string) func(o *Order) error {
	return func(o *Order) error {
		if o.BuyerID != buyerID {
			return ErrForbidden
		}
		return nil
	}
}

func requireIDs(ids ...string) error {
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return apperr.Validation("order id and actor id are required")
		}
	}
	return nil
}

// ConfirmOrder is the seller accepting a paid order.
func (c *Coordinator) ConfirmOrder(ctx context.Context, orderID, sellerID string) (*Order, error) {
	if err := requireIDs(orderID, sellerID); err != nil {
		return nil, err
	}
	o, _, err := c.guarded(ctx, orderID, mutation{check: sellerOnly(sellerID), to: StatusConfirmed})
	if err != nil {
		return nil, err
	}
	c.emit(ctx, EventOrderConfirmed, o, "")
	return o, nil
}

// ShipOrder records the hand-off to the courier and arms the auto-confirm timer.
func (c *Coordinator) ShipOrder(ctx context.Context, orderID, sellerID, tracking string) (*Order, error) {
	if err := requireIDs(orderID, sellerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(tracking) == "" {
		return nil, apperr.Validation("tracking info is required")
	}
	o, _, err := c.guarded(ctx, orderID, mutation{
		check:    sellerOnly(sellerID),
		to:       StatusShipped,
		annotate: func(o *Order) { o.setMeta(MetaTracking, tracking) },
		effect: func(ctx context.Context, o *Order) error {
			if err := c.settlement.MarkShipped(ctx, o.ID, tracking); err != nil {
				return err
			}
			return c.timers.Schedule(ctx, scheduler.KindAutoConfirm, o.ID, o.ShippedAt.Add(c.cfg.AutoConfirmAfter))
		},
	})
	if err != nil {
		c.flagOnDependency(ctx, orderID, "mark_shipped", err)
		return nil, err
	}
	c.emit(ctx, EventOrderShipped, o, "")
	return o, nil
}

// ConfirmDelivery is the buyer acknowledging receipt. Funds are released to the
// seller and the ownership token is minted.
func (c *Coordinator) ConfirmDelivery(ctx context.Context, orderID, buyerID string) (*Order, error) {
	if err := requireIDs(orderID, buyerID); err != nil {
		return nil, err
	}
	o, _, err := c.guarded(ctx, orderID, c.deliverMutation(buyerOnly(buyerID), false))
	if err != nil {
		c.flagOnDependency(ctx, orderID, "deliver", err)
		return nil, err
	}
	c.disarm(ctx, scheduler.KindAutoConfirm, o.ID)
	c.emit(ctx, EventOrderDelivered, o, "")
	return o, nil
}

// AutoConfirmDelivery is fired by the scheduler when the buyer never confirmed
// receipt. It is a no-op unless the order is still shipped.
func (c *Coordinator) AutoConfirmDelivery(ctx context.Context, orderID string) error {
	o, noop, err := c.guarded(ctx, orderID, c.deliverMutation(func(o *Order) error {
		if o.Status != StatusShipped {
			return errNoop
		}
		return nil
	}, true))
	if err != nil {
		c.flagOnDependency(ctx, orderID, "auto_confirm", err)
		return err
	}
	if !noop {
		c.emit(ctx, EventOrderDelivered, o, MetaAutoConfirmed)
	}
	return nil
}

func (c *Coordinator) deliverMutation(check func(o *Order) error, auto bool) mutation {
	return mutation{
		check: check,
		to:    StatusDelivered,
		annotate: func(o *Order) {
			if auto {
				o.setMeta(MetaAutoConfirmed, "true")
			}
		},
		effect: func(ctx context.Context, o *Order) error {
			if err := c.settlement.ReleaseFunds(ctx, o.ID); err != nil {
				return err
			}
			ref, err := c.minter.Mint(ctx, o.ID, o.BuyerID)
			if err != nil {
				return err
			}
			o.TokenRef = ref
			return nil
		},
	}
}

// CompleteOrder closes a delivered order.
func (c *Coordinator) CompleteOrder(ctx context.Context, orderID, buyerID string) (*Order, error) {
	if err := requireIDs(orderID, buyerID); err != nil {
		return nil, err
	}
	o, _, err := c.guarded(ctx, orderID, mutation{check: buyerOnly(buyerID), to: StatusCompleted})
	if err != nil {
		return nil, err
	}
	c.emit(ctx, EventOrderCompleted, o, "")
	return o, nil
}

// RejectOrder is the seller declining a paid order. The buyer is refunded in full
// and the units go back on sale.
func (c *Coordinator) RejectOrder(ctx context.Context, orderID, sellerID, reason string) (*Order, error) {
	if err := requireIDs(orderID, sellerID); err != nil {
		return nil, err
	}
	o, _, err := c.guarded(ctx, orderID, mutation{
		check: func(o *Order) error {
			if o.SellerID != sellerID {
				return ErrForbidden
			}
			if o.Status != StatusPaid {
				return fmt.Errorf("%w: only paid orders can be rejected, order is %s", ErrInvalidTransition, o.Status)
			}
			return nil
		},
		to: StatusRefunded,
		annotate: func(o *Order) {
			if reason != "" {
				o.setMeta(MetaRejectReason, reason)
			}
		},
		effect: func(ctx context.Context, o *Order) error {
			if err := c.settlement.Refund(ctx, o.ID, fullRefundBps); err != nil {
				return err
			}
			if _, err := c.inventory.Release(ctx, o.OfferID, o.Quantity); err != nil {
				return fmt.Errorf("orders: release stock: %w", err)
			}
			return nil
		},
	})
	if err != nil {
		c.flagOnDependency(ctx, orderID, "reject_refund", err)
		return nil, err
	}
	c.emit(ctx, EventOrderRefunded, o, reason)
	return o, nil
}
