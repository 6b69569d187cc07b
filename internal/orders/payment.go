package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/ariefcatur/go-presale-orders/internal/lock"
	"github.com/ariefcatur/go-presale-orders/internal/scheduler"
	"go.uber.org/zap"
)

const actorSystem = "system"

type PayCommand struct {
	OrderID string
	BuyerID string
	Method  string
	Proof   string
}

var (
	errDeadlinePassed = errors.New("orders: payment deadline passed")
	errFiredEarly     = errors.New("orders: timer fired before deadline")
)

// PayOrder moves a pending order to paid and escrows its total. A duplicate
// notification for an order that is already paid returns that order unchanged.
// Paying after the deadline cancels the order, restores its stock, and fails with
// ErrPaymentDeadlineExceeded.
func (c *Coordinator) PayOrder(ctx context.Context, cmd PayCommand) (*Order, error) {
	if strings.TrimSpace(cmd.OrderID) == "" || strings.TrimSpace(cmd.BuyerID) == "" {
		return nil, apperr.Validation("order id and buyer id are required")
	}

	var out *Order
	err := c.withLock(ctx, lock.OrderKey(cmd.OrderID), func(ctx context.Context) error {
		o, noop, err := c.apply(ctx, cmd.OrderID, mutation{
			check: func(o *Order) error {
				switch {
				case o.BuyerID != cmd.BuyerID:
					return ErrForbidden
				case o.PaidAt != nil:
					return errNoop
				case o.Status == StatusCancelled:
					return ErrAlreadyCancelled
				case o.Status != StatusPending:
					return fmt.Errorf("%w: cannot pay a %s order", ErrInvalidTransition, o.Status)
				case c.now().After(o.PaymentDeadline):
					return errDeadlinePassed
				}
				return nil
			},
			to: StatusPaid,
			annotate: func(o *Order) {
				o.setMeta(MetaPaymentMethod, cmd.Method)
				if cmd.Proof != "" {
					o.setMeta(MetaPaymentProof, cmd.Proof)
				}
			},
			// the offer row is locked only once escrow has succeeded
			effect: func(ctx context.Context, o *Order) error {
				if err := c.settlement.Escrow(ctx, o.ID, o.Amounts.Total); err != nil {
					return err
				}
				if _, err := c.inventory.Commit(ctx, o.OfferID, o.Quantity); err != nil {
					return fmt.Errorf("orders: commit reservation: %w", err)
				}
				return nil
			},
		})
		switch {
		case errors.Is(err, errDeadlinePassed):
			cancelled, _, cerr := c.apply(ctx, cmd.OrderID, c.cancelMutation(ReasonDeadlinePassed, actorSystem, nil))
			if cerr != nil {
				return fmt.Errorf("orders: cancel after deadline: %w", cerr)
			}
			c.afterCancel(ctx, cancelled, ReasonDeadlinePassed)
			return ErrPaymentDeadlineExceeded
		case err != nil:
			c.flagOnDependency(ctx, cmd.OrderID, "escrow", err)
			return err
		}

		out = o
		if noop {
			c.log.Info("duplicate payment ignored", zap.String("order_id", o.ID), zap.String("status", string(o.Status)))
			return nil
		}
		c.disarm(ctx, scheduler.KindPaymentTimeout, o.ID)
		c.emit(ctx, EventOrderPaid, o, "")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HandlePaymentTimeout is fired by the scheduler at the payment deadline. It is a
// no-op unless the order is still pending.
func (c *Coordinator) HandlePaymentTimeout(ctx context.Context, orderID string) error {
	return c.withLock(ctx, lock.OrderKey(orderID), func(ctx context.Context) error {
		deadline := c.now()
		o, noop, err := c.apply(ctx, orderID, c.cancelMutation(ReasonPaymentTimeout, actorSystem, func(o *Order) error {
			if o.Status != StatusPending {
				return errNoop
			}
			if !c.now().After(o.PaymentDeadline) {
				deadline = o.PaymentDeadline
				return errFiredEarly
			}
			return nil
		}))
		switch {
		case errors.Is(err, errFiredEarly):
			return c.timers.Schedule(ctx, scheduler.KindPaymentTimeout, orderID, deadline)
		case err != nil:
			return err
		case noop:
			return nil
		}
		c.afterCancel(ctx, o, ReasonPaymentTimeout)
		return nil
	})
}

// CancelOrder lets the buyer abandon an order before paying for it.
func (c *Coordinator) CancelOrder(ctx context.Context, orderID, buyerID, reason string) (*Order, error) {
	if strings.TrimSpace(orderID) == "" || strings.TrimSpace(buyerID) == "" {
		return nil, apperr.Validation("order id and buyer id are required")
	}
	if reason == "" {
		reason = ReasonBuyerCancelled
	}

	var out *Order
	err := c.withLock(ctx, lock.OrderKey(orderID), func(ctx context.Context) error {
		o, _, err := c.apply(ctx, orderID, c.cancelMutation(reason, buyerID, func(o *Order) error {
			switch {
			case o.BuyerID != buyerID:
				return ErrForbidden
			case o.Status == StatusCancelled:
				return ErrAlreadyCancelled
			case o.Status == StatusPaid:
				return ErrAlreadyPaid
			case o.Status != StatusPending:
				return fmt.Errorf("%w: only pending orders can be cancelled, order is %s", ErrInvalidTransition, o.Status)
			}
			return nil
		}))
		if err != nil {
			return err
		}
		c.afterCancel(ctx, o, reason)
		out = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// cancelMutation moves a pending order to cancelled and gives its reservation back.
func (c *Coordinator) cancelMutation(reason, by string, check func(o *Order) error) mutation {
	return mutation{
		check: check,
		to:    StatusCancelled,
		annotate: func(o *Order) {
			o.setMeta(MetaCancelReason, reason)
			o.setMeta(MetaCancelledBy, by)
		},
		effect: func(ctx context.Context, o *Order) error {
			if _, err := c.inventory.ReleaseReservation(ctx, o.OfferID, o.Quantity); err != nil {
				return fmt.Errorf("orders: release reservation: %w", err)
			}
			return nil
		},
	}
}

func (c *Coordinator) afterCancel(ctx context.Context, o *Order, reason string) {
	c.disarm(ctx, scheduler.KindPaymentTimeout, o.ID)
	c.emit(ctx, EventOrderCancelled, o, reason)
}
