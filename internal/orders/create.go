package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/ariefcatur/go-presale-orders/internal/lock"
	"github.com/ariefcatur/go-presale-orders/internal/scheduler"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	// Idempotency create order: idem:order:create:{buyer_id}:{client_key} -> order_id
	keyIdemCreate = "idem:order:create:%s:%s"
)

var ttlIdempotency = 24 * time.Hour

type CreateOrderCommand struct {
	BuyerID     string
	OfferID     string
	Quantity    int
	ShippingFee decimal.Decimal
	Shipping    Shipping
	// IdempotencyKey is optional. A replay with the same key returns the first order.
	IdempotencyKey string
}

func (cmd CreateOrderCommand) validate() error {
	switch {
	case strings.TrimSpace(cmd.BuyerID) == "":
		return apperr.Validation("buyer id is required")
	case strings.TrimSpace(cmd.OfferID) == "":
		return apperr.Validation("offer id is required")
	case cmd.Quantity <= 0:
		return apperr.Validation("quantity must be positive, got %d", cmd.Quantity)
	case cmd.ShippingFee.IsNegative():
		return apperr.Validation("shipping fee must not be negative")
	case strings.TrimSpace(cmd.Shipping.Recipient) == "" || strings.TrimSpace(cmd.Shipping.Address) == "":
		return apperr.Validation("shipping recipient and address are required")
	}
	return nil
}

// CreateOrder reserves stock and persists a pending order with a payment deadline.
// The eligibility check and the create run under the buyer's purchase lock so two
// concurrent requests cannot both slip under the per-buyer cap.
func (c *Coordinator) CreateOrder(ctx context.Context, cmd CreateOrderCommand) (*Order, error) {
	if err := cmd.validate(); err != nil {
		return nil, err
	}

	var (
		out     *Order
		created bool
	)
	err := c.withLock(ctx, lock.PurchaseKey(cmd.OfferID, cmd.BuyerID), func(ctx context.Context) error {
		if cmd.IdempotencyKey != "" {
			existing, err := c.replay(ctx, cmd.BuyerID, cmd.IdempotencyKey)
			if err != nil {
				return err
			}
			if existing != nil {
				out = existing
				return nil
			}
		}

		offer, err := c.inventory.CheckEligibility(ctx, cmd.OfferID, cmd.BuyerID, cmd.Quantity)
		if err != nil {
			return err
		}

		now := c.now().UTC()
		subtotal := offer.Pricing.UnitPrice.Mul(decimal.NewFromInt(int64(cmd.Quantity)))
		o := &Order{
			ID:       uuid.NewString(),
			BuyerID:  cmd.BuyerID,
			OfferID:  cmd.OfferID,
			SellerID: offer.SellerID,
			Quantity: cmd.Quantity,
			Amounts: Amounts{
				Subtotal:    subtotal,
				ShippingFee: cmd.ShippingFee,
				Total:       subtotal.Add(cmd.ShippingFee),
				Currency:    offer.Pricing.Currency,
			},
			Shipping:        cmd.Shipping,
			Status:          StatusPending,
			PaymentDeadline: now.Add(c.cfg.PaymentGrace),
			CreatedAt:       now,
			UpdatedAt:       now,
			Metadata:        map[string]string{},
		}

		err = c.tx.WithinTx(ctx, func(ctx context.Context) error {
			if _, err := c.inventory.Reduce(ctx, o.OfferID, o.Quantity); err != nil {
				return err
			}
			if err := c.orders.Create(ctx, o); err != nil {
				return fmt.Errorf("orders: create: %w", err)
			}
			return c.timers.Schedule(ctx, scheduler.KindPaymentTimeout, o.ID, o.PaymentDeadline)
		})
		if err != nil {
			return err
		}
		c.metrics.Transition("", string(StatusPending))

		if cmd.IdempotencyKey != "" {
			key := fmt.Sprintf(keyIdemCreate, cmd.BuyerID, cmd.IdempotencyKey)
			if _, err := c.idem.SetNX(context.WithoutCancel(ctx), key, o.ID, ttlIdempotency); err != nil {
				c.log.Warn("idempotency marker not stored", zap.String("order_id", o.ID), zap.Error(err))
			}
		}
		out, created = o, true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		c.log.Info("order created",
			zap.String("order_id", out.ID),
			zap.String("offer_id", out.OfferID),
			zap.String("buyer_id", out.BuyerID),
			zap.Int("quantity", out.Quantity),
			zap.Time("payment_deadline", out.PaymentDeadline),
		)
		c.emit(ctx, EventOrderCreated, out, "")
	}
	return out, nil
}

// replay returns the order an idempotency key already produced, or nil.
func (c *Coordinator) replay(ctx context.Context, buyerID, key string) (*Order, error) {
	id, found, err := c.idem.Get(ctx, fmt.Sprintf(keyIdemCreate, buyerID, key))
	if err != nil {
		return nil, fmt.Errorf("orders: idempotency lookup: %w", err)
	}
	if !found {
		return nil, nil
	}
	o, err := c.orders.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		// marker outlived a rolled back create
		return nil, nil
	}
	return o, err
}
