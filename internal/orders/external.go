package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/ariefcatur/go-presale-orders/internal/metrics"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrDeclined is returned by a collaborator that refuses the request outright;
// it is never retried.
var ErrDeclined = apperr.New(apperr.KindConflict, "DECLINED", "orders: request declined by collaborator")

type RetryPolicy struct {
	MaxAttempts     int
	CallTimeout     time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.CallTimeout <= 0 {
		p.CallTimeout = 5 * time.Second
	}
	if p.InitialInterval <= 0 {
		p.InitialInterval = 200 * time.Millisecond
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = 2 * time.Second
	}
	return p
}

type retrier struct {
	policy  RetryPolicy
	metrics *metrics.Metrics
	log     *zap.Logger
}

// do runs fn up to MaxAttempts times, each attempt bounded by CallTimeout.
// The wrapped collaborator receives the same order id on every attempt.
func (r *retrier) do(ctx context.Context, peer, op, orderID string, sentinel error, fn func(ctx context.Context) error) error {
	start := time.Now()
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.policy.InitialInterval
	b.MaxInterval = r.policy.MaxInterval
	b.MaxElapsedTime = 0
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.policy.MaxAttempts-1)), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		cctx, cancel := context.WithTimeout(ctx, r.policy.CallTimeout)
		defer cancel()
		err := fn(cctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrDeclined) {
			return backoff.Permanent(err)
		}
		r.log.Warn("external call failed",
			zap.String("peer", peer), zap.String("op", op),
			zap.String("order_id", orderID), zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, bo)

	outcome := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrDeclined):
		outcome = "declined"
	default:
		outcome = "error"
	}
	r.metrics.External(peer, op, outcome, time.Since(start).Seconds())

	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDeclined) {
		return fmt.Errorf("%s %s for %s: %w", peer, op, orderID, err)
	}
	return fmt.Errorf("%w: %s for %s after %d attempts: %w", sentinel, op, orderID, attempt, err)
}

type retryingSettlement struct {
	inner Settlement
	r     *retrier
}

func (s retryingSettlement) Escrow(ctx context.Context, orderID string, amount decimal.Decimal) error {
	return s.r.do(ctx, "settlement", "escrow", orderID, ErrSettlement, func(ctx context.Context) error {
		return s.inner.Escrow(ctx, orderID, amount)
	})
}

func (s retryingSettlement) MarkShipped(ctx context.Context, orderID, tracking string) error {
	return s.r.do(ctx, "settlement", "mark_shipped", orderID, ErrSettlement, func(ctx context.Context) error {
		return s.inner.MarkShipped(ctx, orderID, tracking)
	})
}

func (s retryingSettlement) ReleaseFunds(ctx context.Context, orderID string) error {
	return s.r.do(ctx, "settlement", "release_funds", orderID, ErrSettlement, func(ctx context.Context) error {
		return s.inner.ReleaseFunds(ctx, orderID)
	})
}

func (s retryingSettlement) Refund(ctx context.Context, orderID string, rateBps int) error {
	return s.r.do(ctx, "settlement", "refund", orderID, ErrSettlement, func(ctx context.Context) error {
		return s.inner.Refund(ctx, orderID, rateBps)
	})
}

type retryingMinter struct {
	inner Minter
	r     *retrier
}

func (m retryingMinter) Mint(ctx context.Context, orderID, buyerID string) (string, error) {
	var ref string
	err := m.r.do(ctx, "minting", "mint", orderID, ErrMinting, func(ctx context.Context) error {
		var err error
		ref, err = m.inner.Mint(ctx, orderID, buyerID)
		return err
	})
	return ref, err
}
