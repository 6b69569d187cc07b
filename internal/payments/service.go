// Package payments turns payment confirmations from the settlement side into
// PayOrder calls.
package payments

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	kafkax "github.com/ariefcatur/go-presale-orders/internal/kafka"
	"github.com/ariefcatur/go-presale-orders/internal/kv"
	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/ariefcatur/go-presale-orders/internal/redisx"
	"github.com/cenkalti/backoff/v4"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Payer interface {
	PayOrder(ctx context.Context, cmd orders.PayCommand) (*orders.Order, error)
}

type Service struct {
	Payer Payer
	Dedup kv.Store
	// Group namespaces the dedup markers, one set per consumer group.
	Group string
	Log   *zap.Logger
}

// HandlePaymentConfirmed is installed as the consumer handler. A message is marked
// done once PayOrder succeeds or fails for a business reason; infrastructure errors
// leave it unmarked so redelivery retries it.
func (s *Service) HandlePaymentConfirmed(ctx context.Context, m kafkago.Message) error {
	if t := kafkax.Header(m, kafkax.HeaderEventType); t != "" && t != orders.EventPaymentConfirmed {
		return nil
	}

	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		return backoff.Permanent(err)
	}
	if env.EventType != orders.EventPaymentConfirmed {
		return nil
	}

	dkey := fmt.Sprintf(redisx.KeyDedup, s.Group, env.EventID)
	if _, seen, err := s.Dedup.Get(ctx, dkey); err != nil {
		return err
	} else if seen {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.PaymentConfirmedPayload](env.Payload)
	if err != nil {
		return backoff.Permanent(err)
	}

	log := s.Log.With(zap.String("event_id", env.EventID), zap.String("order_id", p.OrderID))
	_, err = s.Payer.PayOrder(ctx, orders.PayCommand{
		OrderID: p.OrderID,
		BuyerID: p.BuyerID,
		Method:  p.Method,
		Proof:   p.Proof,
	})
	if err != nil && retryable(err) {
		log.Warn("payment confirmation deferred", zap.Error(err))
		return err
	}
	if err != nil {
		log.Info("payment confirmation rejected",
			zap.String("code", apperr.CodeOf(err)), zap.Error(err))
	}

	if _, err := s.Dedup.SetNX(ctx, dkey, "1", redisx.TTLDedup); err != nil {
		log.Warn("dedup mark failed", zap.Error(err))
	}
	return nil
}

func retryable(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.KindContention, apperr.KindDependency, apperr.KindInternal:
		return true
	}
	return false
}
