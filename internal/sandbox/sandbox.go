// Package sandbox holds in-process settlement and minting collaborators for local
// runs. They keep state in memory and log every call.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type escrow struct {
	amount   decimal.Decimal
	tracking string
	released bool
	refunded decimal.Decimal
}

type Settlement struct {
	mu      sync.Mutex
	escrows map[string]*escrow
	// DeclineAbove rejects escrows larger than this amount; zero disables the check.
	DeclineAbove decimal.Decimal
	log          *zap.Logger
}

func NewSettlement(log *zap.Logger) *Settlement {
	if log == nil {
		log = zap.NewNop()
	}
	return &Settlement{escrows: make(map[string]*escrow), log: log.Named("sandbox.settlement")}
}

var _ orders.Settlement = (*Settlement)(nil)

func (s *Settlement) Escrow(_ context.Context, orderID string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.DeclineAbove.IsZero() && amount.GreaterThan(s.DeclineAbove) {
		s.log.Info("escrow declined", zap.String("order_id", orderID), zap.Stringer("amount", amount))
		return fmt.Errorf("%w: amount %s exceeds limit", orders.ErrDeclined, amount)
	}
	if _, ok := s.escrows[orderID]; ok {
		return nil
	}
	s.escrows[orderID] = &escrow{amount: amount, refunded: decimal.Zero}
	s.log.Info("escrowed", zap.String("order_id", orderID), zap.Stringer("amount", amount))
	return nil
}

func (s *Settlement) held(orderID string) (*escrow, error) {
	e, ok := s.escrows[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: no escrow for order %s", orders.ErrDeclined, orderID)
	}
	return e, nil
}

func (s *Settlement) MarkShipped(_ context.Context, orderID, tracking string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.held(orderID)
	if err != nil {
		return err
	}
	e.tracking = tracking
	s.log.Info("shipment recorded", zap.String("order_id", orderID), zap.String("tracking", tracking))
	return nil
}

func (s *Settlement) ReleaseFunds(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.held(orderID)
	if err != nil {
		return err
	}
	if !e.released {
		e.released = true
		s.log.Info("funds released", zap.String("order_id", orderID), zap.Stringer("amount", e.amount))
	}
	return nil
}

func (s *Settlement) Refund(_ context.Context, orderID string, rateBps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.held(orderID)
	if err != nil {
		return err
	}
	if e.refunded.IsPositive() {
		return nil
	}
	e.refunded = e.amount.Mul(decimal.NewFromInt(int64(rateBps))).Div(decimal.NewFromInt(10000)).Round(2)
	s.log.Info("refunded", zap.String("order_id", orderID), zap.Int("rate_bps", rateBps), zap.Stringer("amount", e.refunded))
	return nil
}

// Minter hands out one token per order.
type Minter struct {
	mu     sync.Mutex
	tokens map[string]string
	log    *zap.Logger
}

func NewMinter(log *zap.Logger) *Minter {
	if log == nil {
		log = zap.NewNop()
	}
	return &Minter{tokens: make(map[string]string), log: log.Named("sandbox.minter")}
}

var _ orders.Minter = (*Minter)(nil)

func (m *Minter) Mint(_ context.Context, orderID, buyerID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref, ok := m.tokens[orderID]; ok {
		return ref, nil
	}
	ref := "tok_" + uuid.NewString()
	m.tokens[orderID] = ref
	m.log.Info("minted", zap.String("order_id", orderID), zap.String("buyer_id", buyerID), zap.String("token_ref", ref))
	return ref, nil
}
