package sandbox

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettlement_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewSettlement(nil)
	s.DeclineAbove = decimal.NewFromInt(500)

	err := s.Escrow(ctx, "big", decimal.NewFromInt(501))
	assert.ErrorIs(t, err, orders.ErrDeclined)

	require.NoError(t, s.Escrow(ctx, "order-1", decimal.RequireFromString("40")))
	require.NoError(t, s.Escrow(ctx, "order-1", decimal.RequireFromString("40")))
	require.NoError(t, s.MarkShipped(ctx, "order-1", "TRK-1"))
	require.NoError(t, s.Refund(ctx, "order-1", 2500))
	assert.Equal(t, "10", s.escrows["order-1"].refunded.String())

	// a second refund call for the same order is a no-op
	require.NoError(t, s.Refund(ctx, "order-1", 10000))
	assert.Equal(t, "10", s.escrows["order-1"].refunded.String())

	assert.ErrorIs(t, s.ReleaseFunds(ctx, "missing"), orders.ErrDeclined)
}

func TestMinter_OneTokenPerOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMinter(nil)

	a, err := m.Mint(ctx, "order-1", "buyer-1")
	require.NoError(t, err)
	b, err := m.Mint(ctx, "order-1", "buyer-1")
	require.NoError(t, err)
	c, err := m.Mint(ctx, "order-2", "buyer-1")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
