package orders

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	legal := map[Status][]Status{
		StatusPending:   {StatusPaid, StatusCancelled},
		StatusPaid:      {StatusConfirmed, StatusRefunded, StatusDisputed},
		StatusConfirmed: {StatusShipped, StatusDisputed},
		StatusShipped:   {StatusDelivered, StatusDisputed},
		StatusDelivered: {StatusCompleted, StatusDisputed},
		StatusDisputed:  {StatusRefunded, StatusCompleted, StatusPaid, StatusConfirmed, StatusShipped},
	}
	all := []Status{StatusPending, StatusPaid, StatusConfirmed, StatusShipped, StatusDelivered,
		StatusCompleted, StatusCancelled, StatusRefunded, StatusDisputed}

	for _, from := range all {
		allowed := make(map[Status]bool)
		for _, to := range legal[from] {
			allowed[to] = true
		}
		for _, to := range all {
			assert.Equal(t, allowed[to], CanTransition(from, to), "%s -> %s", from, to)
		}
	}

	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusRefunded} {
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, StatusDisputed.Terminal())
	assert.False(t, Status("lost").Valid())
}

func TestOrderTransition(t *testing.T) {
	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	o := &Order{ID: "o-1", Status: StatusPending}

	err := o.Transition(StatusShipped, at)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusPending, o.Status)
	assert.Nil(t, o.ShippedAt)

	require.NoError(t, o.Transition(StatusPaid, at))
	require.NotNil(t, o.PaidAt)
	assert.Equal(t, at, *o.PaidAt)
	assert.Equal(t, at, o.UpdatedAt)

	assert.ErrorIs(t, o.Transition(StatusPaid, at), ErrAlreadyInState)

	// a restored dispute keeps the original payment time
	require.NoError(t, o.Transition(StatusDisputed, at.Add(time.Hour)))
	require.NoError(t, o.Transition(StatusPaid, at.Add(2*time.Hour)))
	assert.Equal(t, at, *o.PaidAt)
}

func TestRestoreTarget(t *testing.T) {
	assert.Equal(t, StatusPaid, restoreTarget(StatusPaid))
	assert.Equal(t, StatusConfirmed, restoreTarget(StatusConfirmed))
	assert.Equal(t, StatusShipped, restoreTarget(StatusShipped))
	assert.Equal(t, StatusCompleted, restoreTarget(StatusDelivered))
	assert.Equal(t, StatusConfirmed, restoreTarget(""))
}

func TestRefundAmount(t *testing.T) {
	total := decimal.RequireFromString("42.50")
	assert.Equal(t, "42.5", refundAmount(total, 10000).String())
	assert.Equal(t, "21.25", refundAmount(total, 5000).String())
	assert.Equal(t, "0.43", refundAmount(total, 100).String())
}
