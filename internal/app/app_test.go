package app

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/config"
	"github.com/ariefcatur/go-presale-orders/internal/metrics"
	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/ariefcatur/go-presale-orders/internal/presale"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memoryConfig() config.Config {
	return config.Config{
		Store:               "memory",
		ServiceName:         "presale-test",
		PaymentGrace:        time.Minute,
		AutoConfirmAfter:    time.Hour,
		LockTTL:             time.Second,
		SweepInterval:       10 * time.Millisecond,
		ExternalMaxAttempts: 2,
		ExternalCallTimeout: time.Second,
	}
}

func TestBuildMemoryStack(t *testing.T) {
	ctx := context.Background()
	st, err := Build(ctx, memoryConfig(), zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)
	defer st.Close()

	now := time.Now().UTC()
	offer, err := st.Offers.CreateOffer(ctx, "seller-1", presale.CreateOfferInput{
		Title:     "Gesha lot 7",
		Start:     now.Add(-time.Minute),
		End:       now.Add(time.Hour),
		UnitPrice: decimal.RequireFromString("12.00"),
		Currency:  "USD",
		Total:     5,
	})
	require.NoError(t, err)
	_, err = st.Offers.SubmitOffer(ctx, offer.ID, "seller-1")
	require.NoError(t, err)
	_, err = st.Offers.ReviewOffer(ctx, offer.ID, true)
	require.NoError(t, err)
	_, err = st.Offers.PublishOffer(ctx, offer.ID, "seller-1")
	require.NoError(t, err)

	o, err := st.Orders.CreateOrder(ctx, orders.CreateOrderCommand{
		BuyerID:  "buyer-1",
		OfferID:  offer.ID,
		Quantity: 1,
		Shipping: orders.Shipping{Recipient: "Ana", Address: "Rua 1"},
	})
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPending, o.Status)

	got, err := st.Offers.GetOffer(ctx, offer.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Inventory.Available)
}

func TestBuildUnknownStore(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store = "sqlite"
	_, err := Build(context.Background(), cfg, zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	assert.ErrorContains(t, err, "unknown store")
}

func TestRunSweepersStopsWithContext(t *testing.T) {
	st, err := Build(context.Background(), memoryConfig(), zap.NewNop(), metrics.New(prometheus.NewRegistry()))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.NoError(t, st.RunSweepers(ctx, 5*time.Millisecond, zap.NewNop()))
}
