package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/kv"
	"github.com/ariefcatur/go-presale-orders/internal/lock"
	"github.com/ariefcatur/go-presale-orders/internal/memory"
	"github.com/ariefcatur/go-presale-orders/internal/metrics"
	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/ariefcatur/go-presale-orders/internal/presale"
	"github.com/ariefcatur/go-presale-orders/internal/sandbox"
	"github.com/ariefcatur/go-presale-orders/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := memory.NewStore()
	offers, ords := memory.NewOffers(store), memory.NewOrders(store)

	coord := orders.NewCoordinator(orders.Deps{
		Orders:      ords,
		Refunds:     memory.NewRefunds(store),
		Tx:          memory.NewTx(store),
		Inventory:   presale.NewLedger(offers, ords, m),
		Locks:       lock.NewManager(kv.NewMemory()),
		Idempotency: kv.NewMemory(),
		Timers:      scheduler.New(scheduler.NewMemoryStore(), nil, m),
		Settlement:  sandbox.NewSettlement(nil),
		Minter:      sandbox.NewMinter(nil),
		Metrics:     m,
	}, orders.Config{})

	r := NewRouter(nil, reg)
	(&OffersHandler{Offers: presale.NewService(offers, ords, nil)}).Register(r)
	(&OrdersHandler{Orders: coord}).Register(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, who string, body any, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	if who != "" {
		req.Header.Set(HeaderActor, who)
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestOfferToPaidOrderOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	now := time.Now().UTC()

	var offer offerView
	code := call(t, srv, http.MethodPost, "/offers", "seller-1", map[string]any{
		"title":      "Yirgacheffe 2026",
		"start":      now.Add(-time.Minute),
		"end":        now.Add(time.Hour),
		"unit_price": "15.50",
		"currency":   "USD",
		"total":      10,
	}, &offer)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "draft", offer.Status)

	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/offers/"+offer.ID+"/submit", "seller-1", nil, nil))
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/offers/"+offer.ID+"/review", "auditor", ReviewReq{Approve: true}, nil))
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodPost, "/offers/"+offer.ID+"/publish", "seller-1", nil, &offer))
	assert.Equal(t, "active", offer.Status)

	var order orderView
	code = call(t, srv, http.MethodPost, "/orders", "buyer-1", CreateOrderReq{
		OfferID: offer.ID, Quantity: 2, Recipient: "Ana", Address: "Rua 1, Lisboa",
	}, &order)
	require.Equal(t, http.StatusCreated, code)
	assert.Equal(t, "pending", order.Status)
	assert.Equal(t, "31.00", order.Total)

	var e errorResp
	code = call(t, srv, http.MethodPost, "/orders/"+order.ID+"/pay", "buyer-2", PayReq{Method: "card"}, &e)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "ORDER_FORBIDDEN", e.Code)

	code = call(t, srv, http.MethodPost, "/orders/"+order.ID+"/pay", "buyer-1", PayReq{Method: "card"}, &order)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "paid", order.Status)
	assert.NotNil(t, order.PaidAt)

	var stats offerStatsView
	require.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/offers/"+offer.ID+"/stats", "", nil, &stats))
	assert.Equal(t, 8, stats.Available)
	assert.Equal(t, 2, stats.Sold)
	assert.Equal(t, 0, stats.Reserved)
	assert.Equal(t, "31.00", stats.Revenue)
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	var e errorResp
	assert.Equal(t, http.StatusNotFound, call(t, srv, http.MethodGet, "/orders/nope", "", nil, &e))
	assert.Equal(t, "ORDER_NOT_FOUND", e.Code)

	assert.Equal(t, http.StatusForbidden, call(t, srv, http.MethodPost, "/orders", "", CreateOrderReq{}, &e))
	assert.Equal(t, "MISSING_ACTOR", e.Code)

	assert.Equal(t, http.StatusBadRequest, call(t, srv, http.MethodPost, "/orders", "buyer-1", CreateOrderReq{OfferID: "x"}, &e))
	assert.Equal(t, "VALIDATION", e.Code)

	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/healthz", "", nil, nil))
	assert.Equal(t, http.StatusOK, call(t, srv, http.MethodGet, "/metrics", "", nil, nil))
}
