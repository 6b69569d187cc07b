package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type OrdersHandler struct {
	Orders *orders.Coordinator
}

type CreateOrderReq struct {
	OfferID     string          `json:"offer_id"`
	Quantity    int             `json:"quantity"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Recipient   string          `json:"recipient"`
	Phone       string          `json:"phone"`
	Address     string          `json:"address"`
}

type PayReq struct {
	Method string `json:"method"`
	Proof  string `json:"proof"`
}

type ShipReq struct {
	Tracking string `json:"tracking"`
}

type ReasonReq struct {
	Reason string `json:"reason"`
}

type ResolveRefundReq struct {
	Approve bool `json:"approve"`
	RateBps int  `json:"rate_bps"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/stats", h.getStats)
		r.Get("/{id}", h.getOrder)
		r.Post("/{id}/pay", h.pay)
		r.Post("/{id}/confirm", h.actorAction(h.Orders.ConfirmOrder))
		r.Post("/{id}/ship", h.ship)
		r.Post("/{id}/deliver", h.actorAction(h.Orders.ConfirmDelivery))
		r.Post("/{id}/complete", h.actorAction(h.Orders.CompleteOrder))
		r.Post("/{id}/cancel", h.reasonAction(h.Orders.CancelOrder))
		r.Post("/{id}/reject", h.reasonAction(h.Orders.RejectOrder))
		r.Post("/{id}/refunds", h.requestRefund)
	})
	r.Get("/refunds/{id}", h.getRefund)
	r.Post("/refunds/{id}/resolve", h.resolveRefund)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	buyer, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req CreateOrderReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.CreateOrder(r.Context(), orders.CreateOrderCommand{
		BuyerID:        buyer,
		OfferID:        req.OfferID,
		Quantity:       req.Quantity,
		ShippingFee:    req.ShippingFee,
		Shipping:       orders.Shipping{Recipient: req.Recipient, Phone: req.Phone, Address: req.Address},
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderView(o))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (h *OrdersHandler) getStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	st, err := h.Orders.GetOrderStats(r.Context(), orders.StatsFilter{
		OfferID:  q.Get("offer_id"),
		BuyerID:  q.Get("buyer_id"),
		SellerID: q.Get("seller_id"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderStatsView(st))
}

func (h *OrdersHandler) pay(w http.ResponseWriter, r *http.Request) {
	buyer, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req PayReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.PayOrder(r.Context(), orders.PayCommand{
		OrderID: chi.URLParam(r, "id"),
		BuyerID: buyer,
		Method:  req.Method,
		Proof:   req.Proof,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (h *OrdersHandler) ship(w http.ResponseWriter, r *http.Request) {
	seller, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ShipReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Orders.ShipOrder(r.Context(), chi.URLParam(r, "id"), seller, req.Tracking)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderView(o))
}

func (h *OrdersHandler) requestRefund(w http.ResponseWriter, r *http.Request) {
	buyer, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ReasonReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ref, err := h.Orders.RequestRefund(r.Context(), chi.URLParam(r, "id"), buyer, req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRefundView(ref))
}

func (h *OrdersHandler) getRefund(w http.ResponseWriter, r *http.Request) {
	ref, err := h.Orders.GetRefund(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRefundView(ref))
}

func (h *OrdersHandler) resolveRefund(w http.ResponseWriter, r *http.Request) {
	if _, err := actor(r); err != nil {
		writeError(w, r, err)
		return
	}
	var req ResolveRefundReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ref, err := h.Orders.ResolveRefund(r.Context(), chi.URLParam(r, "id"), req.Approve, req.RateBps)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toRefundView(ref))
}

func (h *OrdersHandler) actorAction(fn func(ctx context.Context, orderID, actorID string) (*orders.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, err := actor(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		o, err := fn(r.Context(), chi.URLParam(r, "id"), who)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderView(o))
	}
}

func (h *OrdersHandler) reasonAction(fn func(ctx context.Context, orderID, actorID, reason string) (*orders.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		who, err := actor(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		var req ReasonReq
		if err := decode(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		o, err := fn(r.Context(), chi.URLParam(r, "id"), who, req.Reason)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderView(o))
	}
}
