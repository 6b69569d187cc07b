package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/presale"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type OffersHandler struct {
	Offers *presale.Service
}

type CreateOfferReq struct {
	Title         string          `json:"title"`
	Start         time.Time       `json:"start"`
	End           time.Time       `json:"end"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Currency      string          `json:"currency"`
	Total         int             `json:"total"`
	MinPerOrder   int             `json:"min_per_order"`
	MaxPerOrder   int             `json:"max_per_order"`
	LimitPerBuyer int             `json:"limit_per_buyer"`
}

type ReviewReq struct {
	Approve bool `json:"approve"`
}

func (h *OffersHandler) Register(r chi.Router) {
	r.Route("/offers", func(r chi.Router) {
		r.Post("/", h.createOffer)
		r.Get("/{id}", h.getOffer)
		r.Get("/{id}/stats", h.getStats)
		r.Post("/{id}/review", h.review)
		r.Post("/{id}/submit", h.sellerAction(h.Offers.SubmitOffer))
		r.Post("/{id}/publish", h.sellerAction(h.Offers.PublishOffer))
		r.Post("/{id}/pause", h.sellerAction(h.Offers.PauseOffer))
		r.Post("/{id}/resume", h.sellerAction(h.Offers.ResumeOffer))
		r.Post("/{id}/cancel", h.sellerAction(h.Offers.CancelOffer))
		r.Post("/{id}/archive", h.sellerAction(h.Offers.ArchiveOffer))
	})
}

func (h *OffersHandler) createOffer(w http.ResponseWriter, r *http.Request) {
	seller, err := actor(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req CreateOfferReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Offers.CreateOffer(r.Context(), seller, presale.CreateOfferInput{
		Title:         req.Title,
		Start:         req.Start,
		End:           req.End,
		UnitPrice:     req.UnitPrice,
		Currency:      req.Currency,
		Total:         req.Total,
		MinPerOrder:   req.MinPerOrder,
		MaxPerOrder:   req.MaxPerOrder,
		LimitPerBuyer: req.LimitPerBuyer,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOfferView(o))
}

func (h *OffersHandler) getOffer(w http.ResponseWriter, r *http.Request) {
	o, err := h.Offers.GetOffer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferView(o))
}

func (h *OffersHandler) getStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.Offers.GetOfferStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferStatsView(st))
}

func (h *OffersHandler) review(w http.ResponseWriter, r *http.Request) {
	if _, err := actor(r); err != nil {
		writeError(w, r, err)
		return
	}
	var req ReviewReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.Offers.ReviewOffer(r.Context(), chi.URLParam(r, "id"), req.Approve)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOfferView(o))
}

// sellerAction adapts a lifecycle call that only needs the offer id and the seller.
func (h *OffersHandler) sellerAction(fn func(ctx context.Context, offerID, sellerID string) (*presale.Offer, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seller, err := actor(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		o, err := fn(r.Context(), chi.URLParam(r, "id"), seller)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toOfferView(o))
	}
}
