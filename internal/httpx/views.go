package httpx

import (
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/ariefcatur/go-presale-orders/internal/presale"
)

type offerView struct {
	ID            string    `json:"id"`
	SellerID      string    `json:"seller_id"`
	Title         string    `json:"title"`
	Status        string    `json:"status"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	UnitPrice     string    `json:"unit_price"`
	Currency      string    `json:"currency"`
	Total         int       `json:"total"`
	Available     int       `json:"available"`
	Reserved      int       `json:"reserved"`
	Sold          int       `json:"sold"`
	MinPerOrder   int       `json:"min_per_order"`
	MaxPerOrder   int       `json:"max_per_order"`
	LimitPerBuyer int       `json:"limit_per_buyer,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func toOfferView(o *presale.Offer) offerView {
	inv := o.Inventory
	return offerView{
		ID:            o.ID,
		SellerID:      o.SellerID,
		Title:         o.Title,
		Status:        string(o.Status),
		Start:         o.Window.Start,
		End:           o.Window.End,
		UnitPrice:     o.Pricing.UnitPrice.StringFixed(2),
		Currency:      o.Pricing.Currency,
		Total:         inv.Total,
		Available:     inv.Available,
		Reserved:      inv.Reserved,
		Sold:          inv.Sold,
		MinPerOrder:   inv.MinPerOrder,
		MaxPerOrder:   inv.MaxPerOrder,
		LimitPerBuyer: inv.LimitPerBuyer,
		UpdatedAt:     o.UpdatedAt,
	}
}

type offerStatsView struct {
	OfferID     string         `json:"offer_id"`
	Status      string         `json:"status"`
	Total       int            `json:"total"`
	Available   int            `json:"available"`
	Reserved    int            `json:"reserved"`
	Sold        int            `json:"sold"`
	SellThrough string         `json:"sell_through_pct"`
	Revenue     string         `json:"revenue"`
	Orders      map[string]int `json:"orders"`
}

func toOfferStatsView(s *presale.Stats) offerStatsView {
	return offerStatsView{
		OfferID:     s.OfferID,
		Status:      string(s.Status),
		Total:       s.Total,
		Available:   s.Available,
		Reserved:    s.Reserved,
		Sold:        s.Sold,
		SellThrough: s.SellThrough.StringFixed(2),
		Revenue:     s.Revenue.StringFixed(2),
		Orders:      s.Orders,
	}
}

type orderView struct {
	ID              string            `json:"id"`
	OfferID         string            `json:"offer_id"`
	BuyerID         string            `json:"buyer_id"`
	SellerID        string            `json:"seller_id"`
	Quantity        int               `json:"quantity"`
	Subtotal        string            `json:"subtotal"`
	ShippingFee     string            `json:"shipping_fee"`
	Total           string            `json:"total"`
	Currency        string            `json:"currency"`
	Status          string            `json:"status"`
	PaymentDeadline time.Time         `json:"payment_deadline"`
	TokenRef        string            `json:"token_ref,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	ShippedAt       *time.Time        `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time        `json:"delivered_at,omitempty"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	CancelledAt     *time.Time        `json:"cancelled_at,omitempty"`
	RefundedAt      *time.Time        `json:"refunded_at,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

func toOrderView(o *orders.Order) orderView {
	a := o.Amounts
	return orderView{
		ID:              o.ID,
		OfferID:         o.OfferID,
		BuyerID:         o.BuyerID,
		SellerID:        o.SellerID,
		Quantity:        o.Quantity,
		Subtotal:        a.Subtotal.StringFixed(2),
		ShippingFee:     a.ShippingFee.StringFixed(2),
		Total:           a.Total.StringFixed(2),
		Currency:        a.Currency,
		Status:          string(o.Status),
		PaymentDeadline: o.PaymentDeadline,
		TokenRef:        o.TokenRef,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		PaidAt:          o.PaidAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		CompletedAt:     o.CompletedAt,
		CancelledAt:     o.CancelledAt,
		RefundedAt:      o.RefundedAt,
		Metadata:        o.Metadata,
	}
}

type refundView struct {
	ID             string     `json:"id"`
	OrderID        string     `json:"order_id"`
	Status         string     `json:"status"`
	Reason         string     `json:"reason,omitempty"`
	RateBps        int        `json:"rate_bps,omitempty"`
	Amount         string     `json:"amount"`
	PreviousStatus string     `json:"previous_status"`
	CreatedAt      time.Time  `json:"created_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`
}

func toRefundView(r *orders.Refund) refundView {
	return refundView{
		ID:             r.ID,
		OrderID:        r.OrderID,
		Status:         string(r.Status),
		Reason:         r.Reason,
		RateBps:        r.RateBps,
		Amount:         r.Amount.StringFixed(2),
		PreviousStatus: string(r.PreviousStatus),
		CreatedAt:      r.CreatedAt,
		ResolvedAt:     r.ResolvedAt,
	}
}

type orderStatsView struct {
	Orders   int            `json:"orders"`
	Quantity int            `json:"quantity"`
	Gross    string         `json:"gross"`
	ByStatus map[string]int `json:"by_status"`
}

func toOrderStatsView(s *orders.Stats) orderStatsView {
	by := make(map[string]int, len(s.ByStatus))
	for k, v := range s.ByStatus {
		by[string(k)] = v
	}
	return orderStatsView{Orders: s.Orders, Quantity: s.Quantity, Gross: s.Gross.StringFixed(2), ByStatus: by}
}
