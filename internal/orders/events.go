package orders

import (
	"encoding/json"
	"time"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderPaid      = "OrderPaid"
	EventOrderConfirmed = "OrderConfirmed"
	EventOrderShipped   = "OrderShipped"
	EventOrderDelivered = "OrderDelivered"
	EventOrderCompleted = "OrderCompleted"
	EventOrderCancelled = "OrderCancelled"
	EventOrderDisputed  = "OrderDisputed"
	EventOrderRestored  = "OrderRestored"
	EventOrderRefunded  = "OrderRefunded"

	EventPaymentConfirmed = "PaymentConfirmed"
)

// Event is what the coordinator hands to a Publisher.
type Event struct {
	Type       string
	Order      *Order
	Reason     string
	OccurredAt time.Time
}

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

type OrderEventPayload struct {
	OrderID  string `json:"order_id"`
	OfferID  string `json:"offer_id"`
	BuyerID  string `json:"buyer_id"`
	Status   string `json:"status"`
	Quantity int    `json:"quantity"`
	Total    string `json:"total"`
	Currency string `json:"currency"`
	TokenRef string `json:"token_ref,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func NewOrderEventPayload(ev Event) OrderEventPayload {
	o := ev.Order
	return OrderEventPayload{
		OrderID:  o.ID,
		OfferID:  o.OfferID,
		BuyerID:  o.BuyerID,
		Status:   string(o.Status),
		Quantity: o.Quantity,
		Total:    o.Amounts.Total.StringFixed(2),
		Currency: o.Amounts.Currency,
		TokenRef: o.TokenRef,
		Reason:   ev.Reason,
	}
}

// PaymentConfirmedPayload is the inbound signal that a buyer's payment cleared.
type PaymentConfirmedPayload struct {
	OrderID string `json:"order_id"`
	BuyerID string `json:"buyer_id"`
	Method  string `json:"method"`
	Proof   string `json:"proof"`
}
