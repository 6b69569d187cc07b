package presale

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft        Status = "draft"
	StatusPendingAudit Status = "pending_audit"
	StatusApproved     Status = "approved"
	StatusScheduled    Status = "scheduled"
	StatusActive       Status = "active"
	StatusPaused       Status = "paused"
	StatusSoldOut      Status = "sold_out"
	StatusEnded        Status = "ended"
	StatusCancelled    Status = "cancelled"
	StatusArchived     Status = "archived"
)

var validNext = map[Status]map[Status]bool{
	StatusDraft:        {StatusPendingAudit: true, StatusCancelled: true},
	StatusPendingAudit: {StatusApproved: true, StatusDraft: true, StatusCancelled: true},
	StatusApproved:     {StatusScheduled: true, StatusActive: true, StatusCancelled: true},
	StatusScheduled:    {StatusActive: true, StatusEnded: true, StatusCancelled: true},
	StatusActive:       {StatusPaused: true, StatusSoldOut: true, StatusEnded: true},
	StatusPaused:       {StatusActive: true, StatusEnded: true, StatusCancelled: true},
	StatusSoldOut:      {StatusActive: true, StatusEnded: true},
	StatusEnded:        {StatusArchived: true},
	StatusCancelled:    {StatusArchived: true},
	StatusArchived:     {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t lies in [Start, End].
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

type Pricing struct {
	UnitPrice decimal.Decimal
	Currency  string
}

// Inventory is the offer's stock quadruple plus purchase limits.
// available + sold == total holds after every committed write; reserved counts the
// sold units whose orders are still awaiting payment.
type Inventory struct {
	Total     int
	Available int
	Reserved  int
	Sold      int

	MinPerOrder int
	MaxPerOrder int
	// LimitPerBuyer caps a buyer's cumulative live quantity; 0 means no cap.
	LimitPerBuyer int
}

type Offer struct {
	ID        string
	SellerID  string
	Title     string
	Status    Status
	Window    Window
	Pricing   Pricing
	Inventory Inventory
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	cp := *o
	return &cp
}

// Stats is the read model returned by GetOfferStats.
type Stats struct {
	OfferID   string
	Status    Status
	Total     int
	Available int
	Reserved  int
	Sold      int
	// SellThrough is sold/total in percent, two decimals.
	SellThrough decimal.Decimal
	Revenue     decimal.Decimal
	Orders      map[string]int
}
