package presale

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Service drives the offer lifecycle. Counter writes belong to Ledger.
type Service struct {
	repo      Repository
	purchases Purchases
	log       *zap.Logger
	now       func() time.Time
}

func NewService(repo Repository, purchases Purchases, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, purchases: purchases, log: log.Named("presale"), now: time.Now}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateOfferInput struct {
	Title         string
	Start         time.Time
	End           time.Time
	UnitPrice     decimal.Decimal
	Currency      string
	Total         int
	MinPerOrder   int
	MaxPerOrder   int
	LimitPerBuyer int
}

func (in CreateOfferInput) validate() error {
	switch {
	case strings.TrimSpace(in.Title) == "":
		return apperr.Validation("title is required")
	case in.Start.IsZero() || in.End.IsZero() || !in.End.After(in.Start):
		return apperr.Validation("window end must be after start")
	case !in.UnitPrice.IsPositive():
		return apperr.Validation("unit price must be positive")
	case len(in.Currency) != 3:
		return apperr.Validation("currency must be a 3-letter code")
	case in.Total <= 0:
		return apperr.Validation("total must be positive")
	case in.MinPerOrder < 0 || in.MaxPerOrder < 0 || in.LimitPerBuyer < 0:
		return apperr.Validation("limits must not be negative")
	case in.MaxPerOrder > 0 && in.MaxPerOrder < in.MinPerOrder:
		return apperr.Validation("max per order below min per order")
	case in.LimitPerBuyer > 0 && in.LimitPerBuyer < in.MinPerOrder:
		return apperr.Validation("per-buyer limit below min per order")
	}
	return nil
}

func (s *Service) CreateOffer(ctx context.Context, sellerID string, in CreateOfferInput) (*Offer, error) {
	if sellerID == "" {
		return nil, apperr.Validation("seller id is required")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}
	minPer := in.MinPerOrder
	if minPer == 0 {
		minPer = 1
	}
	maxPer := in.MaxPerOrder
	if maxPer == 0 {
		maxPer = in.Total
	}

	now := s.now().UTC()
	o := &Offer{
		ID:       uuid.NewString(),
		SellerID: sellerID,
		Title:    strings.TrimSpace(in.Title),
		Status:   StatusDraft,
		Window:   Window{Start: in.Start.UTC(), End: in.End.UTC()},
		Pricing:  Pricing{UnitPrice: in.UnitPrice, Currency: strings.ToUpper(in.Currency)},
		Inventory: Inventory{
			Total:         in.Total,
			Available:     in.Total,
			MinPerOrder:   minPer,
			MaxPerOrder:   maxPer,
			LimitPerBuyer: in.LimitPerBuyer,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("presale: create offer: %w", err)
	}
	s.log.Info("offer created", zap.String("offer_id", o.ID), zap.String("seller_id", sellerID), zap.Int("total", in.Total))
	return o, nil
}

func (s *Service) GetOffer(ctx context.Context, offerID string) (*Offer, error) {
	return s.repo.Get(ctx, offerID)
}

func (s *Service) owned(ctx context.Context, offerID, sellerID string) (*Offer, error) {
	o, err := s.repo.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.SellerID != sellerID {
		return nil, ErrForbidden
	}
	return o, nil
}

func (s *Service) transition(ctx context.Context, o *Offer, to Status) (*Offer, error) {
	if !CanTransition(o.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatus, o.Status, to)
	}
	updated, err := s.repo.TransitionStatus(ctx, o.ID, o.Status, to, s.now().UTC())
	if err != nil {
		return nil, err
	}
	s.log.Info("offer status changed",
		zap.String("offer_id", o.ID),
		zap.String("from", string(o.Status)),
		zap.String("to", string(to)),
	)
	return updated, nil
}

// SubmitOffer sends a draft to audit.
func (s *Service) SubmitOffer(ctx context.Context, offerID, sellerID string) (*Offer, error) {
	o, err := s.owned(ctx, offerID, sellerID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, o, StatusPendingAudit)
}

// ReviewOffer records the operator's audit decision; a rejection returns the offer to draft.
func (s *Service) ReviewOffer(ctx context.Context, offerID string, approve bool) (*Offer, error) {
	o, err := s.repo.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPendingAudit {
		return nil, fmt.Errorf("%w: review requires %s, offer is %s", ErrInvalidStatus, StatusPendingAudit, o.Status)
	}
	if approve {
		return s.transition(ctx, o, StatusApproved)
	}
	return s.transition(ctx, o, StatusDraft)
}

// PublishOffer opens an approved offer: active inside its window, scheduled before it.
func (s *Service) PublishOffer(ctx context.Context, offerID, sellerID string) (*Offer, error) {
	o, err := s.owned(ctx, offerID, sellerID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusApproved {
		return nil, fmt.Errorf("%w: publish requires %s, offer is %s", ErrInvalidStatus, StatusApproved, o.Status)
	}
	now := s.now()
	switch {
	case now.After(o.Window.End):
		return nil, ErrOutsideWindow
	case now.Before(o.Window.Start):
		return s.transition(ctx, o, StatusScheduled)
	default:
		return s.transition(ctx, o, StatusActive)
	}
}

func (s *Service) PauseOffer(ctx context.Context, offerID, sellerID string) (*Offer, error) {
	o, err := s.owned(ctx, offerID, sellerID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusActive {
		return nil, fmt.Errorf("%w: pause requires %s, offer is %s", ErrInvalidStatus, StatusActive, o.Status)
	}
	return s.transition(ctx, o, StatusPaused)
}

// ResumeOffer reactivates a paused offer only while its window is open and stock remains.
func (s *Service) ResumeOffer(ctx context.Context, offerID, sellerID string) (*Offer, error) {
	o, err := s.owned(ctx, offerID, sellerID)
	if err != nil {
		return nil, err
	}
	if o.Status != StatusPaused {
		return nil, fmt.Errorf("%w: resume requires %s, offer is %s", ErrInvalidStatus, StatusPaused, o.Status)
	}
	if !o.Window.Contains(s.now()) {
		return nil, ErrOutsideWindow
	}
	if o.Inventory.Available <= 0 {
		return nil, ErrInsufficientStock
	}
	return s.transition(ctx, o, StatusActive)
}

// CancelOffer is allowed before the offer goes active, or while it is paused.
func (s *Service) CancelOffer(ctx context.Context, offerID, sellerID string) (*Offer, error) {
	o, err := s.owned(ctx, offerID, sellerID)
	if err != nil {
		return nil, err
	}
	if o.Status == StatusPaused && o.Inventory.Sold > 0 {
		return nil, fmt.Errorf("%w: offer has %d units sold", ErrInvalidStatus, o.Inventory.Sold)
	}
	return s.transition(ctx, o, StatusCancelled)
}

func (s *Service) ArchiveOffer(ctx context.Context, offerID, sellerID string) (*Offer, error) {
	o, err := s.owned(ctx, offerID, sellerID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, o, StatusArchived)
}

func (s *Service) GetOfferStats(ctx context.Context, offerID string) (*Stats, error) {
	o, err := s.repo.Get(ctx, offerID)
	if err != nil {
		return nil, err
	}
	counts, err := s.purchases.CountByStatus(ctx, offerID)
	if err != nil {
		return nil, fmt.Errorf("presale: order counts: %w", err)
	}
	inv := o.Inventory
	st := &Stats{
		OfferID:     o.ID,
		Status:      o.Status,
		Total:       inv.Total,
		Available:   inv.Available,
		Reserved:    inv.Reserved,
		Sold:        inv.Sold,
		SellThrough: decimal.Zero,
		Revenue:     o.Pricing.UnitPrice.Mul(decimal.NewFromInt(int64(inv.Sold - inv.Reserved))),
		Orders:      counts,
	}
	if inv.Total > 0 {
		st.SellThrough = decimal.NewFromInt(int64(inv.Sold)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(inv.Total))).
			Round(2)
	}
	return st, nil
}

// SyncWindows applies the time-driven transitions: scheduled offers whose window
// opened become active, and open offers whose window closed become ended.
func (s *Service) SyncWindows(ctx context.Context) (activated, ended int, err error) {
	now := s.now()
	offers, err := s.repo.ListByStatus(ctx, StatusScheduled, StatusActive, StatusPaused, StatusSoldOut)
	if err != nil {
		return 0, 0, fmt.Errorf("presale: list open offers: %w", err)
	}
	for _, o := range offers {
		var to Status
		switch {
		case now.After(o.Window.End):
			to = StatusEnded
		case o.Status == StatusScheduled && o.Window.Contains(now):
			to = StatusActive
		default:
			continue
		}
		if _, terr := s.transition(ctx, o, to); terr != nil {
			// lost a race with a buyer or seller; next sweep re-evaluates
			s.log.Warn("window sync skipped", zap.String("offer_id", o.ID), zap.Error(terr))
			continue
		}
		if to == StatusActive {
			activated++
		} else {
			ended++
		}
	}
	return activated, ended, nil
}
