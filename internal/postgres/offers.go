package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-presale-orders/internal/presale"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type OfferRepo struct{ DB *pgxpool.Pool }

var _ presale.Repository = (*OfferRepo)(nil)

const offerCols = `id, seller_id, title, status, window_start, window_end, unit_price, currency,
	total, available, reserved, sold, min_per_order, max_per_order, limit_per_buyer, created_at, updated_at`

func scanOffer(row pgx.Row) (*presale.Offer, error) {
	var o presale.Offer
	var status string
	inv := &o.Inventory
	err := row.Scan(&o.ID, &o.SellerID, &o.Title, &status, &o.Window.Start, &o.Window.End,
		&o.Pricing.UnitPrice, &o.Pricing.Currency,
		&inv.Total, &inv.Available, &inv.Reserved, &inv.Sold,
		&inv.MinPerOrder, &inv.MaxPerOrder, &inv.LimitPerBuyer, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, presale.ErrNotFound
		}
		return nil, err
	}
	o.Status = presale.Status(status)
	return &o, nil
}

func (r *OfferRepo) Create(ctx context.Context, o *presale.Offer) error {
	inv := o.Inventory
	_, err := conn(ctx, r.DB).Exec(ctx, `
		INSERT INTO offers(`+offerCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		o.ID, o.SellerID, o.Title, string(o.Status), o.Window.Start, o.Window.End,
		o.Pricing.UnitPrice, o.Pricing.Currency,
		inv.Total, inv.Available, inv.Reserved, inv.Sold,
		inv.MinPerOrder, inv.MaxPerOrder, inv.LimitPerBuyer, o.CreatedAt, o.UpdatedAt)
	if pgCode(err) == codeUniqueViolation {
		return fmt.Errorf("%w: offer %s", ErrDuplicate, o.ID)
	}
	return err
}

func (r *OfferRepo) Get(ctx context.Context, id string) (*presale.Offer, error) {
	return scanOffer(conn(ctx, r.DB).QueryRow(ctx, `SELECT `+offerCols+` FROM offers WHERE id=$1`, id))
}

func (r *OfferRepo) TransitionStatus(ctx context.Context, id string, from, to presale.Status, at time.Time) (*presale.Offer, error) {
	o, err := scanOffer(conn(ctx, r.DB).QueryRow(ctx, `
		UPDATE offers SET status=$3, updated_at=$4
		WHERE id=$1 AND status=$2
		RETURNING `+offerCols, id, string(from), string(to), at))
	if errors.Is(err, presale.ErrNotFound) {
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, presale.ErrStatusChanged
	}
	return o, err
}

func (r *OfferRepo) ListByStatus(ctx context.Context, statuses ...presale.Status) ([]*presale.Offer, error) {
	want := make([]string, 0, len(statuses))
	for _, s := range statuses {
		want = append(want, string(s))
	}
	rows, err := conn(ctx, r.DB).Query(ctx, `
		SELECT `+offerCols+` FROM offers
		WHERE cardinality($1::text[]) = 0 OR status = ANY($1)
		ORDER BY created_at`, want)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*presale.Offer, 0)
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Reduce is one conditional UPDATE: the row lock Postgres takes for it makes the
// available >= qty test and the decrement a single step.
func (r *OfferRepo) Reduce(ctx context.Context, id string, qty int, at time.Time) (*presale.Offer, error) {
	o, err := scanOffer(conn(ctx, r.DB).QueryRow(ctx, `
		UPDATE offers SET
			available  = available - $2,
			sold       = sold + $2,
			reserved   = reserved + $2,
			status     = CASE WHEN available - $2 = 0 THEN 'sold_out' ELSE status END,
			updated_at = $3
		WHERE id=$1 AND status='active' AND available >= $2
		RETURNING `+offerCols, id, qty, at))
	if !errors.Is(err, presale.ErrNotFound) {
		return o, err
	}

	// nothing matched: report why
	cur, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if cur.Status == presale.StatusSoldOut || cur.Inventory.Available < qty {
		return nil, presale.ErrInsufficientStock
	}
	return nil, presale.ErrNotActive
}

func (r *OfferRepo) Commit(ctx context.Context, id string, qty int, at time.Time) (*presale.Offer, error) {
	return scanOffer(conn(ctx, r.DB).QueryRow(ctx, `
		UPDATE offers SET reserved = GREATEST(reserved - $2, 0), updated_at = $3
		WHERE id=$1
		RETURNING `+offerCols, id, qty, at))
}

func (r *OfferRepo) Release(ctx context.Context, id string, qty int, fromReserved bool, at time.Time) (*presale.Offer, error) {
	return scanOffer(conn(ctx, r.DB).QueryRow(ctx, `
		UPDATE offers SET
			available = available + LEAST($2, sold),
			sold      = sold - LEAST($2, sold),
			reserved  = LEAST(
				CASE WHEN $3 THEN GREATEST(reserved - $2, 0) ELSE reserved END,
				sold - LEAST($2, sold)),
			status = CASE
				WHEN status = 'sold_out' AND available + LEAST($2, sold) > 0
					AND $4 BETWEEN window_start AND window_end THEN 'active'
				ELSE status END,
			updated_at = $4
		WHERE id=$1
		RETURNING `+offerCols, id, qty, fromReserved, at))
}
