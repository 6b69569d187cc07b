package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/ariefcatur/go-presale-orders/internal/presale"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type OrderRepo struct{ DB *pgxpool.Pool }

var (
	_ orders.Repository = (*OrderRepo)(nil)
	_ presale.Purchases = (*OrderRepo)(nil)
)

const orderCols = `id, buyer_id, offer_id, seller_id, quantity, subtotal, shipping_fee, total, currency,
	recipient, phone, address, status, payment_deadline, token_ref, metadata, created_at, updated_at,
	paid_at, confirmed_at, shipped_at, delivered_at, completed_at, cancelled_at, refunded_at, disputed_at`

func scanOrder(row pgx.Row) (*orders.Order, error) {
	var o orders.Order
	var status string
	a, sh := &o.Amounts, &o.Shipping
	err := row.Scan(&o.ID, &o.BuyerID, &o.OfferID, &o.SellerID, &o.Quantity,
		&a.Subtotal, &a.ShippingFee, &a.Total, &a.Currency,
		&sh.Recipient, &sh.Phone, &sh.Address,
		&status, &o.PaymentDeadline, &o.TokenRef, &o.Metadata, &o.CreatedAt, &o.UpdatedAt,
		&o.PaidAt, &o.ConfirmedAt, &o.ShippedAt, &o.DeliveredAt, &o.CompletedAt,
		&o.CancelledAt, &o.RefundedAt, &o.DisputedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, orders.ErrNotFound
		}
		return nil, err
	}
	o.Status = orders.Status(status)
	return &o, nil
}

func metadata(o *orders.Order) map[string]string {
	if o.Metadata == nil {
		return map[string]string{}
	}
	return o.Metadata
}

func (r *OrderRepo) Create(ctx context.Context, o *orders.Order) error {
	a, sh := o.Amounts, o.Shipping
	_, err := conn(ctx, r.DB).Exec(ctx, `
		INSERT INTO orders(`+orderCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,
		        $19,$20,$21,$22,$23,$24,$25,$26)`,
		o.ID, o.BuyerID, o.OfferID, o.SellerID, o.Quantity,
		a.Subtotal, a.ShippingFee, a.Total, a.Currency,
		sh.Recipient, sh.Phone, sh.Address,
		string(o.Status), o.PaymentDeadline, o.TokenRef, metadata(o), o.CreatedAt, o.UpdatedAt,
		o.PaidAt, o.ConfirmedAt, o.ShippedAt, o.DeliveredAt, o.CompletedAt,
		o.CancelledAt, o.RefundedAt, o.DisputedAt)
	if pgCode(err) == codeUniqueViolation {
		return fmt.Errorf("%w: %s", orders.ErrAlreadyExists, o.ID)
	}
	return err
}

func (r *OrderRepo) Get(ctx context.Context, id string) (*orders.Order, error) {
	return scanOrder(conn(ctx, r.DB).QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1`, id))
}

func (r *OrderRepo) GetForUpdate(ctx context.Context, id string) (*orders.Order, error) {
	return scanOrder(conn(ctx, r.DB).QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id=$1 FOR UPDATE`, id))
}

// Update writes the mutable columns. The status guard in WHERE turns the write into a
// compare-and-set against concurrent transitions.
func (r *OrderRepo) Update(ctx context.Context, o *orders.Order, from orders.Status) error {
	ct, err := conn(ctx, r.DB).Exec(ctx, `
		UPDATE orders SET
			status=$3, token_ref=$4, metadata=$5, updated_at=$6,
			paid_at=$7, confirmed_at=$8, shipped_at=$9, delivered_at=$10,
			completed_at=$11, cancelled_at=$12, refunded_at=$13, disputed_at=$14
		WHERE id=$1 AND status=$2`,
		o.ID, string(from), string(o.Status), o.TokenRef, metadata(o), o.UpdatedAt,
		o.PaidAt, o.ConfirmedAt, o.ShippedAt, o.DeliveredAt,
		o.CompletedAt, o.CancelledAt, o.RefundedAt, o.DisputedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	cur, err := r.Get(ctx, o.ID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: order %s is %s, expected %s", orders.ErrStatusChanged, o.ID, cur.Status, from)
}

func (r *OrderRepo) Stats(ctx context.Context, f orders.StatsFilter) (*orders.Stats, error) {
	rows, err := conn(ctx, r.DB).Query(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(quantity), 0),
		       COALESCE(SUM(total) FILTER (WHERE paid_at IS NOT NULL AND status <> 'refunded'), 0)
		FROM orders
		WHERE ($1 = '' OR offer_id = $1)
		  AND ($2 = '' OR buyer_id = $2)
		  AND ($3 = '' OR seller_id = $3)
		GROUP BY status`, f.OfferID, f.BuyerID, f.SellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	st := &orders.Stats{ByStatus: make(map[orders.Status]int), Gross: decimal.Zero}
	for rows.Next() {
		var (
			status string
			n, qty int
			gross  decimal.Decimal
		)
		if err := rows.Scan(&status, &n, &qty, &gross); err != nil {
			return nil, err
		}
		s := orders.Status(status)
		st.Orders += n
		st.ByStatus[s] = n
		if s.Live() {
			st.Quantity += qty
		}
		st.Gross = st.Gross.Add(gross)
	}
	return st, rows.Err()
}

func (r *OrderRepo) SumBuyerQuantity(ctx context.Context, offerID, buyerID string) (int, error) {
	var n int
	err := conn(ctx, r.DB).QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM orders
		WHERE offer_id=$1 AND buyer_id=$2 AND status NOT IN ('cancelled', 'refunded')`,
		offerID, buyerID).Scan(&n)
	return n, err
}

func (r *OrderRepo) CountByStatus(ctx context.Context, offerID string) (map[string]int, error) {
	rows, err := conn(ctx, r.DB).Query(ctx, `SELECT status, COUNT(*) FROM orders WHERE offer_id=$1 GROUP BY status`, offerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var s string
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		out[s] = n
	}
	return out, rows.Err()
}
