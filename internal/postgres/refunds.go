package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RefundRepo struct{ DB *pgxpool.Pool }

var _ orders.RefundRepository = (*RefundRepo)(nil)

const refundCols = `id, order_id, buyer_id, amount, rate_bps, reason, status, previous_status, created_at, resolved_at`

func scanRefund(row pgx.Row) (*orders.Refund, error) {
	var r orders.Refund
	var status, prev string
	err := row.Scan(&r.ID, &r.OrderID, &r.BuyerID, &r.Amount, &r.RateBps, &r.Reason,
		&status, &prev, &r.CreatedAt, &r.ResolvedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, orders.ErrRefundNotFound
		}
		return nil, err
	}
	r.Status = orders.RefundStatus(status)
	r.PreviousStatus = orders.Status(prev)
	return &r, nil
}

func (r *RefundRepo) Create(ctx context.Context, ref *orders.Refund) error {
	_, err := conn(ctx, r.DB).Exec(ctx, `
		INSERT INTO refunds(`+refundCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		ref.ID, ref.OrderID, ref.BuyerID, ref.Amount, ref.RateBps, ref.Reason,
		string(ref.Status), string(ref.PreviousStatus), ref.CreatedAt, ref.ResolvedAt)
	if pgCode(err) == codeUniqueViolation {
		// the partial index allows one pending request per order
		return fmt.Errorf("%w: order %s", orders.ErrRefundPending, ref.OrderID)
	}
	return err
}

func (r *RefundRepo) Get(ctx context.Context, id string) (*orders.Refund, error) {
	return scanRefund(conn(ctx, r.DB).QueryRow(ctx, `SELECT `+refundCols+` FROM refunds WHERE id=$1`, id))
}

func (r *RefundRepo) GetForUpdate(ctx context.Context, id string) (*orders.Refund, error) {
	return scanRefund(conn(ctx, r.DB).QueryRow(ctx, `SELECT `+refundCols+` FROM refunds WHERE id=$1 FOR UPDATE`, id))
}

func (r *RefundRepo) Update(ctx context.Context, ref *orders.Refund, from orders.RefundStatus) error {
	ct, err := conn(ctx, r.DB).Exec(ctx, `
		UPDATE refunds SET amount=$3, rate_bps=$4, status=$5, resolved_at=$6
		WHERE id=$1 AND status=$2`,
		ref.ID, string(from), ref.Amount, ref.RateBps, string(ref.Status), ref.ResolvedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, ref.ID); err != nil {
		return err
	}
	return orders.ErrRefundResolved
}

func (r *RefundRepo) PendingForOrder(ctx context.Context, orderID string) (*orders.Refund, error) {
	return scanRefund(conn(ctx, r.DB).QueryRow(ctx, `
		SELECT `+refundCols+` FROM refunds WHERE order_id=$1 AND status='pending'`, orderID))
}
