package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-presale-orders/internal/apperr"
	"github.com/ariefcatur/go-presale-orders/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

var (
	ErrSerialization = apperr.New(apperr.KindContention, "SERIALIZATION_FAILURE", "postgres: transaction could not be serialized")
	ErrDuplicate     = apperr.New(apperr.KindConflict, "DUPLICATE_ID", "postgres: record already exists")
)

type txKey struct{}

// TxManager runs serializable transactions and carries the open pgx.Tx in ctx so
// every repository call made with that ctx joins it.
type TxManager struct {
	pool        *pgxpool.Pool
	maxAttempts int
	log         *zap.Logger
}

func NewTxManager(pool *pgxpool.Pool, maxAttempts int, log *zap.Logger) *TxManager {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &TxManager{pool: pool, maxAttempts: maxAttempts, log: log.Named("postgres")}
}

var _ orders.Transactor = (*TxManager)(nil)

// WithinTx retries the whole of fn when Postgres aborts it with a serialization
// failure or deadlock. fn must therefore be safe to run again.
func (m *TxManager) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}
	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		err = m.once(ctx, fn)
		switch pgCode(err) {
		case codeSerializationFailure, codeDeadlockDetected:
			m.log.Debug("retrying serializable tx", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %w", ErrSerialization, err)
}

func (m *TxManager) once(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	tx, err := m.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if err = fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
