package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const txColumns = `id, context_id, user_id, provider_payment_id, method, amount, currency, status, provider_status, events, error_message, created_at, updated_at, completed_at`

func (r *transactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	events, err := json.Marshal(t.Events)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `
INSERT INTO transactions (id, context_id, user_id, provider_payment_id, method, amount, currency, status, provider_status, events, error_message, created_at, updated_at, completed_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
ON CONFLICT (id) DO UPDATE SET
  provider_payment_id=$4, status=$8, provider_status=$9, events=$10, error_message=$11, updated_at=$13, completed_at=$14;`

	_, err = execSQL(ctx, r.pool, tx, q,
		t.ID, t.ContextID, t.UserID, nullIfEmpty(t.ProviderPaymentID), t.Method, t.Amount, t.Currency,
		t.Status, t.ProviderStatus, events, t.ErrorMessage, t.CreatedAt, t.UpdatedAt, t.CompletedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *transactionRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Transaction, error) {
	q := `SELECT ` + txColumns + ` FROM transactions WHERE provider_payment_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, paymentID)
	if err != nil {
		return nil, err
	}
	return scanTransaction(row)
}

func (r *transactionRepo) FindByContextID(ctx context.Context, tx repository.Tx, contextID string) (*model.Transaction, error) {
	const q = `SELECT ` + txColumns + ` FROM transactions WHERE context_id=$1 ORDER BY created_at DESC LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, contextID)
	if err != nil {
		return nil, err
	}
	return scanTransaction(row)
}

func (r *transactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Transaction, error) {
	const q = `SELECT ` + txColumns + ` FROM transactions WHERE user_id=$1 ORDER BY created_at DESC;`
	return r.list(ctx, tx, q, userID)
}

func (r *transactionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, paymentID string, status model.TransactionStatus, providerStatus string, completedAt *time.Time) error {
	const q = `UPDATE transactions SET status=$2, provider_status=$3, completed_at=COALESCE($4, completed_at), updated_at=NOW() WHERE provider_payment_id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, paymentID, status, providerStatus, completedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// AppendEvent grows the JSONB event log in place; nothing is rewritten.
func (r *transactionRepo) AppendEvent(ctx context.Context, tx repository.Tx, paymentID string, event model.TransactionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return domain.ErrInvalidArgument
	}
	const q = `UPDATE transactions SET events = events || $2::jsonb, updated_at=NOW() WHERE provider_payment_id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, paymentID, payload)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *transactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + txColumns + ` FROM transactions WHERE status IN ('pending','processing') AND created_at < $1 ORDER BY created_at ASC LIMIT $2;`
	return r.list(ctx, tx, q, olderThan, limit)
}

func (r *transactionRepo) list(ctx context.Context, tx repository.Tx, q string, args ...interface{}) ([]*model.Transaction, error) {
	rows, err := queryRows(ctx, r.pool, tx, q, args...)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func scanTransaction(row pgx.Row) (*model.Transaction, error) {
	t := &model.Transaction{}
	var (
		providerID *string
		events     []byte
	)
	if err := row.Scan(&t.ID, &t.ContextID, &t.UserID, &providerID, &t.Method, &t.Amount, &t.Currency,
		&t.Status, &t.ProviderStatus, &events, &t.ErrorMessage, &t.CreatedAt, &t.UpdatedAt, &t.CompletedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if providerID != nil {
		t.ProviderPaymentID = *providerID
	}
	if len(events) > 0 {
		if err := json.Unmarshal(events, &t.Events); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
	}
	return t, nil
}
