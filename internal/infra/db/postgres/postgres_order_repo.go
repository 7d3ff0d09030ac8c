package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/repository"
)

var _ repository.OrderRepository = (*orderRepo)(nil)

type orderRepo struct{ pool *pgxpool.Pool }

func NewOrderRepo(pool *pgxpool.Pool) *orderRepo {
	return &orderRepo{pool: pool}
}

const orderColumns = `id, user_id, status, subtotal, discount, total, provider_payment_id, created_at, paid_at`

func (r *orderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `
INSERT INTO orders (id, user_id, status, subtotal, discount, total, provider_payment_id, created_at, paid_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  status=$3, subtotal=$4, discount=$5, total=$6, provider_payment_id=$7, paid_at=$9;`

	providerID := nullIfEmpty(o.ProviderPaymentID)
	_, err := execSQL(ctx, r.pool, tx, q, o.ID, o.UserID, o.Status, o.Subtotal, o.Discount, o.Total, providerID, o.CreatedAt, o.PaidAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}

	const qi = `
INSERT INTO order_items (id, order_id, product_id, product_type, title, price, quantity)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET title=$5, price=$6, quantity=$7;`
	for _, it := range o.Items {
		if _, err := execSQL(ctx, r.pool, tx, qi, it.ID, o.ID, it.ProductID, it.ProductType, it.Title, it.Price, it.Quantity); err != nil {
			if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
				return err
			}
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *orderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.findOne(ctx, tx, q, id)
}

func (r *orderRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE provider_payment_id=$1 LIMIT 1;`
	return r.findOne(ctx, tx, q, paymentID)
}

func (r *orderRepo) findOne(ctx context.Context, tx repository.Tx, q string, arg any) (*model.Order, error) {
	row, err := pickRow(ctx, r.pool, tx, q, arg)
	if err != nil {
		return nil, err
	}
	o, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := r.loadItems(ctx, tx, o); err != nil {
		return nil, err
	}
	return o, nil
}

func (r *orderRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Order, error) {
	const q = `SELECT ` + orderColumns + ` FROM orders WHERE user_id=$1 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	for _, o := range out {
		if err := r.loadItems(ctx, tx, o); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *orderRepo) SetProviderPaymentID(ctx context.Context, tx repository.Tx, orderID, paymentID string) error {
	const q = `UPDATE orders SET provider_payment_id=$2 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, orderID, paymentID)
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

// MarkCompleted is the conditional write that makes fulfillment effectively
// once: the status predicate and the update run in one statement.
func (r *orderRepo) MarkCompleted(ctx context.Context, tx repository.Tx, orderID string, paidAt time.Time) (bool, error) {
	const q = `UPDATE orders SET status='completed', paid_at=$2 WHERE id=$1 AND status='awaiting_payment';`
	tag, err := execSQL(ctx, r.pool, tx, q, orderID, paidAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}

func (r *orderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, orderID string, status model.OrderStatus) error {
	const q = `UPDATE orders SET status=$2 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, orderID, status)
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

func (r *orderRepo) loadItems(ctx context.Context, tx repository.Tx, o *model.Order) error {
	const q = `SELECT id, order_id, product_id, product_type, title, price, quantity FROM order_items WHERE order_id=$1 ORDER BY id;`
	rows, err := queryRows(ctx, r.pool, tx, q, o.ID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	defer rows.Close()

	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductType, &it.Title, &it.Price, &it.Quantity); err != nil {
			return domain.ErrReadDatabaseRow
		}
		o.Items = append(o.Items, it)
	}
	if rows.Err() != nil {
		return domain.ErrOperationFailed
	}
	return nil
}

func scanOrder(row pgx.Row) (*model.Order, error) {
	o := &model.Order{}
	var providerID *string
	if err := row.Scan(&o.ID, &o.UserID, &o.Status, &o.Subtotal, &o.Discount, &o.Total, &providerID, &o.CreatedAt, &o.PaidAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if providerID != nil {
		o.ProviderPaymentID = *providerID
	}
	return o, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
