package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/repository"
)

var _ repository.CartRepository = (*cartRepo)(nil)

type cartRepo struct{ pool *pgxpool.Pool }

func NewCartRepo(pool *pgxpool.Pool) *cartRepo {
	return &cartRepo{pool: pool}
}

func (r *cartRepo) Items(ctx context.Context, tx repository.Tx, userID string) ([]model.CartItem, error) {
	const q = `SELECT user_id, product_id, product_type, quantity FROM cart_items WHERE user_id=$1 ORDER BY product_id;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []model.CartItem
	for rows.Next() {
		var it model.CartItem
		if err := rows.Scan(&it.UserID, &it.ProductID, &it.ProductType, &it.Quantity); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, it)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func (r *cartRepo) Add(ctx context.Context, tx repository.Tx, item model.CartItem) error {
	const q = `
INSERT INTO cart_items (user_id, product_id, product_type, quantity)
VALUES ($1,$2,$3,$4)
ON CONFLICT (user_id, product_id) DO UPDATE SET quantity=cart_items.quantity+$4;`
	_, err := execSQL(ctx, r.pool, tx, q, item.UserID, item.ProductID, item.ProductType, item.Quantity)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *cartRepo) Clear(ctx context.Context, tx repository.Tx, userID string) error {
	const q = `DELETE FROM cart_items WHERE user_id=$1;`
	if _, err := execSQL(ctx, r.pool, tx, q, userID); err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}
