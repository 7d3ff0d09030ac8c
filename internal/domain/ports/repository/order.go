package repository

import (
	"context"
	"time"

	"course-billing/internal/domain/model"
)

// -----------------------------
// Orders
// -----------------------------

type OrderRepository interface {
	Save(ctx context.Context, tx Tx, o *model.Order) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Order, error)
	FindByProviderPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Order, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Order, error)
	SetProviderPaymentID(ctx context.Context, tx Tx, orderID, paymentID string) error
	// MarkCompleted flips status to completed and sets paid_at only when the
	// current status is awaiting_payment; reports whether the row changed.
	// This conditional write is the order-level idempotency guard.
	MarkCompleted(ctx context.Context, tx Tx, orderID string, paidAt time.Time) (bool, error)
	UpdateStatus(ctx context.Context, tx Tx, orderID string, status model.OrderStatus) error
}

// -----------------------------
// Carts
// -----------------------------

type CartRepository interface {
	Items(ctx context.Context, tx Tx, userID string) ([]model.CartItem, error)
	Add(ctx context.Context, tx Tx, item model.CartItem) error
	Clear(ctx context.Context, tx Tx, userID string) error
}
