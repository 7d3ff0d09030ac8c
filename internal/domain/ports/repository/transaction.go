package repository

import (
	"context"
	"time"

	"course-billing/internal/domain/model"
)

// -----------------------------
// Transaction ledger
// -----------------------------

type TransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.Transaction) error
	FindByProviderPaymentID(ctx context.Context, tx Tx, paymentID string) (*model.Transaction, error)
	FindByContextID(ctx context.Context, tx Tx, contextID string) (*model.Transaction, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]*model.Transaction, error)
	// UpdateStatus persists the mapped status and raw provider status;
	// completedAt is only set when non-nil (an earlier value is kept).
	UpdateStatus(ctx context.Context, tx Tx, paymentID string, status model.TransactionStatus, providerStatus string, completedAt *time.Time) error
	// AppendEvent adds one audit record to the entry's event log. Duplicate
	// deliveries only grow the log; nothing is overwritten.
	AppendEvent(ctx context.Context, tx Tx, paymentID string, event model.TransactionEvent) error
	ListPendingOlderThan(ctx context.Context, tx Tx, olderThan time.Time, limit int) ([]*model.Transaction, error)
}
