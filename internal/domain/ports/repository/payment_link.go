package repository

import (
	"context"
	"time"

	"course-billing/internal/domain/model"
)

// -----------------------------
// Payment links
// -----------------------------

type PaymentLinkRepository interface {
	Save(ctx context.Context, tx Tx, l *model.PaymentLink) error
	FindByCode(ctx context.Context, tx Tx, code string) (*model.PaymentLink, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.PaymentLink, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.PaymentLink, error)
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.LinkStatus) error
	// IncrementUses atomically bumps current_uses and flips the link to
	// exhausted in the same statement when the usage policy is now satisfied.
	IncrementUses(ctx context.Context, tx Tx, id string) error
	Delete(ctx context.Context, tx Tx, id string) error

	SavePayment(ctx context.Context, tx Tx, p *model.LinkPayment) error
	FindPaymentByID(ctx context.Context, tx Tx, id string) (*model.LinkPayment, error)
	ListPaymentsByLink(ctx context.Context, tx Tx, linkID string) ([]*model.LinkPayment, error)
	UpdatePayment(ctx context.Context, tx Tx, id string, status model.LinkPaymentStatus, providerPaymentID string, paidAt *time.Time) error
}
