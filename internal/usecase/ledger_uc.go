package usecase

import (
	"context"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ LedgerUseCase = (*ledgerUC)(nil)

// LedgerUseCase serves read access to the transaction ledger for support and
// admin tooling. All writes go through the payment orchestrator.
type LedgerUseCase interface {
	GetByProviderPaymentID(ctx context.Context, paymentID string) (*model.Transaction, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Transaction, error)
}

type ledgerUC struct {
	ledger repository.TransactionRepository
}

func NewLedgerUseCase(ledger repository.TransactionRepository) *ledgerUC {
	return &ledgerUC{ledger: ledger}
}

func (u *ledgerUC) GetByProviderPaymentID(ctx context.Context, paymentID string) (*model.Transaction, error) {
	if paymentID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.ledger.FindByProviderPaymentID(ctx, nil, paymentID)
}

func (u *ledgerUC) ListByUser(ctx context.Context, userID string) ([]*model.Transaction, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return u.ledger.ListByUser(ctx, nil, userID)
}
