package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-billing/internal/domain/ports/repository"
	"course-billing/internal/usecase"
)

// PaymentReconciler periodically scans for stale non-final ledger entries and
// re-pulls their provider state. This covers deliveries that never arrived
// and pollers that died with the process.
type PaymentReconciler struct {
	uc         usecase.PaymentUseCase
	ledger     repository.TransactionRepository
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a pending entry must be to retry
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.PaymentUseCase, ledger repository.TransactionRepository, interval, staleAfter time.Duration, logger *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &PaymentReconciler{uc: uc, ledger: ledger, interval: interval, staleAfter: staleAfter, log: logger}
}

func (w *PaymentReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.ledger.ListPendingOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("reconciler: list pending failed")
		return
	}
	for _, entry := range pending {
		if entry.ProviderPaymentID == "" {
			continue
		}
		status, err := w.uc.CheckStatus(ctx, entry.ProviderPaymentID)
		if err != nil {
			w.log.Warn().Err(err).Str("payment_id", entry.ProviderPaymentID).Msg("reconciler: check failed")
			continue
		}
		w.log.Info().Str("payment_id", entry.ProviderPaymentID).Str("status", string(status)).Msg("reconciler: payment checked")
	}
}
