package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-billing/internal/domain"
	"course-billing/internal/infra/worker"
	"course-billing/internal/usecase"
)

// StatusPoller drives server-side polling for a single in-flight payment.
// SBP has no client redirect, so after showing the QR the backend is the only
// party that can notice the payment went through if the webhook is lost.
//
// A watch stops on the first terminal status, or when either the attempt
// ceiling or the wall-clock deadline is hit, whichever comes first. The
// deadline matters independently of attempts: a slow provider must not keep a
// watch alive past the QR's validity window.
type StatusPoller struct {
	uc          usecase.PaymentUseCase
	pool        *worker.Pool
	interval    time.Duration
	maxAttempts int
	maxWatch    time.Duration
	log         *zerolog.Logger
}

func NewStatusPoller(uc usecase.PaymentUseCase, pool *worker.Pool, interval time.Duration, maxAttempts int, maxWatch time.Duration, logger *zerolog.Logger) *StatusPoller {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 100
	}
	if maxWatch <= 0 {
		maxWatch = 15 * time.Minute
	}
	return &StatusPoller{uc: uc, pool: pool, interval: interval, maxAttempts: maxAttempts, maxWatch: maxWatch, log: logger}
}

// Watch submits a poll loop for the payment to the worker pool. Returns the
// pool's error when the queue is saturated; the reconciler will pick the
// payment up later in that case.
func (p *StatusPoller) Watch(providerPaymentID string) error {
	return p.pool.Submit(func(ctx context.Context) error {
		return p.watch(ctx, providerPaymentID)
	})
}

func (p *StatusPoller) watch(ctx context.Context, providerPaymentID string) error {
	deadline := time.Now().Add(p.maxWatch)
	t := time.NewTicker(p.interval)
	defer t.Stop()

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}

		status, err := p.uc.CheckStatus(ctx, providerPaymentID)
		if err != nil {
			p.log.Warn().Err(err).Str("payment_id", providerPaymentID).Int("attempt", attempt).Msg("poll failed")
		} else if status.IsFinal() {
			p.log.Info().Str("payment_id", providerPaymentID).Str("status", string(status)).Int("attempts", attempt).Msg("poll finished")
			return nil
		}

		if attempt >= p.maxAttempts || time.Now().After(deadline) {
			p.log.Info().Str("payment_id", providerPaymentID).Int("attempts", attempt).Msg("poll budget spent")
			return domain.ErrPollBudgetSpent
		}
	}
}
