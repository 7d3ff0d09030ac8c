package usecase

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/adapter"
	"course-billing/internal/domain/ports/repository"
	"course-billing/internal/infra/metrics"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookUseCase processes asynchronous provider notifications. The contract
// with the provider is: authenticate first, mutate only after; reply quickly
// so the provider stops retrying.
type WebhookUseCase interface {
	// Handle authenticates and applies one decoded notification payload.
	// Returns domain.ErrAuthentication on a bad token (no state touched)
	// and domain.ErrNotFound when the payment is unknown to the ledger.
	Handle(ctx context.Context, raw map[string]any) error
}

type webhookUC struct {
	verifier adapter.NotificationVerifier
	ledger   repository.TransactionRepository
	payments PaymentUseCase
	log      *zerolog.Logger
}

func NewWebhookUseCase(
	verifier adapter.NotificationVerifier,
	ledger repository.TransactionRepository,
	payments PaymentUseCase,
	logger *zerolog.Logger,
) *webhookUC {
	return &webhookUC{verifier: verifier, ledger: ledger, payments: payments, log: logger}
}

func (u *webhookUC) Handle(ctx context.Context, raw map[string]any) error {
	token, _ := raw["Token"].(string)
	if !u.verifier.Verify(raw, token) {
		// Never log payload contents on an auth failure; the token and the
		// fields it was computed over stay out of the logs.
		u.log.Warn().Msg("webhook rejected: token mismatch")
		metrics.IncWebhook("auth_failed")
		return domain.ErrAuthentication
	}

	paymentID := notificationPaymentID(raw["PaymentId"])
	status, _ := raw["Status"].(string)
	if paymentID == "" || status == "" {
		metrics.IncWebhook("malformed")
		return domain.ErrInvalidArgument
	}

	// The receipt itself is recorded before anything else so that even a
	// payment we fail to advance keeps an audit trail of the delivery.
	if err := u.ledger.AppendEvent(ctx, nil, paymentID, model.TransactionEvent{
		Kind:    model.EventWebhookReceived,
		At:      time.Now(),
		Details: map[string]string{"provider_status": status},
	}); err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	if _, err := u.payments.ApplyProviderStatus(ctx, paymentID, status, "webhook"); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			u.log.Warn().Str("payment_id", paymentID).Msg("webhook for unknown payment")
			metrics.IncWebhook("not_found")
			return domain.ErrNotFound
		}
		metrics.IncWebhook("error")
		return err
	}

	metrics.IncWebhook("ok")
	u.log.Debug().Str("payment_id", paymentID).Str("provider_status", status).Msg("webhook processed")
	return nil
}

// notificationPaymentID normalizes the PaymentId field: JSON decoding yields
// float64 for the numeric form, older payloads carry a string.
func notificationPaymentID(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}
