package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/adapter"
	"course-billing/internal/domain/ports/repository"
	"course-billing/internal/infra/metrics"
)

// Compile-time check
var _ PaymentUseCase = (*paymentUC)(nil)

// PaymentIntent is the client-facing outcome of a payment initiation: either
// a redirect URL (card/tpay) or a QR payload (sbp), never both.
type PaymentIntent struct {
	ProviderPaymentID string
	PaymentURL        string
	QRPayload         string
	Status            model.TransactionStatus
}

// PaymentPolicy carries the initiation-time knobs the orchestrator enforces.
type PaymentPolicy struct {
	SBPMinAmount      int64
	QRTTL             time.Duration
	DescriptionMaxLen int
}

// PaymentUseCase owns the payment lifecycle: initiation against the provider,
// ledger bookkeeping, status reconciliation and admin refunds. All validation
// happens before the first provider call or ledger write, so a rejected
// request leaves no trace.
type PaymentUseCase interface {
	CreateOrderPayment(ctx context.Context, orderID string, method model.PaymentMethod, email string) (*PaymentIntent, error)
	// CreateLinkPayment initiates a provider payment for a payment-link
	// attempt. The attempt row must already be persisted; its id is the
	// correlation id the provider echoes back.
	CreateLinkPayment(ctx context.Context, link *model.PaymentLink, lp *model.LinkPayment) (*PaymentIntent, error)
	// CheckStatus pulls the provider-side state, persists any transition and
	// triggers fulfillment when the payment turned out completed. Safe to
	// call concurrently with webhook delivery.
	CheckStatus(ctx context.Context, providerPaymentID string) (model.TransactionStatus, error)
	// CheckStatusFor is CheckStatus scoped to the requesting user; payments
	// initiated by someone else read as absent.
	CheckStatusFor(ctx context.Context, providerPaymentID, userID string) (model.TransactionStatus, error)
	// ApplyProviderStatus records a provider-reported status and runs the
	// side effects a terminal status implies. Webhook delivery uses this
	// instead of CheckStatus since the notification already carries the
	// status; no extra provider round-trip.
	ApplyProviderStatus(ctx context.Context, providerPaymentID, providerStatus, source string) (model.TransactionStatus, error)
	// Refund reverses a payment at the provider; a nil amount refunds in
	// full. Admin-only.
	Refund(ctx context.Context, providerPaymentID string, amount *int64) error
}

type paymentUC struct {
	orders      repository.OrderRepository
	ledger      repository.TransactionRepository
	links       repository.PaymentLinkRepository
	provider    adapter.PaymentProvider
	fulfillment FulfillmentUseCase
	policy      PaymentPolicy
	log         *zerolog.Logger
}

func NewPaymentUseCase(
	orders repository.OrderRepository,
	ledger repository.TransactionRepository,
	links repository.PaymentLinkRepository,
	provider adapter.PaymentProvider,
	fulfillment FulfillmentUseCase,
	policy PaymentPolicy,
	logger *zerolog.Logger,
) *paymentUC {
	return &paymentUC{
		orders:      orders,
		ledger:      ledger,
		links:       links,
		provider:    provider,
		fulfillment: fulfillment,
		policy:      policy,
		log:         logger,
	}
}

func (u *paymentUC) CreateOrderPayment(ctx context.Context, orderID string, method model.PaymentMethod, email string) (*PaymentIntent, error) {
	if !method.Valid() {
		return nil, domain.ErrInvalidArgument
	}

	order, err := u.orders.FindByID(ctx, nil, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != model.OrderStatusAwaitingPayment {
		return nil, domain.ErrOrderNotPayable
	}
	// Rail minimum is checked before any provider call or ledger write:
	// a rejected attempt leaves zero rows behind.
	if method == model.MethodSBP && order.Total < u.policy.SBPMinAmount {
		return nil, domain.ErrAmountTooLow
	}

	intent, entry, err := u.initiate(ctx, adapter.InitParams{
		Amount:      order.Total,
		OrderID:     order.ID,
		Description: buildDescription(order.ItemTitles(), u.policy.DescriptionMaxLen),
		CustomerKey: order.UserID,
		Email:       email,
	}, order.UserID, method)
	if err != nil {
		return nil, err
	}

	if err := u.orders.SetProviderPaymentID(ctx, nil, order.ID, entry.ProviderPaymentID); err != nil {
		return nil, err
	}
	u.log.Info().
		Str("order_id", order.ID).
		Str("payment_id", entry.ProviderPaymentID).
		Str("method", string(method)).
		Int64("amount", order.Total).
		Msg("order payment initiated")
	return intent, nil
}

func (u *paymentUC) CreateLinkPayment(ctx context.Context, link *model.PaymentLink, lp *model.LinkPayment) (*PaymentIntent, error) {
	if lp.Method == model.MethodSBP && link.Amount < u.policy.SBPMinAmount {
		return nil, domain.ErrAmountTooLow
	}

	email := ""
	if lp.ContactType == model.ContactEmail {
		email = lp.Contact
	}
	intent, entry, err := u.initiate(ctx, adapter.InitParams{
		Amount:      link.Amount,
		OrderID:     lp.ID,
		Description: buildDescription([]string{link.Description}, u.policy.DescriptionMaxLen),
		CustomerKey: lp.UserID,
		Email:       email,
	}, lp.UserID, lp.Method)
	if err != nil {
		return nil, err
	}

	if err := u.links.UpdatePayment(ctx, nil, lp.ID, model.LinkPaymentPending, entry.ProviderPaymentID, nil); err != nil {
		return nil, err
	}
	u.log.Info().
		Str("link_id", link.ID).
		Str("link_payment_id", lp.ID).
		Str("payment_id", entry.ProviderPaymentID).
		Str("method", string(lp.Method)).
		Msg("payment link payment initiated")
	return intent, nil
}

// initiate runs the provider Init (plus GetQr for sbp) and records the
// outcome in the ledger. A provider rejection still produces a ledger entry,
// so failed attempts stay auditable.
func (u *paymentUC) initiate(ctx context.Context, params adapter.InitParams, userID string, method model.PaymentMethod) (*PaymentIntent, *model.Transaction, error) {
	params.DueDate = time.Now().Add(u.policy.QRTTL)

	res, err := u.provider.Init(ctx, params)
	if err != nil {
		entry := model.NewTransaction(params.OrderID, userID, "", method, params.Amount, model.TransactionStatusFailed)
		entry.ErrorMessage = err.Error()
		entry.AppendEvent(model.EventPaymentFailed, map[string]string{"stage": "init", "error": err.Error()})
		if saveErr := u.ledger.Save(ctx, nil, entry); saveErr != nil {
			u.log.Error().Err(saveErr).Str("context_id", params.OrderID).Msg("failed to record rejected payment")
		}
		metrics.IncPayment("failed", string(method))
		return nil, nil, err
	}

	entry := model.NewTransaction(params.OrderID, userID, res.PaymentID, method, params.Amount, model.MapProviderStatus(res.Status))
	entry.ProviderStatus = res.Status
	if err := u.ledger.Save(ctx, nil, entry); err != nil {
		return nil, nil, err
	}
	metrics.IncPayment("initiated", string(method))

	intent := &PaymentIntent{
		ProviderPaymentID: res.PaymentID,
		Status:            entry.Status,
	}
	if method == model.MethodSBP {
		qr, err := u.provider.FetchQR(ctx, res.PaymentID)
		if err != nil {
			if updErr := u.ledger.UpdateStatus(ctx, nil, res.PaymentID, model.TransactionStatusFailed, res.Status, nil); updErr != nil {
				u.log.Error().Err(updErr).Str("payment_id", res.PaymentID).Msg("failed to mark qr-less payment failed")
			}
			_ = u.ledger.AppendEvent(ctx, nil, res.PaymentID, model.TransactionEvent{
				Kind:    model.EventPaymentFailed,
				At:      time.Now(),
				Details: map[string]string{"stage": "get_qr", "error": err.Error()},
			})
			metrics.IncPayment("failed", string(method))
			return nil, nil, err
		}
		intent.QRPayload = qr
	} else {
		intent.PaymentURL = res.PaymentURL
	}
	return intent, entry, nil
}

func (u *paymentUC) CheckStatus(ctx context.Context, providerPaymentID string) (model.TransactionStatus, error) {
	entry, err := u.ledger.FindByProviderPaymentID(ctx, nil, providerPaymentID)
	if err != nil {
		return "", err
	}
	return u.checkStatus(ctx, entry)
}

func (u *paymentUC) CheckStatusFor(ctx context.Context, providerPaymentID, userID string) (model.TransactionStatus, error) {
	entry, err := u.ledger.FindByProviderPaymentID(ctx, nil, providerPaymentID)
	if err != nil {
		return "", err
	}
	if entry.UserID != userID {
		return "", domain.ErrNotFound
	}
	return u.checkStatus(ctx, entry)
}

func (u *paymentUC) checkStatus(ctx context.Context, entry *model.Transaction) (model.TransactionStatus, error) {
	if entry.Status.IsFinal() {
		// A completed entry still re-drives fulfillment: the delivery that
		// persisted the status may have died before its side effects landed.
		// Fulfillment no-ops once the order is completed.
		if entry.Status == model.TransactionStatusCompleted {
			if err := u.fulfill(ctx, entry); err != nil {
				return entry.Status, err
			}
		}
		return entry.Status, nil
	}

	state, err := u.provider.FetchState(ctx, entry.ProviderPaymentID)
	if err != nil {
		return "", err
	}
	return u.applyProviderStatus(ctx, entry, state.Status, "poll")
}

func (u *paymentUC) ApplyProviderStatus(ctx context.Context, providerPaymentID, providerStatus, source string) (model.TransactionStatus, error) {
	entry, err := u.ledger.FindByProviderPaymentID(ctx, nil, providerPaymentID)
	if err != nil {
		return "", err
	}
	return u.applyProviderStatus(ctx, entry, providerStatus, source)
}

// applyProviderStatus persists a provider-reported transition and runs the
// side effects a terminal status implies. Shared by polling and webhooks.
func (u *paymentUC) applyProviderStatus(ctx context.Context, entry *model.Transaction, providerStatus, source string) (model.TransactionStatus, error) {
	mapped := model.MapProviderStatus(providerStatus)
	changed := mapped != entry.Status || providerStatus != entry.ProviderStatus
	// A repeated completed report is not a pure no-op: the delivery that
	// recorded the status may have failed before fulfillment landed, so the
	// fulfillment path runs again. Everything it does is idempotent.
	if !changed && mapped != model.TransactionStatusCompleted {
		return mapped, nil
	}

	if changed {
		var completedAt *time.Time
		if mapped == model.TransactionStatusCompleted {
			now := time.Now()
			completedAt = &now
		}
		if err := u.ledger.UpdateStatus(ctx, nil, entry.ProviderPaymentID, mapped, providerStatus, completedAt); err != nil {
			return "", err
		}
		if err := u.ledger.AppendEvent(ctx, nil, entry.ProviderPaymentID, model.TransactionEvent{
			Kind: model.EventStatusChanged,
			At:   time.Now(),
			Details: map[string]string{
				"from":            string(entry.Status),
				"to":              string(mapped),
				"provider_status": providerStatus,
				"source":          source,
			},
		}); err != nil {
			return "", err
		}
	}

	switch mapped {
	case model.TransactionStatusCompleted:
		if changed {
			metrics.IncPayment("completed", string(entry.Method))
			metrics.AddPaymentRevenue(entry.Currency, entry.Amount)
		}
		if err := u.fulfill(ctx, entry); err != nil {
			return mapped, err
		}
	case model.TransactionStatusCancelled, model.TransactionStatusFailed:
		metrics.IncPayment(string(mapped), string(entry.Method))
		_ = u.ledger.AppendEvent(ctx, nil, entry.ProviderPaymentID, model.TransactionEvent{
			Kind:    model.EventPaymentFailed,
			At:      time.Now(),
			Details: map[string]string{"provider_status": providerStatus},
		})
	}

	if changed {
		u.log.Info().
			Str("payment_id", entry.ProviderPaymentID).
			Str("from", string(entry.Status)).
			Str("to", string(mapped)).
			Str("source", source).
			Msg("payment status changed")
	}
	return mapped, nil
}

func (u *paymentUC) fulfill(ctx context.Context, entry *model.Transaction) error {
	target, err := u.fulfillment.ResolveContext(ctx, entry.ContextID)
	if err != nil {
		return err
	}
	return u.fulfillment.Fulfill(ctx, target, entry.ProviderPaymentID)
}

func (u *paymentUC) Refund(ctx context.Context, providerPaymentID string, amount *int64) error {
	entry, err := u.ledger.FindByProviderPaymentID(ctx, nil, providerPaymentID)
	if err != nil {
		return err
	}

	state, err := u.provider.Cancel(ctx, providerPaymentID, amount)
	if err != nil {
		return err
	}

	mapped := model.MapProviderStatus(state.Status)
	if err := u.ledger.UpdateStatus(ctx, nil, providerPaymentID, mapped, state.Status, nil); err != nil {
		return err
	}
	details := map[string]string{"provider_status": state.Status}
	if amount != nil {
		details["amount"] = fmt.Sprintf("%d", *amount)
	}
	if err := u.ledger.AppendEvent(ctx, nil, providerPaymentID, model.TransactionEvent{
		Kind:    model.EventRefundRequested,
		At:      time.Now(),
		Details: details,
	}); err != nil {
		return err
	}

	// Refunding a completed order is the one legal exit from the sticky
	// completed state; a cancel before capture just annuls the order.
	order, err := u.orders.FindByID(ctx, nil, entry.ContextID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil // payment-link context, no order to move
		}
		return err
	}
	var next model.OrderStatus
	switch mapped {
	case model.TransactionStatusRefunded:
		next = model.OrderStatusRefunded
	case model.TransactionStatusCancelled:
		next = model.OrderStatusCancelled
	default:
		return nil
	}
	if !order.CanTransitionTo(next) {
		return nil
	}
	if err := u.orders.UpdateStatus(ctx, nil, order.ID, next); err != nil {
		return err
	}
	metrics.IncPayment("refunded", string(entry.Method))
	u.log.Info().
		Str("order_id", order.ID).
		Str("payment_id", providerPaymentID).
		Str("order_status", string(next)).
		Msg("payment refunded")
	return nil
}

// buildDescription joins item titles with ", ". Only when the joined form
// exceeds the cap does it collapse to "<first title> and N more", and the
// result is truncated to max runes either way.
func buildDescription(titles []string, max int) string {
	if len(titles) == 0 {
		return "Order payment"
	}
	desc := strings.Join(titles, ", ")
	r := []rune(desc)
	if max > 0 && len(r) > max && len(titles) > 1 {
		desc = fmt.Sprintf("%s and %d more", titles[0], len(titles)-1)
		r = []rune(desc)
	}
	if max > 0 && len(r) > max {
		return string(r[:max])
	}
	return desc
}
