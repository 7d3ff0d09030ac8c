package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/repository"
	"course-billing/internal/infra/metrics"
)

// Compile-time check
var _ FulfillmentUseCase = (*fulfillmentUC)(nil)

// FulfillmentTarget is the resolved owner of a correlation id. The same
// webhook channel serves both regular orders and payment-link payments, so
// the id is resolved once into this tagged form instead of probing lookups
// at every call site.
type FulfillmentTarget struct {
	Order       *model.Order
	LinkPayment *model.LinkPayment
}

// FulfillmentUseCase is the single entry point that converts a confirmed
// payment into durable entitlement changes. Webhook delivery, status polling
// and manual admin confirmation all call the same methods; the order-level
// sticky-status guard is what makes the convergence effectively once.
type FulfillmentUseCase interface {
	// ResolveContext maps a correlation id to its target: order lookup first,
	// payment-link payment as the explicit fallback.
	ResolveContext(ctx context.Context, contextID string) (FulfillmentTarget, error)
	// Fulfill dispatches to the matching fulfillment path.
	Fulfill(ctx context.Context, target FulfillmentTarget, providerPaymentID string) error
	MarkOrderPaid(ctx context.Context, orderID string) error
	CompleteLinkPayment(ctx context.Context, linkPaymentID, providerPaymentID string) error
}

type fulfillmentUC struct {
	orders repository.OrderRepository
	carts  repository.CartRepository
	links  repository.PaymentLinkRepository
	ledger repository.TransactionRepository
	access AccessUseCase
	log    *zerolog.Logger
}

func NewFulfillmentUseCase(
	orders repository.OrderRepository,
	carts repository.CartRepository,
	links repository.PaymentLinkRepository,
	ledger repository.TransactionRepository,
	access AccessUseCase,
	logger *zerolog.Logger,
) *fulfillmentUC {
	return &fulfillmentUC{orders: orders, carts: carts, links: links, ledger: ledger, access: access, log: logger}
}

func (u *fulfillmentUC) ResolveContext(ctx context.Context, contextID string) (FulfillmentTarget, error) {
	order, err := u.orders.FindByID(ctx, nil, contextID)
	if err == nil {
		return FulfillmentTarget{Order: order}, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return FulfillmentTarget{}, err
	}

	lp, err := u.links.FindPaymentByID(ctx, nil, contextID)
	if err != nil {
		return FulfillmentTarget{}, err
	}
	return FulfillmentTarget{LinkPayment: lp}, nil
}

func (u *fulfillmentUC) Fulfill(ctx context.Context, target FulfillmentTarget, providerPaymentID string) error {
	switch {
	case target.Order != nil:
		return u.MarkOrderPaid(ctx, target.Order.ID)
	case target.LinkPayment != nil:
		return u.CompleteLinkPayment(ctx, target.LinkPayment.ID, providerPaymentID)
	default:
		return domain.ErrNotFound
	}
}

// effectStep is one idempotent unit of the fulfillment sequence. Keeping the
// steps as an explicit ordered list makes the guard-then-effects shape visible
// and lets each step be exercised in isolation.
type effectStep struct {
	name string
	run  func(ctx context.Context) error
}

// MarkOrderPaid completes the order exactly once. The status read plus the
// conditional completed write is the only guard; no distributed lock. A
// concurrent caller that loses the race observes "already completed" and
// returns success as a no-op.
func (u *fulfillmentUC) MarkOrderPaid(ctx context.Context, orderID string) error {
	order, err := u.orders.FindByID(ctx, nil, orderID)
	if err != nil {
		return err
	}
	if order.Status == model.OrderStatusCompleted {
		u.log.Debug().Str("order_id", orderID).Msg("order already completed; fulfillment no-op")
		return nil
	}

	changed, err := u.orders.MarkCompleted(ctx, nil, orderID, time.Now())
	if err != nil {
		return err
	}
	if !changed {
		// Lost the race to another trigger; its effects are in flight.
		return nil
	}

	steps := []effectStep{
		{name: "grant_access", run: func(ctx context.Context) error {
			for _, item := range order.Items {
				if err := u.access.GrantForItem(ctx, nil, order.UserID, item); err != nil {
					return err
				}
			}
			return nil
		}},
		{name: "clear_cart", run: func(ctx context.Context) error {
			return u.carts.Clear(ctx, nil, order.UserID)
		}},
		{name: "close_ledger", run: func(ctx context.Context) error {
			if order.ProviderPaymentID == "" {
				return nil
			}
			return u.ledger.AppendEvent(ctx, nil, order.ProviderPaymentID, model.TransactionEvent{
				Kind: model.EventOrderCompleted,
				At:   time.Now(),
				Details: map[string]string{
					"order_id": orderID,
				},
			})
		}},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			// The order is already completed; surface the failure but do not
			// roll the sticky status back.
			u.log.Error().Err(err).Str("order_id", orderID).Str("step", step.name).Msg("fulfillment step failed")
			return err
		}
	}

	metrics.IncFulfillment("order")
	u.log.Info().Str("order_id", orderID).Int("items", len(order.Items)).Msg("order fulfilled")
	return nil
}

// CompleteLinkPayment finalizes a payment-link attempt: flips the payment row
// to completed and bumps the link's usage counter. The completed check makes
// duplicate notifications no-ops.
func (u *fulfillmentUC) CompleteLinkPayment(ctx context.Context, linkPaymentID, providerPaymentID string) error {
	lp, err := u.links.FindPaymentByID(ctx, nil, linkPaymentID)
	if err != nil {
		return err
	}
	if lp.Status == model.LinkPaymentCompleted {
		u.log.Debug().Str("link_payment_id", linkPaymentID).Msg("link payment already completed; no-op")
		return nil
	}

	now := time.Now()
	if err := u.links.UpdatePayment(ctx, nil, linkPaymentID, model.LinkPaymentCompleted, providerPaymentID, &now); err != nil {
		return err
	}
	if err := u.links.IncrementUses(ctx, nil, lp.LinkID); err != nil {
		return err
	}
	if providerPaymentID != "" {
		if err := u.ledger.AppendEvent(ctx, nil, providerPaymentID, model.TransactionEvent{
			Kind: model.EventLinkCompleted,
			At:   now,
			Details: map[string]string{
				"link_id":         lp.LinkID,
				"link_payment_id": linkPaymentID,
			},
		}); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
	}

	metrics.IncFulfillment("payment_link")
	u.log.Info().Str("link_payment_id", linkPaymentID).Str("link_id", lp.LinkID).Msg("payment link fulfilled")
	return nil
}
