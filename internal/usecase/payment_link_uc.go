package usecase

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ PaymentLinkUseCase = (*paymentLinkUC)(nil)

// CreateLinkParams is the admin-supplied shape of a new payment link.
type CreateLinkParams struct {
	Amount       int64
	Description  string
	CreatedBy    string
	Usage        model.UsageType
	MaxUses      *int
	ExpiresAt    *time.Time
	AllowSBP     bool
	AllowCard    bool
	AllowTPay    bool
	RequiresAuth bool
}

// PayLinkParams is one payer attempt against a link, keyed by its public code.
type PayLinkParams struct {
	Code        string
	UserID      string // empty for anonymous payers on links that allow it
	Contact     string
	ContactType model.ContactType
	Method      model.PaymentMethod
}

// PaymentLinkUseCase manages order-less payment links: admin CRUD plus the
// public resolve/pay path. Expired and exhausted states are computed lazily
// on read and persisted opportunistically; no background sweeper.
type PaymentLinkUseCase interface {
	Create(ctx context.Context, p CreateLinkParams) (*model.PaymentLink, error)
	// Resolve returns the link for its public code with the effective status
	// already folded in.
	Resolve(ctx context.Context, code string) (*model.PaymentLink, error)
	// Pay validates link policy and initiates a provider payment for one
	// attempt. Policy checks happen before any write.
	Pay(ctx context.Context, p PayLinkParams) (*PaymentIntent, *model.LinkPayment, error)
	Disable(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*model.PaymentLink, error)
	ListPayments(ctx context.Context, linkID string) ([]*model.LinkPayment, error)
}

type paymentLinkUC struct {
	links    repository.PaymentLinkRepository
	payments PaymentUseCase
	log      *zerolog.Logger
}

func NewPaymentLinkUseCase(links repository.PaymentLinkRepository, payments PaymentUseCase, logger *zerolog.Logger) *paymentLinkUC {
	return &paymentLinkUC{links: links, payments: payments, log: logger}
}

func (u *paymentLinkUC) Create(ctx context.Context, p CreateLinkParams) (*model.PaymentLink, error) {
	link, err := model.NewPaymentLink(p.Amount, p.Description, p.CreatedBy, p.Usage, p.MaxUses, p.ExpiresAt)
	if err != nil {
		return nil, err
	}
	// At least one rail must stay open; an all-false request means the
	// admin client did not send the flags, keep the permissive default.
	if p.AllowSBP || p.AllowCard || p.AllowTPay {
		link.AllowSBP = p.AllowSBP
		link.AllowCard = p.AllowCard
		link.AllowTPay = p.AllowTPay
	}
	link.RequiresAuth = p.RequiresAuth

	if err := u.links.Save(ctx, nil, link); err != nil {
		return nil, err
	}
	u.log.Info().
		Str("link_id", link.ID).
		Str("code", link.Code).
		Int64("amount", link.Amount).
		Str("usage", string(link.UsageType)).
		Msg("payment link created")
	return link, nil
}

func (u *paymentLinkUC) Resolve(ctx context.Context, code string) (*model.PaymentLink, error) {
	link, err := u.links.FindByCode(ctx, nil, code)
	if err != nil {
		return nil, err
	}
	u.foldStatus(ctx, link)
	return link, nil
}

// foldStatus recomputes the effective status and opportunistically persists
// it when the stored value went stale. The persisted value is a cache; reads
// never depend on it.
func (u *paymentLinkUC) foldStatus(ctx context.Context, link *model.PaymentLink) {
	eff := link.EffectiveStatus(time.Now())
	if eff != link.Status {
		if err := u.links.UpdateStatus(ctx, nil, link.ID, eff); err != nil {
			u.log.Warn().Err(err).Str("link_id", link.ID).Msg("failed to persist link status")
		}
		link.Status = eff
	}
}

func (u *paymentLinkUC) Pay(ctx context.Context, p PayLinkParams) (*PaymentIntent, *model.LinkPayment, error) {
	link, err := u.links.FindByCode(ctx, nil, p.Code)
	if err != nil {
		return nil, nil, err
	}
	u.foldStatus(ctx, link)
	if link.Status != model.LinkStatusActive {
		return nil, nil, domain.ErrLinkUnavailable
	}
	if !p.Method.Valid() || !link.AllowsMethod(p.Method) {
		return nil, nil, domain.ErrMethodNotAllowed
	}
	if link.RequiresAuth && p.UserID == "" {
		return nil, nil, domain.ErrLinkRequiresAuth
	}

	lp := model.NewLinkPayment(link.ID, p.UserID, p.Contact, p.ContactType, p.Method)
	if err := u.links.SavePayment(ctx, nil, lp); err != nil {
		return nil, nil, err
	}

	intent, err := u.payments.CreateLinkPayment(ctx, link, lp)
	if err != nil {
		if updErr := u.links.UpdatePayment(ctx, nil, lp.ID, model.LinkPaymentFailed, "", nil); updErr != nil {
			u.log.Error().Err(updErr).Str("link_payment_id", lp.ID).Msg("failed to mark link payment failed")
		}
		return nil, nil, err
	}
	lp.ProviderPaymentID = intent.ProviderPaymentID
	return intent, lp, nil
}

func (u *paymentLinkUC) Disable(ctx context.Context, id string) error {
	if err := u.links.UpdateStatus(ctx, nil, id, model.LinkStatusDisabled); err != nil {
		return err
	}
	u.log.Info().Str("link_id", id).Msg("payment link disabled")
	return nil
}

func (u *paymentLinkUC) Delete(ctx context.Context, id string) error {
	return u.links.Delete(ctx, nil, id)
}

func (u *paymentLinkUC) List(ctx context.Context) ([]*model.PaymentLink, error) {
	links, err := u.links.ListAll(ctx, nil)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for _, l := range links {
		l.Status = l.EffectiveStatus(now)
	}
	return links, nil
}

func (u *paymentLinkUC) ListPayments(ctx context.Context, linkID string) ([]*model.LinkPayment, error) {
	return u.links.ListPaymentsByLink(ctx, nil, linkID)
}
