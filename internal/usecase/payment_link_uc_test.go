//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/adapter"
	"course-billing/internal/usecase"
)

func newLinkDeps() (*billingDeps, usecase.PaymentLinkUseCase) {
	d := newBillingDeps()
	return d, usecase.NewPaymentLinkUseCase(d.links, d.paymentUC, newTestLogger())
}

func TestPaymentLinkUseCase_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("should create an active link with a public code", func(t *testing.T) {
		// --- Arrange ---
		_, uc := newLinkDeps()

		// --- Act ---
		link, err := uc.Create(ctx, usecase.CreateLinkParams{
			Amount:      50000,
			Description: "Consultation",
			CreatedBy:   "admin",
			Usage:       model.UsageUnlimited,
		})

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if len(link.Code) != 8 {
			t.Errorf("expected an 8 character code, got %q", link.Code)
		}
		if link.Status != model.LinkStatusActive {
			t.Errorf("expected active link, got %s", link.Status)
		}
		if !link.AllowSBP || !link.AllowCard || !link.AllowTPay {
			t.Error("omitted method flags keep the permissive default")
		}
	})

	t.Run("should honor explicit method flags", func(t *testing.T) {
		_, uc := newLinkDeps()
		link, err := uc.Create(ctx, usecase.CreateLinkParams{
			Amount:      50000,
			Description: "Consultation",
			CreatedBy:   "admin",
			Usage:       model.UsageUnlimited,
			AllowCard:   true,
		})
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if link.AllowSBP || link.AllowTPay || !link.AllowCard {
			t.Error("only card should be allowed")
		}
	})

	t.Run("limited usage requires a positive ceiling", func(t *testing.T) {
		_, uc := newLinkDeps()
		_, err := uc.Create(ctx, usecase.CreateLinkParams{
			Amount:      50000,
			Description: "Consultation",
			CreatedBy:   "admin",
			Usage:       model.UsageLimited,
		})
		if !errors.Is(err, domain.ErrInvalidArgument) {
			t.Fatalf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestPaymentLinkUseCase_Pay(t *testing.T) {
	ctx := context.Background()

	createLink := func(t *testing.T, uc usecase.PaymentLinkUseCase, mutate func(*usecase.CreateLinkParams)) *model.PaymentLink {
		t.Helper()
		p := usecase.CreateLinkParams{
			Amount:      50000,
			Description: "Consultation",
			CreatedBy:   "admin",
			Usage:       model.UsageUnlimited,
		}
		if mutate != nil {
			mutate(&p)
		}
		link, err := uc.Create(ctx, p)
		if err != nil {
			t.Fatalf("create link: %v", err)
		}
		return link
	}

	t.Run("should initiate a payment for an anonymous payer", func(t *testing.T) {
		// --- Arrange ---
		d, uc := newLinkDeps()
		link := createLink(t, uc, nil)

		// --- Act ---
		intent, lp, err := uc.Pay(ctx, usecase.PayLinkParams{
			Code:        link.Code,
			Contact:     "payer@example.org",
			ContactType: model.ContactEmail,
			Method:      model.MethodCard,
		})

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if intent.PaymentURL == "" {
			t.Error("expected a payment URL")
		}
		saved, _ := d.links.FindPaymentByID(ctx, nil, lp.ID)
		if saved.Status != model.LinkPaymentPending {
			t.Errorf("expected pending attempt, got %s", saved.Status)
		}
		if saved.ProviderPaymentID != intent.ProviderPaymentID {
			t.Errorf("attempt not linked to provider payment: %q", saved.ProviderPaymentID)
		}
		entry, err := d.ledger.FindByContextID(ctx, nil, lp.ID)
		if err != nil {
			t.Fatalf("expected a ledger entry keyed by the attempt id, got: %v", err)
		}
		if entry.Amount != link.Amount {
			t.Errorf("ledger amount: want %d, got %d", link.Amount, entry.Amount)
		}
	})

	t.Run("should refuse an expired link", func(t *testing.T) {
		// --- Arrange ---
		d, uc := newLinkDeps()
		past := time.Now().Add(-time.Hour)
		link := createLink(t, uc, func(p *usecase.CreateLinkParams) { p.ExpiresAt = &past })

		// --- Act ---
		_, _, err := uc.Pay(ctx, usecase.PayLinkParams{Code: link.Code, Method: model.MethodCard})

		// --- Assert ---
		if !errors.Is(err, domain.ErrLinkUnavailable) {
			t.Fatalf("expected ErrLinkUnavailable, got %v", err)
		}
		// the stale stored status was persisted on the way
		saved, _ := d.links.FindByID(ctx, nil, link.ID)
		if saved.Status != model.LinkStatusExpired {
			t.Errorf("expected the expired status to be persisted, got %s", saved.Status)
		}
	})

	t.Run("should refuse a disabled link", func(t *testing.T) {
		_, uc := newLinkDeps()
		link := createLink(t, uc, nil)
		if err := uc.Disable(ctx, link.ID); err != nil {
			t.Fatalf("disable: %v", err)
		}
		_, _, err := uc.Pay(ctx, usecase.PayLinkParams{Code: link.Code, Method: model.MethodCard})
		if !errors.Is(err, domain.ErrLinkUnavailable) {
			t.Fatalf("expected ErrLinkUnavailable, got %v", err)
		}
	})

	t.Run("should refuse a method the link does not allow", func(t *testing.T) {
		_, uc := newLinkDeps()
		link := createLink(t, uc, func(p *usecase.CreateLinkParams) { p.AllowCard = true })
		_, _, err := uc.Pay(ctx, usecase.PayLinkParams{Code: link.Code, Method: model.MethodSBP})
		if !errors.Is(err, domain.ErrMethodNotAllowed) {
			t.Fatalf("expected ErrMethodNotAllowed, got %v", err)
		}
	})

	t.Run("should require auth when the link demands it", func(t *testing.T) {
		// --- Arrange ---
		_, uc := newLinkDeps()
		link := createLink(t, uc, func(p *usecase.CreateLinkParams) { p.RequiresAuth = true })

		// --- Act ---
		_, _, anonErr := uc.Pay(ctx, usecase.PayLinkParams{Code: link.Code, Method: model.MethodCard})
		_, _, authErr := uc.Pay(ctx, usecase.PayLinkParams{Code: link.Code, UserID: "user-1", Method: model.MethodCard})

		// --- Assert ---
		if !errors.Is(anonErr, domain.ErrLinkRequiresAuth) {
			t.Fatalf("expected ErrLinkRequiresAuth for anonymous payer, got %v", anonErr)
		}
		if authErr != nil {
			t.Fatalf("authenticated payer should pass, got %v", authErr)
		}
	})

	t.Run("should enforce the sbp minimum on the link amount", func(t *testing.T) {
		_, uc := newLinkDeps()
		link := createLink(t, uc, func(p *usecase.CreateLinkParams) { p.Amount = 990 })
		_, _, err := uc.Pay(ctx, usecase.PayLinkParams{Code: link.Code, Method: model.MethodSBP})
		if !errors.Is(err, domain.ErrAmountTooLow) {
			t.Fatalf("expected ErrAmountTooLow, got %v", err)
		}
	})

	t.Run("should mark the attempt failed when the provider rejects", func(t *testing.T) {
		// --- Arrange ---
		d, uc := newLinkDeps()
		link := createLink(t, uc, nil)
		d.provider.InitFunc = func(ctx context.Context, p adapter.InitParams) (adapter.InitResult, error) {
			return adapter.InitResult{}, errors.New("Init: terminal blocked")
		}

		// --- Act ---
		_, _, err := uc.Pay(ctx, usecase.PayLinkParams{Code: link.Code, Method: model.MethodCard})

		// --- Assert ---
		if err == nil {
			t.Fatal("expected an error")
		}
		attempts, _ := uc.ListPayments(ctx, link.ID)
		if len(attempts) != 1 {
			t.Fatalf("expected one recorded attempt, got %d", len(attempts))
		}
		if attempts[0].Status != model.LinkPaymentFailed {
			t.Errorf("expected failed attempt, got %s", attempts[0].Status)
		}
	})

	t.Run("exhausted single-use link refuses further payments", func(t *testing.T) {
		// --- Arrange ---
		d, uc := newLinkDeps()
		link := createLink(t, uc, func(p *usecase.CreateLinkParams) { p.Usage = model.UsageSingle })
		_, lp, err := uc.Pay(ctx, usecase.PayLinkParams{Code: link.Code, Method: model.MethodCard})
		if err != nil {
			t.Fatalf("first attempt: %v", err)
		}
		if err := d.fulfillUC.CompleteLinkPayment(ctx, lp.ID, lp.ProviderPaymentID); err != nil {
			t.Fatalf("complete: %v", err)
		}

		// --- Act ---
		_, _, err = uc.Pay(ctx, usecase.PayLinkParams{Code: link.Code, Method: model.MethodCard})

		// --- Assert ---
		if !errors.Is(err, domain.ErrLinkUnavailable) {
			t.Fatalf("expected ErrLinkUnavailable after exhaustion, got %v", err)
		}
	})
}

func TestPaymentLinkUseCase_List(t *testing.T) {
	ctx := context.Background()

	t.Run("should fold effective statuses into listings", func(t *testing.T) {
		// --- Arrange ---
		_, uc := newLinkDeps()
		past := time.Now().Add(-time.Hour)
		if _, err := uc.Create(ctx, usecase.CreateLinkParams{Amount: 50000, Description: "Live", CreatedBy: "admin", Usage: model.UsageUnlimited}); err != nil {
			t.Fatalf("create: %v", err)
		}
		if _, err := uc.Create(ctx, usecase.CreateLinkParams{Amount: 50000, Description: "Old", CreatedBy: "admin", Usage: model.UsageUnlimited, ExpiresAt: &past}); err != nil {
			t.Fatalf("create: %v", err)
		}

		// --- Act ---
		links, err := uc.List(ctx)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		statuses := map[string]model.LinkStatus{}
		for _, l := range links {
			statuses[l.Description] = l.Status
		}
		if statuses["Live"] != model.LinkStatusActive {
			t.Errorf("expected active, got %s", statuses["Live"])
		}
		if statuses["Old"] != model.LinkStatusExpired {
			t.Errorf("expected expired, got %s", statuses["Old"])
		}
	})

	t.Run("delete removes the link", func(t *testing.T) {
		_, uc := newLinkDeps()
		link, _ := uc.Create(ctx, usecase.CreateLinkParams{Amount: 50000, Description: "Gone", CreatedBy: "admin", Usage: model.UsageUnlimited})
		if err := uc.Delete(ctx, link.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := uc.Resolve(ctx, link.Code); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})
}
