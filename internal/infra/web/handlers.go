package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/usecase"
)

// A struct to define the expected JSON request body for creating a link.
type linkCreateRequest struct {
	Amount       int64      `json:"amount"`
	Description  string     `json:"description"`
	CreatedBy    string     `json:"created_by"`
	UsageType    string     `json:"usage_type"`
	MaxUses      *int       `json:"max_uses,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	AllowSBP     bool       `json:"allow_sbp"`
	AllowCard    bool       `json:"allow_card"`
	AllowTPay    bool       `json:"allow_tpay"`
	RequiresAuth bool       `json:"requires_auth"`
}

// Handler for creating a new payment link.
func linksCreateHandler(linkUC usecase.PaymentLinkUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req linkCreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		link, err := linkUC.Create(ctx, usecase.CreateLinkParams{
			Amount:       req.Amount,
			Description:  req.Description,
			CreatedBy:    req.CreatedBy,
			Usage:        model.UsageType(req.UsageType),
			MaxUses:      req.MaxUses,
			ExpiresAt:    req.ExpiresAt,
			AllowSBP:     req.AllowSBP,
			AllowCard:    req.AllowCard,
			AllowTPay:    req.AllowTPay,
			RequiresAuth: req.RequiresAuth,
		})
		if err != nil {
			if errors.Is(err, domain.ErrInvalidArgument) {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			http.Error(w, "Failed to create link", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(link)
	}
}

func linksListHandler(linkUC usecase.PaymentLinkUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		links, err := linkUC.List(r.Context())
		if err != nil {
			http.Error(w, "Failed to list links", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"items": links})
	}
}

func linksDisableHandler(linkUC usecase.PaymentLinkUseCase, id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := linkUC.Disable(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Link not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to disable link", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func linksDeleteHandler(linkUC usecase.PaymentLinkUseCase, id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := linkUC.Delete(r.Context(), id); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Link not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to delete link", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func linkPaymentsHandler(linkUC usecase.PaymentLinkUseCase, id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payments, err := linkUC.ListPayments(r.Context(), id)
		if err != nil {
			http.Error(w, "Failed to list payments", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"items": payments})
	}
}

type refundRequest struct {
	Amount *int64 `json:"amount,omitempty"` // minor units; omit for full refund
}

// Handler for refunding (or cancelling) a payment by provider payment id.
func refundHandler(paymentUC usecase.PaymentUseCase, paymentID string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refundRequest
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&req) // empty body means full refund
		}

		if err := paymentUC.Refund(r.Context(), paymentID, req.Amount); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				http.Error(w, "Payment not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to refund payment", http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func transactionsListHandler(ledgerUC usecase.LedgerUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		paymentID := r.URL.Query().Get("payment_id")

		switch {
		case paymentID != "":
			entry, err := ledgerUC.GetByProviderPaymentID(r.Context(), paymentID)
			if err != nil {
				if errors.Is(err, domain.ErrNotFound) {
					http.Error(w, "Transaction not found", http.StatusNotFound)
					return
				}
				http.Error(w, "Failed to get transaction", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(entry)
		case userID != "":
			entries, err := ledgerUC.ListByUser(r.Context(), userID)
			if err != nil {
				http.Error(w, "Failed to list transactions", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"items": entries})
		default:
			http.Error(w, "user_id or payment_id is required", http.StatusBadRequest)
		}
	}
}
