package web

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"course-billing/internal/usecase"
)

// Server is the operator-facing admin API: payment-link management, refunds
// and ledger inspection. It listens on its own port, separate from the
// public storefront API.
type Server struct {
	linkUC    usecase.PaymentLinkUseCase
	paymentUC usecase.PaymentUseCase
	ledgerUC  usecase.LedgerUseCase
	apiKey    string
	log       *zerolog.Logger
}

func NewServer(
	linkUC usecase.PaymentLinkUseCase,
	paymentUC usecase.PaymentUseCase,
	ledgerUC usecase.LedgerUseCase,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		linkUC:    linkUC,
		paymentUC: paymentUC,
		ledgerUC:  ledgerUC,
		apiKey:    apiKey,
		log:       logger,
	}
}

// RegisterRoutes sets up the routing for the admin API.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	linksRouter := s.authMiddleware(s.linksRouter())
	mux.Handle("/api/v1/links", linksRouter)
	mux.Handle("/api/v1/links/", linksRouter)

	paymentsRouter := s.authMiddleware(s.paymentsRouter())
	mux.Handle("/api/v1/payments/", paymentsRouter)

	mux.Handle("/api/v1/transactions", s.authMiddleware(transactionsListHandler(s.ledgerUC)))

	mux.Handle("/metrics", promhttp.Handler())
}

// authMiddleware provides simple Bearer token authentication for the admin API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("Admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// linksRouter acts as a sub-router for /api/v1/links
func (s *Server) linksRouter() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/links")
		path = strings.Trim(path, "/")

		// Route /api/v1/links (no ID)
		if path == "" {
			switch r.Method {
			case http.MethodGet:
				linksListHandler(s.linkUC)(w, r)
			case http.MethodPost:
				linksCreateHandler(s.linkUC)(w, r)
			default:
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}

		// Route /api/v1/links/{id}[/disable|/payments]
		parts := strings.Split(path, "/")
		id := parts[0]
		switch {
		case len(parts) == 1 && r.Method == http.MethodDelete:
			linksDeleteHandler(s.linkUC, id)(w, r)
		case len(parts) == 2 && parts[1] == "disable" && r.Method == http.MethodPost:
			linksDisableHandler(s.linkUC, id)(w, r)
		case len(parts) == 2 && parts[1] == "payments" && r.Method == http.MethodGet:
			linkPaymentsHandler(s.linkUC, id)(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
}

// paymentsRouter acts as a sub-router for /api/v1/payments/{id}/refund
func (s *Server) paymentsRouter() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/api/v1/payments")
		path = strings.Trim(path, "/")

		parts := strings.Split(path, "/")
		if len(parts) == 2 && parts[1] == "refund" && r.Method == http.MethodPost {
			refundHandler(s.paymentUC, parts[0])(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
}
