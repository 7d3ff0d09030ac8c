package http

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/infra/api"
	"course-billing/internal/infra/logging"
	"course-billing/internal/infra/redis"
	"course-billing/internal/infra/sched"
	"course-billing/internal/usecase"
)

// Server is the public storefront-facing API: cart, checkout, payment
// initiation and status, the provider webhook, and payment links.
type Server struct {
	orderUC   usecase.OrderUseCase
	paymentUC usecase.PaymentUseCase
	linkUC    usecase.PaymentLinkUseCase
	accessUC  usecase.AccessUseCase
	webhookUC usecase.WebhookUseCase
	poller    *sched.StatusPoller
	locker    redis.Locker
	limiter   *redis.RateLimiter
	auth      *SessionAuth
	log       *zerolog.Logger
}

func NewServer(
	orderUC usecase.OrderUseCase,
	paymentUC usecase.PaymentUseCase,
	linkUC usecase.PaymentLinkUseCase,
	accessUC usecase.AccessUseCase,
	webhookUC usecase.WebhookUseCase,
	poller *sched.StatusPoller,
	locker redis.Locker,
	limiter *redis.RateLimiter,
	auth *SessionAuth,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		orderUC:   orderUC,
		paymentUC: paymentUC,
		linkUC:    linkUC,
		accessUC:  accessUC,
		webhookUC: webhookUC,
		poller:    poller,
		locker:    locker,
		limiter:   limiter,
		auth:      auth,
		log:       logger,
	}
}

// Router assembles the chi mux with the ambient middleware chain.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler { return api.TraceID(s.log)(next) })
	r.Use(func(next http.Handler) http.Handler { return api.Recover(s.log)(next) })
	r.Use(func(next http.Handler) http.Handler { return api.RequestLog(s.log)(next) })
	r.Use(func(next http.Handler) http.Handler { return api.Timeout(30 * time.Second)(next) })

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return s.requireAuth(next) })
		r.Post("/api/cart/items", s.handleCartAdd)
		r.Post("/api/checkout", s.handleCheckout)
		r.Get("/api/orders", s.handleListOrders)
		r.Get("/api/orders/{id}", s.handleGetOrder)
		r.Post("/api/payment/create", s.handleCreatePayment)
		r.Get("/api/payment/{paymentID}/status", s.handlePaymentStatus)
		r.Get("/api/access", s.handleListAccess)
	})

	r.Post("/api/payment/webhook", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(func(next http.Handler) http.Handler { return s.optionalAuth(next) })
		r.Use(func(next http.Handler) http.Handler { return s.rateLimit(next) })
		r.Get("/api/links/{code}", s.handleResolveLink)
		r.Post("/api/links/{code}/pay", s.handlePayLink)
	})

	return r
}

// rateLimit applies a fixed per-IP window to the public link endpoints.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil {
			next.ServeHTTP(w, r)
			return
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		ok, err := s.limiter.Allow(r.Context(), redis.LinkPayKey(host), 30, time.Minute)
		if err != nil {
			// Redis down must not take the endpoint with it.
			s.log.Warn().Err(err).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if !ok {
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleCartAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProductID   string `json:"product_id"`
		ProductType string `json:"product_type"`
		Quantity    int    `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Quantity <= 0 {
		req.Quantity = 1
	}
	err := s.orderUC.AddToCart(r.Context(), model.CartItem{
		UserID:      UserID(r.Context()),
		ProductID:   req.ProductID,
		ProductType: model.ProductType(req.ProductType),
		Quantity:    req.Quantity,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	order, err := s.orderUC.Checkout(r.Context(), UserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, orderView(order))
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.orderUC.ListByUser(r.Context(), UserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		views = append(views, orderView(o))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": views})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := s.orderUC.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if order.UserID != UserID(r.Context()) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, orderView(order))
}

func (s *Server) handleCreatePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID string `json:"order_id"`
		Method  string `json:"method"`
		Email   string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	order, err := s.orderUC.GetOrder(r.Context(), req.OrderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if order.UserID != UserID(r.Context()) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	method := model.PaymentMethod(req.Method)
	intent, err := s.paymentUC.CreateOrderPayment(r.Context(), req.OrderID, method, req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.watchIfSBP(r.Context(), method, intent.ProviderPaymentID)
	s.writeJSON(w, http.StatusCreated, intentView(intent))
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.paymentUC.CheckStatusFor(r.Context(), chi.URLParam(r, "paymentID"), UserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": status})
}

func (s *Server) handleListAccess(w http.ResponseWriter, r *http.Request) {
	rows, err := s.accessUC.ListByUser(r.Context(), UserID(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items := make([]map[string]any, 0, len(rows))
	for _, a := range rows {
		item := map[string]any{
			"course_id":  a.CourseID,
			"title":      a.Title,
			"full":       a.IsFull(),
			"granted_at": a.GrantedAt,
		}
		if a.PackageID != nil {
			item["package_id"] = *a.PackageID
		}
		items = append(items, item)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// handleWebhook ingests provider notifications. The reply contract is a bare
// "OK" body; anything else makes the provider retry. A short per-payment lock
// serializes concurrent deliveries of the same notification.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if s.locker != nil {
		if pid := webhookLockKey(raw); pid != "" {
			token, err := s.locker.TryLock(r.Context(), pid, 15*time.Second)
			switch {
			case err == nil:
				defer func() { _ = s.locker.Unlock(r.Context(), pid, token) }()
			case errors.Is(err, domain.ErrWebhookInFlight):
				// A concurrent delivery holds the lock; it will do the work.
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte("OK"))
				return
			default:
				// Redis down must not drop the delivery. Processing without
				// the lock is safe, duplicates hit conditional writes.
				l := logging.With(r.Context(), s.log)
				l.Warn().Err(err).Msg("webhook lock unavailable")
			}
		}
	}

	if err := s.webhookUC.Handle(r.Context(), raw); err != nil {
		switch {
		case errors.Is(err, domain.ErrAuthentication):
			http.Error(w, "forbidden", http.StatusForbidden)
		case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, "not found", http.StatusNotFound)
		default:
			l := logging.With(r.Context(), s.log)
			l.Error().Err(err).Msg("webhook processing failed")
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func webhookLockKey(raw map[string]any) string {
	switch v := raw["PaymentId"].(type) {
	case string:
		return redis.WebhookKey(v)
	case float64:
		return redis.WebhookKey(strconv.FormatInt(int64(v), 10))
	}
	return ""
}

func (s *Server) handleResolveLink(w http.ResponseWriter, r *http.Request) {
	link, err := s.linkUC.Resolve(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, linkView(link))
}

func (s *Server) handlePayLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method      string `json:"method"`
		Contact     string `json:"contact"`
		ContactType string `json:"contact_type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	method := model.PaymentMethod(req.Method)
	intent, lp, err := s.linkUC.Pay(r.Context(), usecase.PayLinkParams{
		Code:        chi.URLParam(r, "code"),
		UserID:      UserID(r.Context()),
		Contact:     req.Contact,
		ContactType: model.ContactType(req.ContactType),
		Method:      method,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.watchIfSBP(r.Context(), method, intent.ProviderPaymentID)

	view := intentView(intent)
	view["link_payment_id"] = lp.ID
	s.writeJSON(w, http.StatusCreated, view)
}

// watchIfSBP starts server-side polling for QR payments; card and tpay rely
// on the redirect flow plus the webhook.
func (s *Server) watchIfSBP(ctx context.Context, method model.PaymentMethod, providerPaymentID string) {
	if method != model.MethodSBP || s.poller == nil || providerPaymentID == "" {
		return
	}
	if err := s.poller.Watch(providerPaymentID); err != nil {
		l := logging.With(ctx, s.log)
		l.Warn().Err(err).Str("payment_id", providerPaymentID).Msg("status poller rejected watch")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrEmptyCart):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrAmountTooLow),
		errors.Is(err, domain.ErrOrderNotPayable),
		errors.Is(err, domain.ErrMethodNotAllowed),
		errors.Is(err, domain.ErrLinkUnavailable):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrLinkRequiresAuth):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	default:
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Msg("request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func orderView(o *model.Order) map[string]any {
	items := make([]map[string]any, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, map[string]any{
			"product_id":   it.ProductID,
			"product_type": it.ProductType,
			"title":        it.Title,
			"price":        it.Price,
			"quantity":     it.Quantity,
		})
	}
	view := map[string]any{
		"id":         o.ID,
		"status":     o.Status,
		"subtotal":   o.Subtotal,
		"discount":   o.Discount,
		"total":      o.Total,
		"items":      items,
		"created_at": o.CreatedAt,
	}
	if o.PaidAt != nil {
		view["paid_at"] = *o.PaidAt
	}
	return view
}

func intentView(i *usecase.PaymentIntent) map[string]any {
	view := map[string]any{
		"payment_id": i.ProviderPaymentID,
		"status":     i.Status,
	}
	if i.PaymentURL != "" {
		view["payment_url"] = i.PaymentURL
	}
	if i.QRPayload != "" {
		view["qr_payload"] = i.QRPayload
	}
	return view
}

func linkView(l *model.PaymentLink) map[string]any {
	view := map[string]any{
		"code":          l.Code,
		"amount":        l.Amount,
		"description":   l.Description,
		"status":        l.Status,
		"requires_auth": l.RequiresAuth,
		"methods":       allowedMethods(l),
	}
	if l.ExpiresAt != nil {
		view["expires_at"] = *l.ExpiresAt
	}
	return view
}

func allowedMethods(l *model.PaymentLink) []string {
	var out []string
	if l.AllowSBP {
		out = append(out, string(model.MethodSBP))
	}
	if l.AllowCard {
		out = append(out, string(model.MethodCard))
	}
	if l.AllowTPay {
		out = append(out, string(model.MethodTPay))
	}
	return out
}
