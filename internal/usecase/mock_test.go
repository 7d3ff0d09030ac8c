//go:build !integration

package usecase_test

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/adapter"
	"course-billing/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger { l := zerolog.Nop(); return &l }

// =============================
// Repositories
// =============================

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, nil)
}

// ---- Mock OrderRepository ----

type MockOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*model.Order

	SaveFunc          func(ctx context.Context, tx repository.Tx, o *model.Order) error
	MarkCompletedFunc func(ctx context.Context, tx repository.Tx, orderID string, paidAt time.Time) (bool, error)
}

var _ repository.OrderRepository = (*MockOrderRepo)(nil)

func NewMockOrderRepo() *MockOrderRepo {
	return &MockOrderRepo{orders: make(map[string]*model.Order)}
}

func (m *MockOrderRepo) Save(ctx context.Context, tx repository.Tx, o *model.Order) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, o)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MockOrderRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MockOrderRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.ProviderPaymentID == paymentID {
			cp := *o
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockOrderRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockOrderRepo) SetProviderPaymentID(ctx context.Context, tx repository.Tx, orderID, paymentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	o.ProviderPaymentID = paymentID
	return nil
}

func (m *MockOrderRepo) MarkCompleted(ctx context.Context, tx repository.Tx, orderID string, paidAt time.Time) (bool, error) {
	if m.MarkCompletedFunc != nil {
		return m.MarkCompletedFunc(ctx, tx, orderID, paidAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if o.Status != model.OrderStatusAwaitingPayment {
		return false, nil
	}
	o.Status = model.OrderStatusCompleted
	o.PaidAt = &paidAt
	return true, nil
}

func (m *MockOrderRepo) UpdateStatus(ctx context.Context, tx repository.Tx, orderID string, status model.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	o.Status = status
	return nil
}

// ---- Mock CartRepository ----

type MockCartRepo struct {
	mu    sync.Mutex
	items map[string][]model.CartItem

	ClearFunc func(ctx context.Context, tx repository.Tx, userID string) error
}

var _ repository.CartRepository = (*MockCartRepo)(nil)

func NewMockCartRepo() *MockCartRepo {
	return &MockCartRepo{items: make(map[string][]model.CartItem)}
}

func (m *MockCartRepo) Items(ctx context.Context, tx repository.Tx, userID string) ([]model.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CartItem(nil), m.items[userID]...), nil
}

func (m *MockCartRepo) Add(ctx context.Context, tx repository.Tx, item model.CartItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[item.UserID] = append(m.items[item.UserID], item)
	return nil
}

func (m *MockCartRepo) Clear(ctx context.Context, tx repository.Tx, userID string) error {
	if m.ClearFunc != nil {
		return m.ClearFunc(ctx, tx, userID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, userID)
	return nil
}

// ---- Mock TransactionRepository ----

type MockTransactionRepo struct {
	mu      sync.Mutex
	entries map[string]*model.Transaction // by ID

	SaveFunc         func(ctx context.Context, tx repository.Tx, t *model.Transaction) error
	UpdateStatusFunc func(ctx context.Context, tx repository.Tx, paymentID string, status model.TransactionStatus, providerStatus string, completedAt *time.Time) error
	AppendEventFunc  func(ctx context.Context, tx repository.Tx, paymentID string, event model.TransactionEvent) error
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{entries: make(map[string]*model.Transaction)}
}

func (m *MockTransactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	cp.Events = append([]model.TransactionEvent(nil), t.Events...)
	m.entries[t.ID] = &cp
	return nil
}

func (m *MockTransactionRepo) byPaymentID(paymentID string) *model.Transaction {
	for _, t := range m.entries {
		if t.ProviderPaymentID == paymentID {
			return t
		}
	}
	return nil
}

func (m *MockTransactionRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, paymentID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.byPaymentID(paymentID)
	if t == nil {
		return nil, domain.ErrNotFound
	}
	cp := *t
	cp.Events = append([]model.TransactionEvent(nil), t.Events...)
	return &cp, nil
}

func (m *MockTransactionRepo) FindByContextID(ctx context.Context, tx repository.Tx, contextID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *model.Transaction
	for _, t := range m.entries {
		if t.ContextID == contextID && (latest == nil || t.CreatedAt.After(latest.CreatedAt)) {
			latest = t
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}

func (m *MockTransactionRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.entries {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockTransactionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, paymentID string, status model.TransactionStatus, providerStatus string, completedAt *time.Time) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, tx, paymentID, status, providerStatus, completedAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.byPaymentID(paymentID)
	if t == nil {
		return domain.ErrNotFound
	}
	t.Status = status
	t.ProviderStatus = providerStatus
	if completedAt != nil {
		t.CompletedAt = completedAt
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MockTransactionRepo) AppendEvent(ctx context.Context, tx repository.Tx, paymentID string, event model.TransactionEvent) error {
	if m.AppendEventFunc != nil {
		return m.AppendEventFunc(ctx, tx, paymentID, event)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.byPaymentID(paymentID)
	if t == nil {
		return domain.ErrNotFound
	}
	t.Events = append(t.Events, event)
	return nil
}

func (m *MockTransactionRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.entries {
		if (t.Status == model.TransactionStatusPending || t.Status == model.TransactionStatusProcessing) && t.CreatedAt.Before(olderThan) {
			cp := *t
			out = append(out, &cp)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ---- Mock AccessRepository ----

type MockAccessRepo struct {
	mu   sync.Mutex
	rows []model.CourseAccess

	GrantIfAbsentFunc func(ctx context.Context, tx repository.Tx, a model.CourseAccess) (bool, error)
}

var _ repository.AccessRepository = (*MockAccessRepo)(nil)

func NewMockAccessRepo() *MockAccessRepo { return &MockAccessRepo{} }

func (m *MockAccessRepo) GrantIfAbsent(ctx context.Context, tx repository.Tx, a model.CourseAccess) (bool, error) {
	if m.GrantIfAbsentFunc != nil {
		return m.GrantIfAbsentFunc(ctx, tx, a)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.SameScope(a) {
			return false, nil
		}
	}
	a.GrantedAt = time.Now()
	m.rows = append(m.rows, a)
	return true, nil
}

func (m *MockAccessRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]model.CourseAccess, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.CourseAccess
	for _, r := range m.rows {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockAccessRepo) HasAccess(ctx context.Context, tx repository.Tx, userID, courseID, packageID string) (bool, error) {
	rows, _ := m.ListByUser(ctx, tx, userID)
	return model.AllowsCourse(rows, courseID, packageID), nil
}

func (m *MockAccessRepo) Revoke(ctx context.Context, tx repository.Tx, userID, courseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	removed := false
	for _, r := range m.rows {
		if r.UserID == userID && r.CourseID == courseID {
			removed = true
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	if !removed {
		return domain.ErrNotFound
	}
	return nil
}

// ---- Mock PaymentLinkRepository ----

type MockPaymentLinkRepo struct {
	mu       sync.Mutex
	links    map[string]*model.PaymentLink
	payments map[string]*model.LinkPayment

	IncrementUsesFunc func(ctx context.Context, tx repository.Tx, id string) error
	UpdatePaymentFunc func(ctx context.Context, tx repository.Tx, id string, status model.LinkPaymentStatus, providerPaymentID string, paidAt *time.Time) error
}

var _ repository.PaymentLinkRepository = (*MockPaymentLinkRepo)(nil)

func NewMockPaymentLinkRepo() *MockPaymentLinkRepo {
	return &MockPaymentLinkRepo{
		links:    make(map[string]*model.PaymentLink),
		payments: make(map[string]*model.LinkPayment),
	}
}

func (m *MockPaymentLinkRepo) Save(ctx context.Context, tx repository.Tx, l *model.PaymentLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *l
	m.links[l.ID] = &cp
	return nil
}

func (m *MockPaymentLinkRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PaymentLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Code == code {
			cp := *l
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentLinkRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *MockPaymentLinkRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.PaymentLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentLink
	for _, l := range m.links {
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (m *MockPaymentLinkRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.LinkStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.Status = status
	return nil
}

func (m *MockPaymentLinkRepo) IncrementUses(ctx context.Context, tx repository.Tx, id string) error {
	if m.IncrementUsesFunc != nil {
		return m.IncrementUsesFunc(ctx, tx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return domain.ErrNotFound
	}
	l.CurrentUses++
	if max, bounded := l.EffectiveMaxUses(); bounded && l.Status == model.LinkStatusActive && l.CurrentUses >= max {
		l.Status = model.LinkStatusExhausted
	}
	return nil
}

func (m *MockPaymentLinkRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.links[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.links, id)
	return nil
}

func (m *MockPaymentLinkRepo) SavePayment(ctx context.Context, tx repository.Tx, p *model.LinkPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *MockPaymentLinkRepo) FindPaymentByID(ctx context.Context, tx repository.Tx, id string) (*model.LinkPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentLinkRepo) ListPaymentsByLink(ctx context.Context, tx repository.Tx, linkID string) ([]*model.LinkPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.LinkPayment
	for _, p := range m.payments {
		if p.LinkID == linkID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MockPaymentLinkRepo) UpdatePayment(ctx context.Context, tx repository.Tx, id string, status model.LinkPaymentStatus, providerPaymentID string, paidAt *time.Time) error {
	if m.UpdatePaymentFunc != nil {
		return m.UpdatePaymentFunc(ctx, tx, id, status, providerPaymentID, paidAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	if providerPaymentID != "" {
		p.ProviderPaymentID = providerPaymentID
	}
	if paidAt != nil {
		p.PaidAt = paidAt
	}
	return nil
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentProvider ----

type MockProvider struct {
	mu    sync.Mutex
	Inits []adapter.InitParams

	InitFunc       func(ctx context.Context, p adapter.InitParams) (adapter.InitResult, error)
	FetchQRFunc    func(ctx context.Context, paymentID string) (string, error)
	FetchStateFunc func(ctx context.Context, paymentID string) (adapter.StateResult, error)
	CancelFunc     func(ctx context.Context, paymentID string, amount *int64) (adapter.StateResult, error)
}

var _ adapter.PaymentProvider = (*MockProvider)(nil)

func (m *MockProvider) Init(ctx context.Context, p adapter.InitParams) (adapter.InitResult, error) {
	m.mu.Lock()
	m.Inits = append(m.Inits, p)
	m.mu.Unlock()
	if m.InitFunc != nil {
		return m.InitFunc(ctx, p)
	}
	return adapter.InitResult{PaymentID: "prov-1", PaymentURL: "https://pay.example/form", Status: "NEW"}, nil
}

func (m *MockProvider) FetchQR(ctx context.Context, paymentID string) (string, error) {
	if m.FetchQRFunc != nil {
		return m.FetchQRFunc(ctx, paymentID)
	}
	return "https://qr.nspk.ru/test-payload", nil
}

func (m *MockProvider) FetchState(ctx context.Context, paymentID string) (adapter.StateResult, error) {
	if m.FetchStateFunc != nil {
		return m.FetchStateFunc(ctx, paymentID)
	}
	return adapter.StateResult{PaymentID: paymentID, Status: "NEW"}, nil
}

func (m *MockProvider) Cancel(ctx context.Context, paymentID string, amount *int64) (adapter.StateResult, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, paymentID, amount)
	}
	return adapter.StateResult{PaymentID: paymentID, Status: "REFUNDED"}, nil
}

// ---- Mock Catalog ----

type MockCatalog struct {
	products map[string]model.ProductSnapshot
}

var _ adapter.Catalog = (*MockCatalog)(nil)

func NewMockCatalog(products ...model.ProductSnapshot) *MockCatalog {
	m := &MockCatalog{products: make(map[string]model.ProductSnapshot)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *MockCatalog) ResolveProduct(ctx context.Context, productID string) (*model.ProductSnapshot, error) {
	p, ok := m.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}

// ---- Mock NotificationVerifier ----

type MockVerifier struct {
	VerifyFunc func(params map[string]any, token string) bool
}

var _ adapter.NotificationVerifier = (*MockVerifier)(nil)

func (m *MockVerifier) Verify(params map[string]any, token string) bool {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(params, token)
	}
	return token != ""
}
