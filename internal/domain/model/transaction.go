package model

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// TransactionStatus is the internal lifecycle of one payment attempt.
type TransactionStatus string

const (
	TransactionStatusPending    TransactionStatus = "pending"
	TransactionStatusProcessing TransactionStatus = "processing"
	TransactionStatusCompleted  TransactionStatus = "completed"
	TransactionStatusCancelled  TransactionStatus = "cancelled"
	TransactionStatusRefunded   TransactionStatus = "refunded"
	TransactionStatusFailed     TransactionStatus = "failed"
)

// PaymentMethod is the rail the payer picked.
type PaymentMethod string

const (
	MethodSBP  PaymentMethod = "sbp"
	MethodCard PaymentMethod = "card"
	MethodTPay PaymentMethod = "tpay"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodSBP, MethodCard, MethodTPay:
		return true
	}
	return false
}

// EventKind is the closed set of audit events a ledger entry may accumulate.
type EventKind string

const (
	EventCreated         EventKind = "created"
	EventWebhookReceived EventKind = "webhook_received"
	EventStatusChanged   EventKind = "status_changed"
	EventOrderCompleted  EventKind = "order_completed"
	EventLinkCompleted   EventKind = "payment_link_completed"
	EventPaymentFailed   EventKind = "payment_failed"
	EventRefundRequested EventKind = "refund_requested"
)

// TransactionEvent is one append-only audit record on a ledger entry.
type TransactionEvent struct {
	Kind    EventKind         `json:"kind"`
	At      time.Time         `json:"at"`
	Details map[string]string `json:"details,omitempty"`
}

// Transaction is the ledger entry for a single payment attempt. It is looked
// up by the provider payment id and lives independently of the order it may
// eventually fulfill; a retried payment gets a brand-new entry.
type Transaction struct {
	ID                string // ULID
	ContextID         string // order id or payment-link payment id
	UserID            string // empty for anonymous link payers
	ProviderPaymentID string
	Method            PaymentMethod
	Amount            int64
	Currency          string
	Status            TransactionStatus
	ProviderStatus    string
	Events            []TransactionEvent
	ErrorMessage      string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

// NewTransaction builds a ledger entry with a created event already appended.
func NewTransaction(contextID, userID, providerPaymentID string, method PaymentMethod, amount int64, status TransactionStatus) *Transaction {
	now := time.Now()
	t := &Transaction{
		ID:                ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		ContextID:         contextID,
		UserID:            userID,
		ProviderPaymentID: providerPaymentID,
		Method:            method,
		Amount:            amount,
		Currency:          "RUB",
		Status:            status,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	t.AppendEvent(EventCreated, map[string]string{"method": string(method)})
	return t
}

// AppendEvent adds an audit record. Events are never rewritten or removed.
func (t *Transaction) AppendEvent(kind EventKind, details map[string]string) {
	t.Events = append(t.Events, TransactionEvent{Kind: kind, At: time.Now(), Details: details})
}

// IsFinal reports whether no further provider transitions are expected.
func (s TransactionStatus) IsFinal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusCancelled, TransactionStatusRefunded, TransactionStatusFailed:
		return true
	}
	return false
}

// MapProviderStatus converts a raw provider status to the internal one.
// The mapping is total: anything unrecognized is treated as failed.
func MapProviderStatus(provider string) TransactionStatus {
	switch provider {
	case "NEW", "FORM_SHOWED":
		return TransactionStatusPending
	case "AUTHORIZING", "CONFIRMING":
		return TransactionStatusProcessing
	case "AUTHORIZED", "CONFIRMED":
		return TransactionStatusCompleted
	case "CANCELED", "REVERSED", "DEADLINE_EXPIRED":
		return TransactionStatusCancelled
	case "REFUNDED", "PARTIAL_REFUNDED":
		return TransactionStatusRefunded
	default:
		return TransactionStatusFailed
	}
}
