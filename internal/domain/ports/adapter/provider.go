package adapter

import (
	"context"
	"time"
)

// InitParams carries everything the provider needs to open a payment.
// Amounts are in minor units. DueDate bounds how long the hosted form or QR
// stays valid.
type InitParams struct {
	Amount      int64
	OrderID     string // correlation id echoed back in notifications
	Description string
	CustomerKey string
	Email       string
	DueDate     time.Time
}

// InitResult is the successful outcome of an Init call.
type InitResult struct {
	PaymentID  string
	PaymentURL string // hosted redirect form for card/tpay
	Status     string // raw provider status
}

// StateResult reports the provider-side status of a payment.
type StateResult struct {
	PaymentID string
	Status    string // raw provider status
	Amount    int64
}

// PaymentProvider is the hex port for the external payment API. Every request
// is signed by the implementation; callers never see tokens or secrets.
// Implementations do not retry — retry policy belongs to the orchestrator.
type PaymentProvider interface {
	Init(ctx context.Context, p InitParams) (InitResult, error)
	// FetchQR returns an opaque SBP QR payload for an initiated payment.
	FetchQR(ctx context.Context, paymentID string) (string, error)
	FetchState(ctx context.Context, paymentID string) (StateResult, error)
	// Cancel reverses or refunds a payment; a nil amount cancels in full.
	Cancel(ctx context.Context, paymentID string, amount *int64) (StateResult, error)
}
