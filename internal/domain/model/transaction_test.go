//go:build !integration

package model

import "testing"

func TestMapProviderStatus(t *testing.T) {
	cases := []struct {
		provider string
		want     TransactionStatus
	}{
		{"NEW", TransactionStatusPending},
		{"FORM_SHOWED", TransactionStatusPending},
		{"AUTHORIZING", TransactionStatusProcessing},
		{"CONFIRMING", TransactionStatusProcessing},
		{"AUTHORIZED", TransactionStatusCompleted},
		{"CONFIRMED", TransactionStatusCompleted},
		{"CANCELED", TransactionStatusCancelled},
		{"REVERSED", TransactionStatusCancelled},
		{"DEADLINE_EXPIRED", TransactionStatusCancelled},
		{"REFUNDED", TransactionStatusRefunded},
		{"PARTIAL_REFUNDED", TransactionStatusRefunded},
		{"REJECTED", TransactionStatusFailed},
		{"", TransactionStatusFailed},
		{"SOMETHING_NEW", TransactionStatusFailed},
	}
	for _, c := range cases {
		if got := MapProviderStatus(c.provider); got != c.want {
			t.Errorf("MapProviderStatus(%q) = %s, want %s", c.provider, got, c.want)
		}
	}
}

func TestTransactionStatusIsFinal(t *testing.T) {
	finals := []TransactionStatus{
		TransactionStatusCompleted,
		TransactionStatusCancelled,
		TransactionStatusRefunded,
		TransactionStatusFailed,
	}
	for _, s := range finals {
		if !s.IsFinal() {
			t.Errorf("%s should be final", s)
		}
	}
	for _, s := range []TransactionStatus{TransactionStatusPending, TransactionStatusProcessing} {
		if s.IsFinal() {
			t.Errorf("%s should not be final", s)
		}
	}
}

func TestNewTransaction(t *testing.T) {
	// --- Act ---
	a := NewTransaction("order-1", "user-1", "prov-1", MethodCard, 19200, TransactionStatusPending)
	b := NewTransaction("order-1", "user-1", "prov-2", MethodCard, 19200, TransactionStatusPending)

	// --- Assert ---
	if a.ID == b.ID {
		t.Error("ids must be unique")
	}
	if a.Currency != "RUB" {
		t.Errorf("currency: got %q", a.Currency)
	}
	if len(a.Events) != 1 || a.Events[0].Kind != EventCreated {
		t.Errorf("expected a single created event, got %+v", a.Events)
	}
}
