package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// Payment flow
	ErrAmountTooLow      = errors.New("amount below payment method minimum")
	ErrAuthentication    = errors.New("notification token mismatch")
	ErrOrderNotPayable   = errors.New("order is not awaiting payment")
	ErrMethodNotAllowed  = errors.New("payment method not allowed")
	ErrLinkUnavailable   = errors.New("payment link is not available")
	ErrLinkRequiresAuth  = errors.New("payment link requires an authenticated payer")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrPollBudgetSpent   = errors.New("payment status polling budget exhausted")
	ErrWebhookInFlight   = errors.New("notification is already being processed")
	ErrOrderNotCompleted = errors.New("order has not been completed")

	// Infrastructure errors surfaced through repositories
	ErrOperationFailed    = errors.New("storage operation failed")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
)
