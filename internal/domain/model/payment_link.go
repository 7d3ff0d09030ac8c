package model

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"

	"course-billing/internal/domain"
)

type LinkStatus string

const (
	LinkStatusActive    LinkStatus = "active"
	LinkStatusExpired   LinkStatus = "expired"
	LinkStatusExhausted LinkStatus = "exhausted"
	LinkStatusDisabled  LinkStatus = "disabled"
)

type UsageType string

const (
	UsageSingle    UsageType = "single"
	UsageLimited   UsageType = "limited"
	UsageUnlimited UsageType = "unlimited"
)

type ContactType string

const (
	ContactEmail     ContactType = "email"
	ContactPhone     ContactType = "phone"
	ContactMessenger ContactType = "messenger"
	ContactOther     ContactType = "other"
)

// codeAlphabet avoids visually ambiguous characters (0/O, 1/I/L).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 8

// NewLinkCode returns a random short code for a payment link.
func NewLinkCode() string {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		panic(err) // crypto/rand failure is not recoverable
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf)
}

// PaymentLink is an order-less payment page with usage and expiry policy.
type PaymentLink struct {
	ID           string
	Code         string
	Amount       int64 // minor units
	Description  string
	AllowSBP     bool
	AllowCard    bool
	AllowTPay    bool
	RequiresAuth bool
	UsageType    UsageType
	MaxUses      *int // required iff UsageType == limited
	CurrentUses  int
	ExpiresAt    *time.Time
	Status       LinkStatus // stored status; use EffectiveStatus for reads
	CreatedBy    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewPaymentLink validates policy invariants and constructs an active link.
func NewPaymentLink(amount int64, description, createdBy string, usage UsageType, maxUses *int, expiresAt *time.Time) (*PaymentLink, error) {
	if amount <= 0 || description == "" {
		return nil, domain.ErrInvalidArgument
	}
	switch usage {
	case UsageSingle, UsageUnlimited:
		maxUses = nil
	case UsageLimited:
		if maxUses == nil || *maxUses <= 0 {
			return nil, domain.ErrInvalidArgument
		}
	default:
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &PaymentLink{
		ID:          uuid.NewString(),
		Code:        NewLinkCode(),
		Amount:      amount,
		Description: description,
		AllowSBP:    true,
		AllowCard:   true,
		AllowTPay:   true,
		UsageType:   usage,
		MaxUses:     maxUses,
		ExpiresAt:   expiresAt,
		Status:      LinkStatusActive,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// EffectiveMaxUses resolves the usage ceiling; single behaves as limited-to-1.
func (l *PaymentLink) EffectiveMaxUses() (int, bool) {
	switch l.UsageType {
	case UsageSingle:
		return 1, true
	case UsageLimited:
		return *l.MaxUses, true
	default:
		return 0, false
	}
}

// EffectiveStatus recomputes expired/exhausted lazily from the stored fields.
// A manual disable always wins; expiry is checked before usage.
func (l *PaymentLink) EffectiveStatus(now time.Time) LinkStatus {
	if l.Status == LinkStatusDisabled {
		return LinkStatusDisabled
	}
	if l.ExpiresAt != nil && now.After(*l.ExpiresAt) {
		return LinkStatusExpired
	}
	if max, bounded := l.EffectiveMaxUses(); bounded && l.CurrentUses >= max {
		return LinkStatusExhausted
	}
	return LinkStatusActive
}

// AllowsMethod reports whether the payer may use the given rail.
func (l *PaymentLink) AllowsMethod(m PaymentMethod) bool {
	switch m {
	case MethodSBP:
		return l.AllowSBP
	case MethodCard:
		return l.AllowCard
	case MethodTPay:
		return l.AllowTPay
	}
	return false
}

type LinkPaymentStatus string

const (
	LinkPaymentPending   LinkPaymentStatus = "pending"
	LinkPaymentCompleted LinkPaymentStatus = "completed"
	LinkPaymentFailed    LinkPaymentStatus = "failed"
)

// LinkPayment is one payer attempt against a payment link. Its id doubles as
// the correlation id sent to the provider, sharing the webhook channel with
// regular orders.
type LinkPayment struct {
	ID                string
	LinkID            string
	UserID            string // empty for unauthenticated payers
	Contact           string // free-form contact info for support follow-up
	ContactType       ContactType
	Method            PaymentMethod
	ProviderPaymentID string
	Status            LinkPaymentStatus
	CreatedAt         time.Time
	PaidAt            *time.Time
}

func NewLinkPayment(linkID, userID, contact string, contactType ContactType, method PaymentMethod) *LinkPayment {
	return &LinkPayment{
		ID:          uuid.NewString(),
		LinkID:      linkID,
		UserID:      userID,
		Contact:     contact,
		ContactType: contactType,
		Method:      method,
		Status:      LinkPaymentPending,
		CreatedAt:   time.Now(),
	}
}
