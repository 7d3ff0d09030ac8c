package model

import (
	"time"

	"github.com/google/uuid"

	"course-billing/internal/domain"
)

type OrderStatus string

const (
	OrderStatusAwaitingPayment OrderStatus = "awaiting_payment"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusRefunded        OrderStatus = "refunded"
)

type ProductType string

const (
	ProductTypeCourse      ProductType = "course"
	ProductTypeVariantPack ProductType = "variant_pack"
)

// OrderItem snapshots a product at purchase time. Title and price stay frozen
// even if the catalog changes later.
type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductType ProductType
	Title       string
	Price       int64 // minor units
	Quantity    int
}

func (i OrderItem) LineTotal() int64 {
	return i.Price * int64(i.Quantity)
}

// Order is the purchase intent created at checkout. Amounts are in minor units.
type Order struct {
	ID                string
	UserID            string
	Status            OrderStatus
	Subtotal          int64
	Discount          int64
	Total             int64
	ProviderPaymentID string // set once payment initiation succeeds
	Items             []OrderItem
	CreatedAt         time.Time
	PaidAt            *time.Time
}

// NewOrder validates and constructs an order in awaiting_payment state.
// Total must equal subtotal minus discount.
func NewOrder(userID string, items []OrderItem, subtotal, discount int64) (*Order, error) {
	if userID == "" || len(items) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if subtotal < 0 || discount < 0 || discount > subtotal {
		return nil, domain.ErrInvalidArgument
	}
	o := &Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    OrderStatusAwaitingPayment,
		Subtotal:  subtotal,
		Discount:  discount,
		Total:     subtotal - discount,
		CreatedAt: time.Now(),
	}
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 || it.Price < 0 {
			return nil, domain.ErrInvalidArgument
		}
		it.OrderID = o.ID
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		o.Items = append(o.Items, it)
	}
	return o, nil
}

// CanTransitionTo guards the order state machine. completed is sticky: once an
// order is completed the only legal move is an admin-driven refund.
func (o *Order) CanTransitionTo(next OrderStatus) bool {
	if o.Status == next {
		return false
	}
	switch o.Status {
	case OrderStatusAwaitingPayment:
		return next == OrderStatusCompleted || next == OrderStatusCancelled
	case OrderStatusCompleted:
		return next == OrderStatusRefunded
	default:
		return false
	}
}

// ItemTitles returns snapshotted titles in item order, for payment descriptions.
func (o *Order) ItemTitles() []string {
	titles := make([]string, 0, len(o.Items))
	for _, it := range o.Items {
		titles = append(titles, it.Title)
	}
	return titles
}
