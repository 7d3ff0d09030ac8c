package usecase

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/adapter"
	"course-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ OrderUseCase = (*orderUC)(nil)

// OrderUseCase turns a cart into an order and serves order reads. Checkout
// snapshots catalog titles and prices into order items so later catalog edits
// never change what the user agreed to pay.
type OrderUseCase interface {
	// AddToCart validates the product against the catalog before storing the
	// cart line.
	AddToCart(ctx context.Context, item model.CartItem) error
	Checkout(ctx context.Context, userID string) (*model.Order, error)
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	ListByUser(ctx context.Context, userID string) ([]*model.Order, error)
}

type orderUC struct {
	orders  repository.OrderRepository
	carts   repository.CartRepository
	catalog adapter.Catalog
	txMgr   repository.TransactionManager
	log     *zerolog.Logger
}

func NewOrderUseCase(
	orders repository.OrderRepository,
	carts repository.CartRepository,
	catalog adapter.Catalog,
	txMgr repository.TransactionManager,
	logger *zerolog.Logger,
) *orderUC {
	return &orderUC{orders: orders, carts: carts, catalog: catalog, txMgr: txMgr, log: logger}
}

func (u *orderUC) AddToCart(ctx context.Context, item model.CartItem) error {
	if item.UserID == "" || item.ProductID == "" || item.Quantity <= 0 {
		return domain.ErrInvalidArgument
	}
	product, err := u.catalog.ResolveProduct(ctx, item.ProductID)
	if err != nil {
		return err
	}
	item.ProductType = product.Type
	return u.carts.Add(ctx, nil, item)
}

func (u *orderUC) Checkout(ctx context.Context, userID string) (*model.Order, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	cartItems, err := u.carts.Items(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	if len(cartItems) == 0 {
		return nil, domain.ErrEmptyCart
	}

	var (
		items    []model.OrderItem
		subtotal int64
	)
	for _, ci := range cartItems {
		product, err := u.catalog.ResolveProduct(ctx, ci.ProductID)
		if err != nil {
			return nil, err
		}
		item := model.OrderItem{
			ProductID:   product.ID,
			ProductType: product.Type,
			Title:       product.Title,
			Price:       product.Price,
			Quantity:    ci.Quantity,
		}
		items = append(items, item)
		subtotal += item.LineTotal()
	}

	order, err := model.NewOrder(userID, items, subtotal, 0)
	if err != nil {
		return nil, err
	}
	// The order header and its item rows go in one transaction.
	err = u.txMgr.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		return u.orders.Save(ctx, tx, order)
	})
	if err != nil {
		return nil, err
	}
	u.log.Info().
		Str("order_id", order.ID).
		Str("user_id", userID).
		Int("items", len(order.Items)).
		Int64("total", order.Total).
		Msg("order created")
	return order, nil
}

func (u *orderUC) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return u.orders.FindByID(ctx, nil, id)
}

func (u *orderUC) ListByUser(ctx context.Context, userID string) ([]*model.Order, error) {
	return u.orders.ListByUser(ctx, nil, userID)
}
