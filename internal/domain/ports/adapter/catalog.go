package adapter

import (
	"context"

	"course-billing/internal/domain/model"
)

// Catalog resolves product ids to purchase-time snapshots. The catalog itself
// (content, pricing rules) is an external collaborator; this port is the pure
// "resolve product by id" function the billing engine consumes.
type Catalog interface {
	ResolveProduct(ctx context.Context, productID string) (*model.ProductSnapshot, error)
}
