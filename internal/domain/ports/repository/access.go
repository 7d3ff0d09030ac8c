package repository

import (
	"context"

	"course-billing/internal/domain/model"
)

// -----------------------------
// Course access (entitlements)
// -----------------------------

type AccessRepository interface {
	// GrantIfAbsent inserts the row unless an equivalent one already exists,
	// equivalence scoped by user+course+package-null-ness. Reports whether a
	// row was inserted. A lost race here at worst duplicates a harmless row;
	// entitlement is presence-based.
	GrantIfAbsent(ctx context.Context, tx Tx, a model.CourseAccess) (bool, error)
	ListByUser(ctx context.Context, tx Tx, userID string) ([]model.CourseAccess, error)
	HasAccess(ctx context.Context, tx Tx, userID, courseID, packageID string) (bool, error)
	Revoke(ctx context.Context, tx Tx, userID, courseID string) error
}
