package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/adapter"
	"course-billing/internal/domain/ports/repository"
)

// Compile-time check
var _ AccessUseCase = (*accessUC)(nil)

type AccessUseCase interface {
	// GrantForItem resolves the entitlement target of a purchased item and
	// inserts an access row unless an equivalent one exists. Course items
	// grant full access; variant packs grant package-scoped access to the
	// owning course.
	GrantForItem(ctx context.Context, tx repository.Tx, userID string, item model.OrderItem) error
	HasAccess(ctx context.Context, userID, courseID, packageID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]model.CourseAccess, error)
	Revoke(ctx context.Context, userID, courseID string) error
}

type accessUC struct {
	access  repository.AccessRepository
	catalog adapter.Catalog
	log     *zerolog.Logger
}

func NewAccessUseCase(access repository.AccessRepository, catalog adapter.Catalog, logger *zerolog.Logger) *accessUC {
	return &accessUC{access: access, catalog: catalog, log: logger}
}

func (u *accessUC) GrantForItem(ctx context.Context, tx repository.Tx, userID string, item model.OrderItem) error {
	courseID := item.ProductID
	var packageID *string

	if item.ProductType == model.ProductTypeVariantPack {
		product, err := u.catalog.ResolveProduct(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if product.CourseID == "" {
			return domain.ErrInvalidArgument
		}
		courseID = product.CourseID
		pid := item.ProductID
		packageID = &pid
	}

	inserted, err := u.access.GrantIfAbsent(ctx, tx, model.CourseAccess{
		UserID:    userID,
		CourseID:  courseID,
		PackageID: packageID,
		Title:     item.Title,
	})
	if err != nil {
		return err
	}
	if inserted {
		u.log.Info().
			Str("user_id", userID).
			Str("course_id", courseID).
			Bool("package_scoped", packageID != nil).
			Msg("access granted")
	}
	return nil
}

func (u *accessUC) HasAccess(ctx context.Context, userID, courseID, packageID string) (bool, error) {
	return u.access.HasAccess(ctx, nil, userID, courseID, packageID)
}

func (u *accessUC) ListByUser(ctx context.Context, userID string) ([]model.CourseAccess, error) {
	return u.access.ListByUser(ctx, nil, userID)
}

func (u *accessUC) Revoke(ctx context.Context, userID, courseID string) error {
	return u.access.Revoke(ctx, nil, userID, courseID)
}
