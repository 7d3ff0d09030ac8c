package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/repository"
)

var _ repository.AccessRepository = (*accessRepo)(nil)

type accessRepo struct{ pool *pgxpool.Pool }

func NewAccessRepo(pool *pgxpool.Pool) *accessRepo {
	return &accessRepo{pool: pool}
}

// GrantIfAbsent inserts unless an equivalent grant exists. Equivalence is
// user + course + scope: full grants collapse into one row, package grants
// are keyed by package id. The existence predicate and the insert run as one
// statement, so concurrent granters at worst insert a duplicate, never fail.
func (r *accessRepo) GrantIfAbsent(ctx context.Context, tx repository.Tx, a model.CourseAccess) (bool, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	const q = `
INSERT INTO course_access (id, user_id, course_id, package_id, title, granted_at)
SELECT $1, $2, $3, $4, $5, NOW()
WHERE NOT EXISTS (
  SELECT 1 FROM course_access
  WHERE user_id=$2 AND course_id=$3
    AND ((package_id IS NULL AND $4::text IS NULL) OR package_id=$4)
);`
	tag, err := execSQL(ctx, r.pool, tx, q, a.ID, a.UserID, a.CourseID, a.PackageID, a.Title)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return tag.RowsAffected() == 1, nil
}

func (r *accessRepo) ListByUser(ctx context.Context, tx repository.Tx, userID string) ([]model.CourseAccess, error) {
	const q = `SELECT id, user_id, course_id, package_id, title, granted_at FROM course_access WHERE user_id=$1 ORDER BY granted_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, userID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []model.CourseAccess
	for rows.Next() {
		var a model.CourseAccess
		if err := rows.Scan(&a.ID, &a.UserID, &a.CourseID, &a.PackageID, &a.Title, &a.GrantedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, domain.ErrOperationFailed
	}
	return out, nil
}

func (r *accessRepo) HasAccess(ctx context.Context, tx repository.Tx, userID, courseID, packageID string) (bool, error) {
	// A full grant always allows; a package grant allows its own package,
	// or any package-scoped question when none is named.
	q := `SELECT EXISTS (SELECT 1 FROM course_access WHERE user_id=$1 AND course_id=$2 AND package_id IS NULL`
	args := []interface{}{userID, courseID}
	if packageID != "" {
		q += ` UNION SELECT 1 FROM course_access WHERE user_id=$1 AND course_id=$2 AND package_id=$3`
		args = append(args, packageID)
	} else {
		q += ` UNION SELECT 1 FROM course_access WHERE user_id=$1 AND course_id=$2`
	}
	q += `);`

	row, err := pickRow(ctx, r.pool, tx, q, args...)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return ok, nil
}

func (r *accessRepo) Revoke(ctx context.Context, tx repository.Tx, userID, courseID string) error {
	const q = `DELETE FROM course_access WHERE user_id=$1 AND course_id=$2;`
	tag, err := execSQL(ctx, r.pool, tx, q, userID, courseID)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
