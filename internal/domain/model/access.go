package model

import "time"

// CourseAccess is one entitlement row. PackageID nil means full access to the
// course; a non-nil PackageID bounds the grant to that package. At most one
// full-access row may exist per (user, course); package rows may coexist.
type CourseAccess struct {
	ID        string
	UserID    string
	CourseID  string
	PackageID *string
	Title     string // product title at grant time, for support tooling
	GrantedAt time.Time
}

// IsFull reports whether this row grants unrestricted course access.
func (a CourseAccess) IsFull() bool {
	return a.PackageID == nil
}

// SameScope reports whether two rows grant the same entitlement, which is the
// equivalence used by the idempotent grant: user + course + package-null-ness
// (and package id when bounded).
func (a CourseAccess) SameScope(other CourseAccess) bool {
	if a.UserID != other.UserID || a.CourseID != other.CourseID {
		return false
	}
	if a.IsFull() || other.IsFull() {
		return a.IsFull() && other.IsFull()
	}
	return *a.PackageID == *other.PackageID
}

// AllowsCourse is the access predicate over a user's rows: a full-access row
// exists, or any package-scoped row for the course exists when packageID is
// empty; with a packageID, only a full row or the exact package row allows.
func AllowsCourse(rows []CourseAccess, courseID, packageID string) bool {
	for _, r := range rows {
		if r.CourseID != courseID {
			continue
		}
		if r.IsFull() {
			return true
		}
		if packageID != "" && *r.PackageID == packageID {
			return true
		}
		if packageID == "" {
			return true
		}
	}
	return false
}
