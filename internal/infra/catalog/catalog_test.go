//go:build !integration

package catalog

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
)

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	t.Run("should load courses and variant packs", func(t *testing.T) {
		// --- Arrange ---
		path := writeCatalog(t, `
products:
  - id: course-math
    type: course
    title: Math Course
    price: 99000
  - id: pack-algebra
    type: variant_pack
    title: Algebra Pack
    price: 19000
    course_id: course-math
`)

		// --- Act ---
		cat, err := Load(path)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		course, err := cat.ResolveProduct(context.Background(), "course-math")
		if err != nil {
			t.Fatalf("resolve course: %v", err)
		}
		if course.Type != model.ProductTypeCourse || course.Price != 99000 {
			t.Errorf("unexpected course: %+v", course)
		}
		pack, err := cat.ResolveProduct(context.Background(), "pack-algebra")
		if err != nil {
			t.Fatalf("resolve pack: %v", err)
		}
		if pack.CourseID != "course-math" {
			t.Errorf("pack owning course: got %q", pack.CourseID)
		}
	})

	t.Run("should reject an unknown product type", func(t *testing.T) {
		path := writeCatalog(t, `
products:
  - id: weird
    type: bundle
    title: Weird
    price: 100
`)
		if _, err := Load(path); err == nil {
			t.Error("expected an error for an unknown type")
		}
	})

	t.Run("should reject a variant pack without an owning course", func(t *testing.T) {
		path := writeCatalog(t, `
products:
  - id: pack-orphan
    type: variant_pack
    title: Orphan Pack
    price: 100
`)
		if _, err := Load(path); err == nil {
			t.Error("expected an error for a pack without course_id")
		}
	})

	t.Run("should fail on a missing file", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
			t.Error("expected an error")
		}
	})
}

func TestResolveProduct(t *testing.T) {
	cat := NewFromSnapshots(model.ProductSnapshot{ID: "course-math", Type: model.ProductTypeCourse, Title: "Math Course", Price: 99000})

	if _, err := cat.ResolveProduct(context.Background(), "course-math"); err != nil {
		t.Fatalf("expected no error, but got: %v", err)
	}
	if _, err := cat.ResolveProduct(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
