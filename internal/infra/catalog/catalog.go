package catalog

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"course-billing/internal/domain"
	"course-billing/internal/domain/model"
	"course-billing/internal/domain/ports/adapter"
)

var _ adapter.Catalog = (*StaticCatalog)(nil)

// StaticCatalog serves product snapshots from a YAML file loaded at startup.
// The storefront owns the real catalog; this file is the billing-side mirror
// of the purchasable products.
type StaticCatalog struct {
	products map[string]model.ProductSnapshot
}

type catalogFile struct {
	Products []struct {
		ID       string `yaml:"id"`
		Type     string `yaml:"type"`
		Title    string `yaml:"title"`
		Price    int64  `yaml:"price"`
		CourseID string `yaml:"course_id"`
	} `yaml:"products"`
}

func Load(path string) (*StaticCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	products := make(map[string]model.ProductSnapshot, len(f.Products))
	for _, p := range f.Products {
		t := model.ProductType(p.Type)
		if t != model.ProductTypeCourse && t != model.ProductTypeVariantPack {
			return nil, fmt.Errorf("catalog: product %q has unknown type %q", p.ID, p.Type)
		}
		if t == model.ProductTypeVariantPack && p.CourseID == "" {
			return nil, fmt.Errorf("catalog: variant pack %q has no course_id", p.ID)
		}
		products[p.ID] = model.ProductSnapshot{
			ID:       p.ID,
			Type:     t,
			Title:    p.Title,
			Price:    p.Price,
			CourseID: p.CourseID,
		}
	}
	return &StaticCatalog{products: products}, nil
}

// NewFromSnapshots builds a catalog from in-memory products, for tests and
// embedded setups.
func NewFromSnapshots(products ...model.ProductSnapshot) *StaticCatalog {
	m := make(map[string]model.ProductSnapshot, len(products))
	for _, p := range products {
		m[p.ID] = p
	}
	return &StaticCatalog{products: m}
}

func (c *StaticCatalog) ResolveProduct(_ context.Context, productID string) (*model.ProductSnapshot, error) {
	p, ok := c.products[productID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &p, nil
}
