package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

var ErrNotFound = errors.New("not found")

// Variant holds the immutable pricing facts for one sellable unit.
// Every pricing formula assumes cost < bulk <= list; Validate enforces it.
type Variant struct {
	ListPrice     float64 `json:"list_price"`
	CostPrice     float64 `json:"cost_price"`
	BulkPrice     float64 `json:"bulk_price"`
	BulkThreshold int     `json:"bulk_threshold"`
}

type Product struct {
	ProductName string             `json:"product_name"`
	ProductCode string             `json:"product_code"`
	Variants    map[string]Variant `json:"variants"`
}

type Firm struct {
	Categories map[string][]Product `json:"categories"`
}

// Catalog maps firm name to its category/product tree. Externally owned,
// read-only input.
type Catalog map[string]Firm

// Validate rejects variants whose price fields would make the negotiation
// arithmetic produce nonsense. Violations are configuration errors, never
// silently computed over.
func (v Variant) Validate() error {
	if v.ListPrice <= 0 {
		return fmt.Errorf("list_price must be positive, got %v", v.ListPrice)
	}
	if v.CostPrice <= 0 || v.CostPrice >= v.ListPrice {
		return fmt.Errorf("cost_price must satisfy 0 < cost < list, got cost=%v list=%v", v.CostPrice, v.ListPrice)
	}
	if v.BulkPrice <= v.CostPrice || v.BulkPrice > v.ListPrice {
		return fmt.Errorf("bulk_price must satisfy cost < bulk <= list, got cost=%v bulk=%v list=%v", v.CostPrice, v.BulkPrice, v.ListPrice)
	}
	if v.BulkThreshold <= 0 {
		return fmt.Errorf("bulk_threshold must be positive, got %d", v.BulkThreshold)
	}
	return nil
}

func Load(path string) (Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var c Catalog
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return c, nil
}

// Hit is the result of a catalog lookup: the product plus where it lives.
type Hit struct {
	Firm     string
	Category string
	Product  Product
}

// FindProduct locates a product by code, case-insensitive, across all firms.
func (c Catalog) FindProduct(code string) (Hit, error) {
	for firmName, firm := range c {
		for catName, products := range firm.Categories {
			for _, p := range products {
				if strings.EqualFold(p.ProductCode, code) {
					return Hit{Firm: firmName, Category: catName, Product: p}, nil
				}
			}
		}
	}
	return Hit{}, fmt.Errorf("product %q: %w", code, ErrNotFound)
}

// Variant returns the named variant after validating its pricing fields.
func (p Product) Variant(name string) (Variant, error) {
	v, ok := p.Variants[name]
	if !ok {
		return Variant{}, fmt.Errorf("variant %q of product %q: %w", name, p.ProductCode, ErrNotFound)
	}
	if err := v.Validate(); err != nil {
		return Variant{}, fmt.Errorf("variant %q of product %q: %w", name, p.ProductCode, err)
	}
	return v, nil
}
