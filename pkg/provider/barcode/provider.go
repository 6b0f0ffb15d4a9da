// Package barcode defines the Provider interface for barcode product lookup
// backends.
//
// A barcode provider wraps a product database (e.g., Open Food Facts) and
// resolves a scanned barcode string into a structured [Product] payload. The
// payload deliberately mirrors what food databases actually return — free-text
// ingredients, namespaced allergen tags, and per-100g nutrient values — and is
// mapped into the canonical product record by the scan pipeline.
//
// Implementations must be safe for concurrent use.
package barcode

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Lookup when the database has no entry for the
// barcode. This is not a failure: the pipeline falls through to text-derived
// extraction.
var ErrNotFound = errors.New("barcode: product not found")

// Product is the raw lookup payload for a single barcode.
type Product struct {
	// Code is the barcode that was looked up.
	Code string

	// Name is the product display name.
	Name string

	// IngredientsText is the free-text ingredient list as stored by the
	// database.
	IngredientsText string

	// AllergenTags lists namespaced allergen tags (e.g. "en:milk",
	// "en:tree-nuts"). Use [StripTag] to obtain a display form.
	AllergenTags []string

	// AllergensFromIngredients is a free-text allergens field derived by the
	// database from the ingredient list. May be empty.
	AllergensFromIngredients string

	// Nutriments maps "<nutrient>_100g" keys to numeric per-100g values
	// (e.g. "sugars_100g" → 12.5). Absent nutrients are simply missing keys.
	Nutriments map[string]float64

	// ServingSize is the database's serving-size string, when known.
	ServingSize string
}

// Provider is the abstraction over any barcode product database.
type Provider interface {
	// Lookup resolves code to a product payload. Returns [ErrNotFound] when
	// the database has no entry; any other error indicates the lookup itself
	// failed (network, decode, server error).
	Lookup(ctx context.Context, code string) (*Product, error)
}
