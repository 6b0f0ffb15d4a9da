// Package product defines the canonical product record — the single reconciled
// structured representation of a scanned food item, independent of which
// evidence source (barcode database, OCR text, AI extraction) produced it.
//
// Records are assembled by the scan pipeline, merged by [Reconcile], and
// treated as immutable once handed to the speech planner.
package product

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MajorIngredientCount is the number of leading ingredients considered "major".
// Label convention orders ingredients by weight, so the first few dominate.
const MajorIngredientCount = 5

// Nutrition holds the per-label nutrition facts. Every field is optional: an
// empty string means the value was not detected by any source. A present value
// is a normalized "number + unit" string and always contains at least one digit.
type Nutrition struct {
	ServingSize   string
	Calories      string
	TotalFat      string
	SaturatedFat  string
	TransFat      string
	Cholesterol   string
	Sodium        string
	Carbohydrates string
	Fiber         string
	Sugars        string
	Protein       string
}

// IsEmpty reports whether no nutrition field is set.
func (n Nutrition) IsEmpty() bool {
	return n.ServingSize == "" && n.Calories == "" && n.TotalFat == "" &&
		n.SaturatedFat == "" && n.TransFat == "" && n.Cholesterol == "" &&
		n.Sodium == "" && n.Carbohydrates == "" && n.Fiber == "" &&
		n.Sugars == "" && n.Protein == ""
}

// Record is the canonical product record produced by the scan pipeline.
//
// Ingredients preserve label order (insertion order). DetectedAllergens is
// always the result of matching the caller-supplied allergen profile against
// source text — it is never inferred from AllergenWarnings, which come from
// the label itself ("contains milk" style statements).
type Record struct {
	// ID is an opaque identifier assigned at creation.
	ID string

	// CreatedAt is the record creation timestamp.
	CreatedAt time.Time

	// Name is the product name, empty when no source produced one.
	Name string

	// Ingredients is the ordered ingredient list (label order).
	Ingredients []string

	// Nutrition holds the per-label nutrition facts.
	Nutrition Nutrition

	// AllergenWarnings are allergen statements sourced from the label itself.
	AllergenWarnings []string

	// DetectedAllergens are allergens matched against the user's profile.
	DetectedAllergens []string

	// Expiry is the expiry/best-before string, empty when not detected.
	Expiry string

	// Usage is the usage/storage instructions string, empty when not detected.
	Usage string

	// HarmfulFindings lists harmful-ingredient findings, each a human-readable
	// "name: reason" string.
	HarmfulFindings []string

	// RawText is the full normalized text the record was produced from.
	RawText string
}

// NewRecord creates an empty Record with a fresh ID and creation timestamp.
func NewRecord(rawText string) *Record {
	return &Record{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		RawText:   rawText,
	}
}

// MajorIngredients returns the leading-ingredients prefix view (at most
// [MajorIngredientCount] entries). The returned slice aliases the record's
// ingredient list; callers must not mutate it.
func (r *Record) MajorIngredients() []string {
	if len(r.Ingredients) <= MajorIngredientCount {
		return r.Ingredients
	}
	return r.Ingredients[:MajorIngredientCount]
}

// IngredientsText returns the ingredient list joined for display or matching.
func (r *Record) IngredientsText() string {
	return strings.Join(r.Ingredients, ", ")
}
