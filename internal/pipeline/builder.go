package pipeline

import (
	"fmt"
	"strings"

	"github.com/nutrivox/nutrivox/internal/allergen"
	"github.com/nutrivox/nutrivox/internal/extract"
	"github.com/nutrivox/nutrivox/internal/product"
	"github.com/nutrivox/nutrivox/pkg/provider/barcode"
)

// nutrimentKeys maps OpenFoodFacts-style `<nutrient>_100g` keys onto the
// corresponding nutrition field and spoken unit. Energy is reported in kcal,
// everything else in grams except sodium and cholesterol (milligrams on most
// labels, but OFF reports grams; keep the source unit to avoid silent
// conversion errors).
var nutrimentKeys = []struct {
	key  string
	unit string
	set  func(*product.Nutrition, string)
}{
	{"energy-kcal_100g", "kcal", func(n *product.Nutrition, v string) { n.Calories = v }},
	{"fat_100g", "g", func(n *product.Nutrition, v string) { n.TotalFat = v }},
	{"saturated-fat_100g", "g", func(n *product.Nutrition, v string) { n.SaturatedFat = v }},
	{"trans-fat_100g", "g", func(n *product.Nutrition, v string) { n.TransFat = v }},
	{"cholesterol_100g", "g", func(n *product.Nutrition, v string) { n.Cholesterol = v }},
	{"sodium_100g", "g", func(n *product.Nutrition, v string) { n.Sodium = v }},
	{"carbohydrates_100g", "g", func(n *product.Nutrition, v string) { n.Carbohydrates = v }},
	{"fiber_100g", "g", func(n *product.Nutrition, v string) { n.Fiber = v }},
	{"sugars_100g", "g", func(n *product.Nutrition, v string) { n.Sugars = v }},
	{"proteins_100g", "g", func(n *product.Nutrition, v string) { n.Protein = v }},
}

// BuildFromExtraction assembles a product record from one pattern-extraction
// result plus the user's allergen profile. Returns nil when the extractor
// found nothing, so the reconciler can treat the text source as absent.
func BuildFromExtraction(rawText string, profile allergen.Profile) *product.Record {
	res := extract.FromText(rawText)
	if res.IsEmpty() {
		return nil
	}

	rec := product.NewRecord(rawText)
	rec.Ingredients = res.Ingredients
	rec.Nutrition = res.Nutrition
	rec.Expiry = res.Expiry
	rec.Usage = res.Usage
	rec.HarmfulFindings = res.Harmful
	rec.DetectedAllergens = allergen.Match(rawText, profile)
	return rec
}

// BuildFromBarcode assembles a product record from a barcode-database payload
// plus the user's allergen profile. Returns nil for a nil payload.
//
// Allergen detection runs against the payload's ingredient text and allergen
// fields, never against the label-derived warnings alone: DetectedAllergens
// must stay a profile match, and AllergenWarnings stay label statements.
// Harmful-additive detection runs over the ingredient text; the record must
// carry findings like any label-derived record does.
func BuildFromBarcode(bp *barcode.Product, profile allergen.Profile) *product.Record {
	if bp == nil {
		return nil
	}

	rec := product.NewRecord(bp.IngredientsText)
	rec.Name = bp.Name
	rec.Ingredients = splitIngredientsText(bp.IngredientsText)
	rec.Nutrition = nutritionFromNutriments(bp.Nutriments, bp.ServingSize)

	warnings := barcode.StripTags(bp.AllergenTags)
	if bp.AllergensFromIngredients != "" {
		warnings = append(warnings, bp.AllergensFromIngredients)
	}
	rec.AllergenWarnings = warnings

	matchText := strings.Join([]string{bp.Name, bp.IngredientsText, strings.Join(warnings, ", ")}, "\n")
	rec.DetectedAllergens = allergen.Match(matchText, profile)
	rec.HarmfulFindings = extract.Harmful(bp.IngredientsText)
	return rec
}

// splitIngredientsText splits a barcode database's free-form ingredient string
// the same way the pattern extractor splits a label section: strip
// parentheticals, split on commas and semicolons, drop trivial fragments.
func splitIngredientsText(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return extract.SplitIngredientList(text)
}

// nutritionFromNutriments converts a `<nutrient>_100g` numeric map into
// nutrition strings. Values keep their database unit; a missing key leaves the
// field absent.
func nutritionFromNutriments(nutriments map[string]float64, servingSize string) product.Nutrition {
	var n product.Nutrition
	n.ServingSize = servingSize
	for _, nk := range nutrimentKeys {
		v, ok := nutriments[nk.key]
		if !ok {
			continue
		}
		nk.set(&n, formatNutrient(v, nk.unit))
	}
	return n
}

// formatNutrient renders a numeric nutrient value with its unit, trimming
// insignificant trailing zeros ("1.50 g" reads badly aloud).
func formatNutrient(v float64, unit string) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s + " " + unit
}
