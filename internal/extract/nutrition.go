package extract

import (
	"regexp"
	"strings"

	"github.com/nutrivox/nutrivox/internal/product"
)

// valuePattern captures a numeric amount and an optional unit following a
// nutrient label. The unit set covers the forms seen on real packaging.
const valuePattern = `[\s:=\-]*([0-9]+(?:[.,][0-9]+)?)\s*(kcal|cal|kj|mcg|µg|mg|g|%)?`

// nutrientPattern pairs a tracked nutrient with its label synonym regex.
// Each nutrient is searched independently across the whole text — label
// layouts vary too much for a single bounded nutrition-block grammar.
// The first match wins; no match leaves the field unset.
type nutrientPattern struct {
	re     *regexp.Regexp
	assign func(*product.Nutrition, string)
}

var nutrientPatterns = []nutrientPattern{
	{
		re:     regexp.MustCompile(`(?i)\b(?:calories|energy)\b` + valuePattern),
		assign: func(n *product.Nutrition, v string) { n.Calories = v },
	},
	{
		re:     regexp.MustCompile(`(?i)\b(?:total\s+fat|fat)\b` + valuePattern),
		assign: func(n *product.Nutrition, v string) { n.TotalFat = v },
	},
	{
		re:     regexp.MustCompile(`(?i)\b(?:sodium|salt)\b` + valuePattern),
		assign: func(n *product.Nutrition, v string) { n.Sodium = v },
	},
	{
		re:     regexp.MustCompile(`(?i)\b(?:total\s+carbohydrates?|carbohydrates?|carbs)\b` + valuePattern),
		assign: func(n *product.Nutrition, v string) { n.Carbohydrates = v },
	},
	{
		re:     regexp.MustCompile(`(?i)\b(?:dietary\s+fib(?:er|re)|fib(?:er|re))\b` + valuePattern),
		assign: func(n *product.Nutrition, v string) { n.Fiber = v },
	},
	{
		re:     regexp.MustCompile(`(?i)\b(?:total\s+sugars?|sugars?)\b` + valuePattern),
		assign: func(n *product.Nutrition, v string) { n.Sugars = v },
	},
	{
		re:     regexp.MustCompile(`(?i)\bproteins?\b` + valuePattern),
		assign: func(n *product.Nutrition, v string) { n.Protein = v },
	},
}

// NutritionFacts extracts the tracked nutrients from label text. Serving size,
// saturated/trans fat, and cholesterol are not pattern-extracted — they only
// arrive via the AI extraction or barcode sources.
func NutritionFacts(text string) product.Nutrition {
	var n product.Nutrition
	for _, np := range nutrientPatterns {
		m := np.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		np.assign(&n, normalizeValue(m[1], m[2]))
	}
	return n
}

// normalizeValue joins an amount and optional unit into the canonical
// "number + unit" form ("150", "12 g", "0.5 mg"). Decimal commas become dots.
func normalizeValue(amount, unit string) string {
	amount = strings.ReplaceAll(amount, ",", ".")
	if unit == "" {
		return amount
	}
	return amount + " " + strings.ToLower(unit)
}
