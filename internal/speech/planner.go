package speech

import (
	"fmt"
	"strings"

	"github.com/nutrivox/nutrivox/internal/product"
)

// Plan sequences a product record into speakable sections under a fixed
// safety-prioritized emission order:
//
//  1. allergen-alert, always first whenever the record has profile-matched
//     allergens, regardless of any preference flag
//  2. product-name
//  3. ingredients (major-only or full view per preference)
//  4. harmful-ingredients, before nutrition
//  5. nutrition, one aggregated section
//  6. expiry
//  7. usage-instructions
//
// Every other section is included only when its preference flag is on AND the
// record has non-empty content for it. The order is never rearranged by
// content length or any other property.
func Plan(rec *product.Record, prefs Preferences) []Section {
	if rec == nil {
		return nil
	}

	var out []Section

	if len(rec.DetectedAllergens) > 0 {
		out = append(out, Section{
			Category: CategoryAllergenAlert,
			Title:    "Allergen alert",
			Content: fmt.Sprintf("Warning. This product contains allergens from your profile: %s.",
				strings.Join(rec.DetectedAllergens, ", ")),
		})
	}

	if prefs.ProductName && rec.Name != "" {
		out = append(out, Section{
			Category: CategoryProductName,
			Title:    "Product",
			Content:  rec.Name + ".",
		})
	}

	if prefs.Ingredients && len(rec.Ingredients) > 0 {
		ingredients := rec.Ingredients
		title := "Ingredients"
		if prefs.MajorIngredientsOnly {
			ingredients = rec.MajorIngredients()
			title = "Major ingredients"
		}
		out = append(out, Section{
			Category: CategoryIngredients,
			Title:    title,
			Content:  strings.Join(ingredients, ", ") + ".",
		})
	}

	if prefs.HarmfulIngredients && len(rec.HarmfulFindings) > 0 {
		out = append(out, Section{
			Category: CategoryHarmful,
			Title:    "Harmful ingredients",
			Content:  strings.Join(rec.HarmfulFindings, ". ") + ".",
		})
	}

	if prefs.Nutrition {
		if content := nutritionContent(rec.Nutrition, prefs); content != "" {
			out = append(out, Section{
				Category: CategoryNutrition,
				Title:    "Nutrition",
				Content:  content,
			})
		}
	}

	if prefs.Expiry && rec.Expiry != "" {
		out = append(out, Section{
			Category: CategoryExpiry,
			Title:    "Expiry",
			Content:  "Best before " + rec.Expiry + ".",
		})
	}

	if prefs.Usage && rec.Usage != "" {
		content := rec.Usage
		if !strings.HasSuffix(content, ".") {
			content += "."
		}
		out = append(out, Section{
			Category: CategoryUsage,
			Title:    "Storage",
			Content:  content,
		})
	}

	return out
}

// nutritionContent aggregates the enabled nutrition sub-fields into one spoken
// sentence list. Serving size, carbohydrates, and fiber are always included
// when present; calories, fat, sugar, and protein are individually gated.
// Returns "" when no included sub-field is available, which omits the section.
func nutritionContent(n product.Nutrition, prefs Preferences) string {
	var parts []string
	add := func(label, value string) {
		if value != "" {
			parts = append(parts, label+" "+value)
		}
	}

	add("Serving size", n.ServingSize)
	if prefs.Calories {
		add("Calories", n.Calories)
	}
	if prefs.Fat {
		add("Total fat", n.TotalFat)
		add("Saturated fat", n.SaturatedFat)
		add("Trans fat", n.TransFat)
	}
	add("Cholesterol", n.Cholesterol)
	add("Sodium", n.Sodium)
	add("Carbohydrates", n.Carbohydrates)
	add("Fiber", n.Fiber)
	if prefs.Sugar {
		add("Sugars", n.Sugars)
	}
	if prefs.Protein {
		add("Protein", n.Protein)
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ". ") + "."
}
