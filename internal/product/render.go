package product

import (
	"fmt"
	"strings"
)

// Render serializes a record into the plain-text form handed to the
// question-answering model as grounding context. Only present fields are
// emitted so the prompt stays small for sparse records.
func Render(r *Record) string {
	var b strings.Builder

	if r.Name != "" {
		fmt.Fprintf(&b, "Product: %s\n", r.Name)
	}
	if len(r.Ingredients) > 0 {
		fmt.Fprintf(&b, "Ingredients: %s\n", r.IngredientsText())
	}

	writeNutrient := func(label, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", label, value)
		}
	}
	writeNutrient("Serving size", r.Nutrition.ServingSize)
	writeNutrient("Calories", r.Nutrition.Calories)
	writeNutrient("Total fat", r.Nutrition.TotalFat)
	writeNutrient("Saturated fat", r.Nutrition.SaturatedFat)
	writeNutrient("Trans fat", r.Nutrition.TransFat)
	writeNutrient("Cholesterol", r.Nutrition.Cholesterol)
	writeNutrient("Sodium", r.Nutrition.Sodium)
	writeNutrient("Carbohydrates", r.Nutrition.Carbohydrates)
	writeNutrient("Fiber", r.Nutrition.Fiber)
	writeNutrient("Sugars", r.Nutrition.Sugars)
	writeNutrient("Protein", r.Nutrition.Protein)

	if len(r.AllergenWarnings) > 0 {
		fmt.Fprintf(&b, "Allergen warnings: %s\n", strings.Join(r.AllergenWarnings, "; "))
	}
	if len(r.DetectedAllergens) > 0 {
		fmt.Fprintf(&b, "Allergens matching the user's profile: %s\n", strings.Join(r.DetectedAllergens, ", "))
	}
	if len(r.HarmfulFindings) > 0 {
		fmt.Fprintf(&b, "Harmful ingredients: %s\n", strings.Join(r.HarmfulFindings, "; "))
	}
	if r.Expiry != "" {
		fmt.Fprintf(&b, "Expiry: %s\n", r.Expiry)
	}

	return strings.TrimRight(b.String(), "\n")
}
