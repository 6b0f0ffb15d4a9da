package api

import (
	"github.com/nutrivox/nutrivox/internal/product"
	"github.com/nutrivox/nutrivox/internal/speech"
)

// recordJSON is the wire form of a product record. It doubles as the history
// snapshot format, so it must round-trip back into a product.Record.
type recordJSON struct {
	ID                string        `json:"id"`
	CreatedAt         string        `json:"created_at"`
	Name              string        `json:"name,omitempty"`
	Ingredients       []string      `json:"ingredients,omitempty"`
	Nutrition         nutritionJSON `json:"nutrition"`
	AllergenWarnings  []string      `json:"allergen_warnings,omitempty"`
	DetectedAllergens []string      `json:"detected_allergens,omitempty"`
	Expiry            string        `json:"expiry,omitempty"`
	Usage             string        `json:"usage,omitempty"`
	HarmfulFindings   []string      `json:"harmful_findings,omitempty"`
	RawText           string        `json:"raw_text,omitempty"`
}

type nutritionJSON struct {
	ServingSize   string `json:"serving_size,omitempty"`
	Calories      string `json:"calories,omitempty"`
	TotalFat      string `json:"total_fat,omitempty"`
	SaturatedFat  string `json:"saturated_fat,omitempty"`
	TransFat      string `json:"trans_fat,omitempty"`
	Cholesterol   string `json:"cholesterol,omitempty"`
	Sodium        string `json:"sodium,omitempty"`
	Carbohydrates string `json:"carbohydrates,omitempty"`
	Fiber         string `json:"fiber,omitempty"`
	Sugars        string `json:"sugars,omitempty"`
	Protein       string `json:"protein,omitempty"`
}

const createdAtLayout = "2006-01-02T15:04:05.000000000Z07:00"

func toRecordJSON(rec *product.Record) recordJSON {
	return recordJSON{
		ID:                rec.ID,
		CreatedAt:         rec.CreatedAt.UTC().Format(createdAtLayout),
		Name:              rec.Name,
		Ingredients:       rec.Ingredients,
		Nutrition:         nutritionJSON(rec.Nutrition),
		AllergenWarnings:  rec.AllergenWarnings,
		DetectedAllergens: rec.DetectedAllergens,
		Expiry:            rec.Expiry,
		Usage:             rec.Usage,
		HarmfulFindings:   rec.HarmfulFindings,
		RawText:           rec.RawText,
	}
}

// toRecord rebuilds a product.Record from its stored wire form. The creation
// timestamp is not needed by the answerer, so a parse failure leaves it zero.
func (r recordJSON) toRecord() *product.Record {
	rec := &product.Record{
		ID:                r.ID,
		Name:              r.Name,
		Ingredients:       r.Ingredients,
		Nutrition:         product.Nutrition(r.Nutrition),
		AllergenWarnings:  r.AllergenWarnings,
		DetectedAllergens: r.DetectedAllergens,
		Expiry:            r.Expiry,
		Usage:             r.Usage,
		HarmfulFindings:   r.HarmfulFindings,
		RawText:           r.RawText,
	}
	return rec
}

type sectionJSON struct {
	Category string `json:"category"`
	Title    string `json:"title"`
	Content  string `json:"content"`
}

func toSectionJSON(sections []speech.Section) []sectionJSON {
	out := make([]sectionJSON, len(sections))
	for i, sec := range sections {
		out[i] = sectionJSON{
			Category: string(sec.Category),
			Title:    sec.Title,
			Content:  sec.Content,
		}
	}
	return out
}

// preferencesJSON is the wire form of the reading preferences. It is a full
// snapshot: omitted booleans mean "off", omitted rate means normal speed.
type preferencesJSON struct {
	ProductName          bool    `json:"product_name"`
	Ingredients          bool    `json:"ingredients"`
	HarmfulIngredients   bool    `json:"harmful_ingredients"`
	Nutrition            bool    `json:"nutrition"`
	Expiry               bool    `json:"expiry"`
	Usage                bool    `json:"usage"`
	MajorIngredientsOnly bool    `json:"major_ingredients_only"`
	Calories             bool    `json:"calories"`
	Fat                  bool    `json:"fat"`
	Sugar                bool    `json:"sugar"`
	Protein              bool    `json:"protein"`
	Rate                 float64 `json:"rate"`
}

func (p preferencesJSON) toPreferences() speech.Preferences {
	prefs := speech.Preferences{
		ProductName:          p.ProductName,
		Ingredients:          p.Ingredients,
		HarmfulIngredients:   p.HarmfulIngredients,
		Nutrition:            p.Nutrition,
		Expiry:               p.Expiry,
		Usage:                p.Usage,
		MajorIngredientsOnly: p.MajorIngredientsOnly,
		Calories:             p.Calories,
		Fat:                  p.Fat,
		Sugar:                p.Sugar,
		Protein:              p.Protein,
		Rate:                 p.Rate,
	}
	if prefs.Rate == 0 {
		prefs.Rate = 1.0
	}
	return prefs
}
