// Package speech turns a product record into prioritized spoken output: the
// planner sequences the record into speakable sections, the narrator plays
// them one at a time with pause/resume/skip control, and the synth adapter
// bridges sections to a TTS provider.
package speech

// Category tags one kind of speakable section. The planner emits categories in
// a fixed safety-prioritized order; Answer sections are created only for
// question replies and always narrated alone.
type Category string

const (
	CategoryAllergenAlert Category = "allergen-alert"
	CategoryProductName   Category = "product-name"
	CategoryIngredients   Category = "ingredients"
	CategoryHarmful       Category = "harmful-ingredients"
	CategoryNutrition     Category = "nutrition"
	CategoryExpiry        Category = "expiry"
	CategoryUsage         Category = "usage-instructions"
	CategoryAnswer        Category = "answer"
)

// Section is one discrete, independently speakable unit of a product record.
// Sections are produced fresh per narration request and never mutated.
type Section struct {
	// Category tags what kind of content this section carries.
	Category Category

	// Title is the short spoken lead-in ("Allergen alert", "Ingredients").
	Title string

	// Content is the spoken body text.
	Content string
}

// Preferences is the read-only reading-preference snapshot consumed at
// planning time: one flag per section type, per-nutrient sub-flags, the
// major-ingredients-only toggle, and the speech rate.
type Preferences struct {
	// Per-section flags. The allergen alert is not gated by any flag: it is a
	// safety signal and is always spoken when the record carries detections.
	ProductName        bool
	Ingredients        bool
	HarmfulIngredients bool
	Nutrition          bool
	Expiry             bool
	Usage              bool

	// MajorIngredientsOnly narrates only the leading-ingredients view.
	MajorIngredientsOnly bool

	// Per-nutrient sub-flags, each effective only while Nutrition is on.
	// Serving size, carbohydrates, and fiber are not individually gated:
	// they are included whenever present and Nutrition is on.
	Calories bool
	Fat      bool
	Sugar    bool
	Protein  bool

	// Rate is the speech rate in [0.5, 2.0]; 1.0 is normal speed.
	Rate float64
}

// DefaultPreferences enables every section at normal speed.
func DefaultPreferences() Preferences {
	return Preferences{
		ProductName:        true,
		Ingredients:        true,
		HarmfulIngredients: true,
		Nutrition:          true,
		Expiry:             true,
		Usage:              true,
		Calories:           true,
		Fat:                true,
		Sugar:              true,
		Protein:            true,
		Rate:               1.0,
	}
}

// AnswerSection wraps a question reply as a single ad hoc section.
func AnswerSection(text string) Section {
	return Section{
		Category: CategoryAnswer,
		Title:    "Answer",
		Content:  text,
	}
}
