package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/nutrivox/nutrivox/internal/allergen"
	"github.com/nutrivox/nutrivox/internal/product"
	"github.com/nutrivox/nutrivox/pkg/provider/llm"
	"github.com/nutrivox/nutrivox/pkg/types"
)

// extractionSystemPrompt instructs the model to act as a label reader and emit
// exactly the JSON shape the decoder expects. Kept in one place so prompt and
// schema cannot drift apart silently.
const extractionSystemPrompt = `You are a food label analyst. You are given the raw OCR text of a packaged
food label and a list of allergens the user must avoid. Extract the label
contents into a single JSON object with exactly these top-level keys:
"product_name", "ingredients", "nutrition", "allergen_warnings",
"detected_user_allergens", "harmful_ingredients", "expiry_date",
"storage_instructions".

"ingredients", "allergen_warnings", "detected_user_allergens", and
"harmful_ingredients" are arrays of strings. "nutrition" is an object with the
keys "serving_size", "calories", "total_fat", "saturated_fat", "trans_fat",
"carbohydrates", "sugars", "fiber", "protein", "sodium", "cholesterol"; each
value is a string like "150 kcal" or "2.5 g". "harmful_ingredients" entries are
"name: reason" strings. Use the literal string "null" for any scalar you cannot
determine and an empty array for any list you cannot determine. Respond with
the JSON object only, no prose.`

// extractionSchema is the structural contract for the model's reply. Scalars
// may arrive as strings or numbers; normalization happens after validation.
var extractionSchema = map[string]any{
	"type": "object",
	"required": []any{
		"product_name", "ingredients", "nutrition", "allergen_warnings",
		"detected_user_allergens", "harmful_ingredients", "expiry_date",
		"storage_instructions",
	},
	"properties": map[string]any{
		"product_name":            map[string]any{"type": []any{"string", "null"}},
		"ingredients":             map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"allergen_warnings":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"detected_user_allergens": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"harmful_ingredients":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"expiry_date":             map[string]any{"type": []any{"string", "null"}},
		"storage_instructions":    map[string]any{"type": []any{"string", "null"}},
		"nutrition": map[string]any{
			"type": []any{"object", "null"},
			"properties": map[string]any{
				"serving_size":  map[string]any{"type": []any{"string", "number", "null"}},
				"calories":      map[string]any{"type": []any{"string", "number", "null"}},
				"total_fat":     map[string]any{"type": []any{"string", "number", "null"}},
				"saturated_fat": map[string]any{"type": []any{"string", "number", "null"}},
				"trans_fat":     map[string]any{"type": []any{"string", "number", "null"}},
				"carbohydrates": map[string]any{"type": []any{"string", "number", "null"}},
				"sugars":        map[string]any{"type": []any{"string", "number", "null"}},
				"fiber":         map[string]any{"type": []any{"string", "number", "null"}},
				"protein":       map[string]any{"type": []any{"string", "number", "null"}},
				"sodium":        map[string]any{"type": []any{"string", "number", "null"}},
				"cholesterol":   map[string]any{"type": []any{"string", "number", "null"}},
			},
		},
	},
}

// scalar is a JSON value that may arrive as a string, a number, or null.
// The literal string "null" and blank strings normalize to absent.
type scalar string

func (s *scalar) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		str = strings.TrimSpace(str)
		if strings.EqualFold(str, "null") {
			str = ""
		}
		*s = scalar(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(data, &num); err != nil {
		return err
	}
	*s = scalar(num.String())
	return nil
}

// aiResponse mirrors the JSON object the extraction prompt requests.
type aiResponse struct {
	ProductName           scalar   `json:"product_name"`
	Ingredients           []string `json:"ingredients"`
	Nutrition             aiNutrition
	AllergenWarnings      []string `json:"allergen_warnings"`
	DetectedUserAllergens []string `json:"detected_user_allergens"`
	HarmfulIngredients    []string `json:"harmful_ingredients"`
	ExpiryDate            scalar   `json:"expiry_date"`
	StorageInstructions   scalar   `json:"storage_instructions"`
}

type aiNutrition struct {
	ServingSize   scalar `json:"serving_size"`
	Calories      scalar `json:"calories"`
	TotalFat      scalar `json:"total_fat"`
	SaturatedFat  scalar `json:"saturated_fat"`
	TransFat      scalar `json:"trans_fat"`
	Carbohydrates scalar `json:"carbohydrates"`
	Sugars        scalar `json:"sugars"`
	Fiber         scalar `json:"fiber"`
	Protein       scalar `json:"protein"`
	Sodium        scalar `json:"sodium"`
	Cholesterol   scalar `json:"cholesterol"`
}

// UnmarshalJSON handles the top-level object manually so a JSON null nutrition
// value decodes to an empty aiNutrition instead of failing.
func (r *aiResponse) UnmarshalJSON(data []byte) error {
	type alias aiResponse
	aux := struct {
		*alias
		Nutrition json.RawMessage `json:"nutrition"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.Nutrition) == 0 || string(aux.Nutrition) == "null" {
		return nil
	}
	return json.Unmarshal(aux.Nutrition, &r.Nutrition)
}

// AIExtractor turns raw label text into a product record via an LLM call.
type AIExtractor struct {
	provider llm.Provider
	schema   *jsonschema.Schema
}

// NewAIExtractor compiles the response schema once and returns the extractor.
func NewAIExtractor(provider llm.Provider) (*AIExtractor, error) {
	b, err := json.Marshal(extractionSchema)
	if err != nil {
		return nil, fmt.Errorf("pipeline: marshal extraction schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("extraction.json", bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("pipeline: add extraction schema: %w", err)
	}
	schema, err := compiler.Compile("extraction.json")
	if err != nil {
		return nil, fmt.Errorf("pipeline: compile extraction schema: %w", err)
	}
	return &AIExtractor{provider: provider, schema: schema}, nil
}

// Extract sends the raw label text and the user's allergen names to the model
// and decodes the structured reply into a product record.
//
// Malformed or schema-violating replies never fail the scan: they degrade to a
// record carrying only the raw text, locally matched allergens, and a
// harmful-findings entry describing the parse failure. Only transport-level
// errors (the model call itself failing) are returned to the caller.
func (e *AIExtractor) Extract(ctx context.Context, rawText string, profile allergen.Profile) (*product.Record, error) {
	req := llm.CompletionRequest{
		SystemPrompt: extractionSystemPrompt,
		Messages: []types.Message{{
			Role:    "user",
			Content: buildExtractionPrompt(rawText, profile),
		}},
		Temperature: 0,
		JSONOnly:    true,
	}

	resp, err := e.provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("pipeline: ai extraction: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return degradedRecord(rawText, profile, "empty model response"), nil
	}

	payload := []byte(stripCodeFence(resp.Content))

	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return degradedRecord(rawText, profile, fmt.Sprintf("malformed JSON: %v", err)), nil
	}
	if err := e.schema.Validate(v); err != nil {
		return degradedRecord(rawText, profile, fmt.Sprintf("response does not match schema: %v", err)), nil
	}

	var ai aiResponse
	if err := json.Unmarshal(payload, &ai); err != nil {
		return degradedRecord(rawText, profile, fmt.Sprintf("malformed JSON: %v", err)), nil
	}

	return recordFromAI(rawText, profile, ai), nil
}

// buildExtractionPrompt assembles the user message: the allergen names to
// watch for, then the raw label text.
func buildExtractionPrompt(rawText string, profile allergen.Profile) string {
	var b strings.Builder
	names := profile.Names()
	if len(names) > 0 {
		b.WriteString("User allergens to detect: ")
		b.WriteString(strings.Join(names, ", "))
		b.WriteString("\n\n")
	} else {
		b.WriteString("The user has no configured allergens.\n\n")
	}
	b.WriteString("Label text:\n")
	b.WriteString(rawText)
	return b.String()
}

// stripCodeFence removes a markdown ```json fence if the model wrapped its
// reply in one despite the JSON-only instruction.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// degradedRecord is the malformed-AI-response fallback: raw text, local
// allergen detection, and a harmful-findings entry naming the failure.
func degradedRecord(rawText string, profile allergen.Profile, reason string) *product.Record {
	rec := product.NewRecord(rawText)
	rec.DetectedAllergens = allergen.Match(rawText, profile)
	rec.HarmfulFindings = []string{"AI extraction failed: " + reason}
	return rec
}

// recordFromAI maps a validated model reply onto a product record.
//
// The model's detected_user_allergens list is advisory: entries are kept only
// when they name a profile allergen, and local keyword matching over the raw
// text is unioned in, so DetectedAllergens stays a profile match.
func recordFromAI(rawText string, profile allergen.Profile, ai aiResponse) *product.Record {
	rec := product.NewRecord(rawText)
	rec.Name = string(ai.ProductName)
	rec.Ingredients = cleanList(ai.Ingredients)
	rec.AllergenWarnings = cleanList(ai.AllergenWarnings)
	rec.HarmfulFindings = cleanList(ai.HarmfulIngredients)
	rec.Expiry = string(ai.ExpiryDate)
	rec.Usage = string(ai.StorageInstructions)

	rec.Nutrition = product.Nutrition{
		ServingSize:   string(ai.Nutrition.ServingSize),
		Calories:      string(ai.Nutrition.Calories),
		TotalFat:      string(ai.Nutrition.TotalFat),
		SaturatedFat:  string(ai.Nutrition.SaturatedFat),
		TransFat:      string(ai.Nutrition.TransFat),
		Carbohydrates: string(ai.Nutrition.Carbohydrates),
		Sugars:        string(ai.Nutrition.Sugars),
		Fiber:         string(ai.Nutrition.Fiber),
		Protein:       string(ai.Nutrition.Protein),
		Sodium:        string(ai.Nutrition.Sodium),
		Cholesterol:   string(ai.Nutrition.Cholesterol),
	}

	detected := allergen.Match(rawText, profile)
	profileNames := make(map[string]string, len(profile.Names()))
	for _, name := range profile.Names() {
		profileNames[strings.ToLower(name)] = name
	}
	seen := make(map[string]bool, len(detected))
	for _, d := range detected {
		seen[strings.ToLower(d)] = true
	}
	for _, reported := range ai.DetectedUserAllergens {
		canonical, ok := profileNames[strings.ToLower(strings.TrimSpace(reported))]
		if !ok || seen[strings.ToLower(canonical)] {
			continue
		}
		seen[strings.ToLower(canonical)] = true
		detected = append(detected, canonical)
	}
	rec.DetectedAllergens = detected

	return rec
}

// cleanList trims entries and drops blanks and literal "null" strings.
func cleanList(in []string) []string {
	var out []string
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || strings.EqualFold(s, "null") {
			continue
		}
		out = append(out, s)
	}
	return out
}
