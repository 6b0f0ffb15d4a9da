// Package extract implements rule-based structured-field extraction from
// normalized food label text: ingredient lists, nutrition facts, expiry dates,
// usage instructions, and known harmful additives.
//
// Extraction is a pure computation: no I/O, no error returns. A pattern that
// does not match simply leaves the corresponding field absent. Running the
// extractor twice on the same input yields identical results.
package extract

import (
	"regexp"
	"strings"

	"github.com/nutrivox/nutrivox/internal/product"
)

// Result holds everything the extractor pulled out of one label text.
type Result struct {
	// Ingredients in label order. Empty when no ingredient section was found.
	Ingredients []string

	// Nutrition carries whichever tracked nutrients matched.
	Nutrition product.Nutrition

	// Expiry is the matched expiry/best-before string, empty when absent.
	Expiry string

	// Usage is the matched usage-instructions sentence, empty when absent.
	Usage string

	// Harmful lists detected harmful additives as "name: reason" strings, in
	// the fixed additive-list order (not text order).
	Harmful []string
}

// IsEmpty reports whether the extractor found nothing at all.
func (r Result) IsEmpty() bool {
	return len(r.Ingredients) == 0 && r.Nutrition.IsEmpty() &&
		r.Expiry == "" && r.Usage == "" && len(r.Harmful) == 0
}

// FromText extracts all tracked fields from normalized label text. The input
// is expected to be whitespace-trimmed with text blocks separated by blank
// lines (see the pipeline's text concatenation contract).
func FromText(text string) Result {
	return Result{
		Ingredients: Ingredients(text),
		Nutrition:   NutritionFacts(text),
		Expiry:      Expiry(text),
		Usage:       Usage(text),
		Harmful:     Harmful(text),
	}
}

// ingredientsHeader locates the start of an ingredient section.
var ingredientsHeader = regexp.MustCompile(`(?i)\b(?:ingredients|contains)\b\s*[:\-]?\s*`)

// sectionBoundary matches the start of any other known label section; the
// ingredient list is bounded by the first such occurrence after its header.
var sectionBoundary = regexp.MustCompile(`(?i)\b(?:nutrition|calories|energy|allergen|allergy|warning|best\s+before|use\s+by|expiry|storage)\b`)

// parenthetical matches parenthesised sub-lists inside an ingredient section,
// e.g. "emulsifier (soy lecithin, E322)".
var parenthetical = regexp.MustCompile(`\([^)]*\)`)

// Ingredients extracts the ordered ingredient list. The section is introduced
// by an "ingredients"/"contains" label and bounded by the next known section
// header or end of text. Parenthetical sub-lists are stripped, fragments are
// split on commas and semicolons, and empty or single-character fragments are
// dropped.
func Ingredients(text string) []string {
	loc := ingredientsHeader.FindStringIndex(text)
	if loc == nil {
		return nil
	}
	section := text[loc[1]:]
	if end := sectionBoundary.FindStringIndex(section); end != nil {
		section = section[:end[0]]
	}

	return SplitIngredientList(section)
}

// SplitIngredientList splits a raw ingredient string into trimmed fragments:
// parenthetical sub-lists are stripped, fragments are split on commas and
// semicolons, and empty or single-character fragments are dropped. Also used
// by the pipeline on barcode-database ingredient text, which arrives without
// a section header.
func SplitIngredientList(section string) []string {
	section = parenthetical.ReplaceAllString(section, "")

	var out []string
	for _, frag := range strings.FieldsFunc(section, func(r rune) bool {
		return r == ',' || r == ';'
	}) {
		frag = strings.Trim(frag, " \t\r\n.:-")
		if len(frag) <= 1 {
			continue
		}
		out = append(out, frag)
	}
	return out
}

// expiryPattern matches an expiry label synonym followed by a date in one of
// the accepted forms: numeric D/M/Y or M/Y (slash, dash, or dot separators),
// month-name + year, or day + month-name + year.
var expiryPattern = regexp.MustCompile(`(?i)\b(?:best\s+before|use\s+by|expiry|expiration|exp|bb)\b[\s:.\-]*` +
	`(\d{1,2}[/\-.]\d{1,2}[/\-.]\d{2,4}` +
	`|\d{1,2}[/\-.]\d{4}` +
	`|\d{1,2}(?:st|nd|rd|th)?\s+(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\s*,?\s*\d{2,4}` +
	`|(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\s*,?\s+\d{4})`)

// Expiry extracts the expiry/best-before date string. Only the date portion is
// returned, not the label synonym.
func Expiry(text string) string {
	m := expiryPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// usagePatterns are tried in priority order: storage guidance first, then
// consumption window, then post-opening guidance. Each captures up to the next
// sentence terminator.
var usagePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:refrigerate|store\s+in|keep\s+in)\b[^.!?\n]*`),
	regexp.MustCompile(`(?i)\b(?:use\s+within|consume\s+within)\b[^.!?\n]*`),
	regexp.MustCompile(`(?i)\bafter\s+opening\b[^.!?\n]*`),
}

// Usage extracts the first matching usage-instructions sentence.
func Usage(text string) string {
	for _, p := range usagePatterns {
		if m := p.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}
