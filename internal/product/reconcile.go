package product

import "errors"

// ErrNoEvidence is returned by [Reconcile] when neither source produced a
// record and no raw text was captured. This is the only scan failure surfaced
// to the user; everything else degrades to best-available output.
var ErrNoEvidence = errors.New("product: no barcode match and no captured text")

// FallbackName is the placeholder product name used for degraded records,
// signalling that advanced extraction was unavailable.
const FallbackName = "Unknown product"

// AllergenFunc matches an allergen profile against arbitrary text and returns
// the matched display names. Supplied by the caller so that reconciliation
// stays decoupled from the profile representation.
type AllergenFunc func(text string) []string

// Reconcile merges a barcode-derived record and a text-derived record into a
// single canonical record.
//
// The precedence is a fixed product policy and must not be reordered:
//
//  1. Both sources: name, ingredients, allergen warnings, and harmful findings
//     come from the barcode record (authoritative for label content), but
//     nutrition comes from the text record — direct reading of this specific
//     package is trusted over the database's serving-normalized values.
//  2. Barcode only: used as-is.
//  3. Text only: used as-is.
//  4. Neither, but raw text present: a minimal record carrying the raw text,
//     the fallback name, and allergen detection run directly on the raw text.
//  5. Nothing at all: [ErrNoEvidence].
//
// detect is only invoked in the degraded case (4); the richer cases carry the
// detection already performed during record building.
func Reconcile(barcode, text *Record, rawText string, detect AllergenFunc) (*Record, error) {
	switch {
	case barcode != nil && text != nil:
		merged := *barcode
		merged.Nutrition = text.Nutrition
		// Keep the raw text from the captured label, not the database.
		if text.RawText != "" {
			merged.RawText = text.RawText
		}
		// Union the profile detections from both sources, barcode first.
		merged.DetectedAllergens = mergeDetected(barcode.DetectedAllergens, text.DetectedAllergens)
		return &merged, nil

	case barcode != nil:
		return barcode, nil

	case text != nil:
		return text, nil

	case rawText != "":
		rec := NewRecord(rawText)
		rec.Name = FallbackName
		if detect != nil {
			rec.DetectedAllergens = detect(rawText)
		}
		return rec, nil

	default:
		return nil, ErrNoEvidence
	}
}

// mergeDetected unions two detection lists preserving first-occurrence order.
func mergeDetected(a, b []string) []string {
	if len(b) == 0 {
		return a
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, name := range list {
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			out = append(out, name)
		}
	}
	return out
}
