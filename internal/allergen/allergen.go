// Package allergen implements keyword-based detection of user-configured
// allergens in arbitrary text.
//
// A profile combines enumerated common allergens — each with a canonical
// display name and a fixed keyword set covering synonyms and derivatives —
// with free-text custom allergen names. Matching is case-insensitive substring
// containment, stable in profile iteration order, with duplicates collapsed to
// the first occurrence.
package allergen

import "strings"

// Common is an enumerated common allergen.
type Common int

const (
	Milk Common = iota
	Eggs
	Peanuts
	TreeNuts
	Soy
	Wheat
	Fish
	Shellfish
	Sesame
)

// commonInfo pairs a common allergen with its display name and keyword set.
var commonInfo = map[Common]struct {
	display  string
	keywords []string
}{
	Milk:      {"Milk", []string{"milk", "dairy", "lactose", "casein", "whey", "cream", "butter", "cheese", "yogurt"}},
	Eggs:      {"Eggs", []string{"egg", "albumin", "albumen", "mayonnaise", "meringue"}},
	Peanuts:   {"Peanuts", []string{"peanut", "groundnut", "arachis"}},
	TreeNuts:  {"Tree nuts", []string{"almond", "cashew", "walnut", "pecan", "pistachio", "hazelnut", "macadamia", "brazil nut"}},
	Soy:       {"Soy", []string{"soy", "soya", "soybean", "edamame", "tofu", "lecithin"}},
	Wheat:     {"Wheat", []string{"wheat", "gluten", "flour", "semolina", "durum", "spelt", "farina"}},
	Fish:      {"Fish", []string{"fish", "anchovy", "cod", "salmon", "tuna", "tilapia", "worcestershire"}},
	Shellfish: {"Shellfish", []string{"shellfish", "shrimp", "prawn", "crab", "lobster", "crayfish", "mollusc", "oyster", "mussel", "clam", "scallop"}},
	Sesame:    {"Sesame", []string{"sesame", "tahini", "benne"}},
}

// DisplayName returns the canonical display name for a common allergen, or ""
// for an unknown value.
func (c Common) DisplayName() string {
	return commonInfo[c].display
}

// Keywords returns the fixed keyword set for a common allergen.
func (c Common) Keywords() []string {
	return commonInfo[c].keywords
}

// CommonFromName resolves a configuration name ("milk", "tree nuts", ...) to
// its Common value. Matching is case-insensitive and ignores surrounding
// whitespace.
func CommonFromName(name string) (Common, bool) {
	want := strings.ToLower(strings.TrimSpace(name))
	for c, info := range commonInfo {
		if strings.ToLower(info.display) == want {
			return c, true
		}
	}
	return 0, false
}

// Profile is one user's allergen configuration. It is read once at pipeline
// invocation time and treated as immutable for the duration of a scan.
type Profile struct {
	// Common lists the enumerated allergens, in user-configured order.
	Common []Common

	// Custom lists free-text allergen names. Each is matched as its own
	// keyword and reported by its stored literal text.
	Custom []string
}

// IsEmpty reports whether the profile contains no allergens at all.
func (p Profile) IsEmpty() bool {
	return len(p.Common) == 0 && len(p.Custom) == 0
}

// Names returns the display names of every allergen in the profile, in
// profile order. Used when building the AI extraction prompt.
func (p Profile) Names() []string {
	out := make([]string, 0, len(p.Common)+len(p.Custom))
	for _, c := range p.Common {
		if name := c.DisplayName(); name != "" {
			out = append(out, name)
		}
	}
	out = append(out, p.Custom...)
	return out
}

// Match returns the display names of profile allergens whose keywords occur in
// text. The result preserves profile iteration order (common allergens first,
// then custom names) and contains each display name at most once, no matter
// how often its keywords repeat.
func Match(text string, profile Profile) []string {
	if text == "" || profile.IsEmpty() {
		return nil
	}
	lower := strings.ToLower(text)

	var out []string
	seen := make(map[string]struct{})

	add := func(display string) {
		if _, ok := seen[display]; ok {
			return
		}
		seen[display] = struct{}{}
		out = append(out, display)
	}

	for _, c := range profile.Common {
		info, ok := commonInfo[c]
		if !ok {
			continue
		}
		for _, kw := range info.keywords {
			if strings.Contains(lower, kw) {
				add(info.display)
				break
			}
		}
	}

	for _, custom := range profile.Custom {
		kw := strings.ToLower(strings.TrimSpace(custom))
		if kw == "" {
			continue
		}
		if strings.Contains(lower, kw) {
			add(custom)
		}
	}

	return out
}
