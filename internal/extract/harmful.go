package extract

import "strings"

// additive pairs a harmful-additive name with the reason it is flagged.
// The list order is fixed: findings are always reported in this order, not in
// text order, so repeated scans of the same label read identically.
type additive struct {
	name     string
	reason   string
	keywords []string
}

// knownAdditives is the fixed detection list. Matching is case-insensitive
// substring containment of any keyword in the full label text.
var knownAdditives = []additive{
	{
		name:     "High-fructose corn syrup",
		reason:   "added sugar linked to obesity and metabolic disorders",
		keywords: []string{"high fructose corn syrup", "high-fructose corn syrup", "hfcs"},
	},
	{
		name:     "Monosodium glutamate",
		reason:   "flavor enhancer that can trigger headaches in sensitive people",
		keywords: []string{"monosodium glutamate", "msg", "e621"},
	},
	{
		name:     "Sodium nitrite",
		reason:   "curing agent associated with increased cancer risk",
		keywords: []string{"sodium nitrite", "e250"},
	},
	{
		name:     "Sodium nitrate",
		reason:   "curing agent associated with increased cancer risk",
		keywords: []string{"sodium nitrate", "e251"},
	},
	{
		name:     "BHA",
		reason:   "preservative classified as a possible carcinogen",
		keywords: []string{"butylated hydroxyanisole", "bha"},
	},
	{
		name:     "BHT",
		reason:   "preservative with suspected endocrine effects",
		keywords: []string{"butylated hydroxytoluene", "bht"},
	},
	{
		name:     "Potassium bromate",
		reason:   "flour improver banned in many countries as a carcinogen",
		keywords: []string{"potassium bromate", "e924"},
	},
	{
		name:     "Propyl paraben",
		reason:   "preservative with suspected hormone disruption",
		keywords: []string{"propyl paraben", "propylparaben"},
	},
	{
		name:     "Artificial colors",
		reason:   "synthetic dyes linked to hyperactivity in children",
		keywords: []string{"artificial color", "artificial colour", "fd&c", "red 40", "yellow 5", "yellow 6", "blue 1"},
	},
	{
		name:     "Artificial flavors",
		reason:   "undisclosed synthetic flavor compounds",
		keywords: []string{"artificial flavor", "artificial flavour"},
	},
	{
		name:     "Aspartame",
		reason:   "artificial sweetener; avoid with phenylketonuria",
		keywords: []string{"aspartame", "e951"},
	},
	{
		name:     "Saccharin",
		reason:   "artificial sweetener with a controversial safety history",
		keywords: []string{"saccharin", "e954"},
	},
	{
		name:     "Sucralose",
		reason:   "artificial sweetener that may affect gut bacteria",
		keywords: []string{"sucralose", "e955"},
	},
	{
		name:     "Acesulfame potassium",
		reason:   "artificial sweetener with limited long-term safety data",
		keywords: []string{"acesulfame", "ace-k", "e950"},
	},
	{
		name:     "Partially hydrogenated oils",
		reason:   "primary dietary source of trans fat",
		keywords: []string{"partially hydrogenated"},
	},
	{
		name:     "Trans fat",
		reason:   "raises bad cholesterol and heart disease risk",
		keywords: []string{"trans fat", "trans-fat"},
	},
	{
		name:     "Sodium benzoate",
		reason:   "preservative that can form benzene with vitamin C",
		keywords: []string{"sodium benzoate", "e211"},
	},
}

// Harmful scans the full text for known harmful additives and returns findings
// as "name: reason" strings, ordered by the fixed additive list.
func Harmful(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for _, a := range knownAdditives {
		for _, kw := range a.keywords {
			if strings.Contains(lower, kw) {
				out = append(out, a.name+": "+a.reason)
				break
			}
		}
	}
	return out
}
