package barcode

import "strings"

// StripTag converts a namespaced allergen tag into a display form:
// "en:tree-nuts" → "tree nuts". Tags without a namespace pass through with
// hyphens replaced.
func StripTag(tag string) string {
	if i := strings.IndexByte(tag, ':'); i >= 0 {
		tag = tag[i+1:]
	}
	return strings.ReplaceAll(tag, "-", " ")
}

// StripTags maps StripTag over a tag list, dropping entries that end up empty.
func StripTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if s := strings.TrimSpace(StripTag(t)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
