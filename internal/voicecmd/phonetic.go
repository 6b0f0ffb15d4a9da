package voicecmd

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Matcher resolves a misheard utterance to the command keyword it most
// plausibly was. Candidates are filtered by Double Metaphone code overlap,
// then ranked by Jaro-Winkler similarity; when no candidate shares a phonetic
// code, a pure similarity pass with a stricter threshold runs instead.
//
// Read-only after construction, safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// MatcherOption is a functional option for configuring a Matcher.
type MatcherOption func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched keyword to be accepted. Default: 0.70.
func WithPhoneticThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate is found. Default: 0.85.
func WithFuzzyThreshold(threshold float64) MatcherOption {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// NewMatcher returns a Matcher with the supplied options applied.
func NewMatcher(opts ...MatcherOption) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match finds the keyword most phonetically similar to the utterance. The
// utterance may contain several tokens ("please paws"); each token is tested
// and the best keyword across all tokens wins. When matched is false, keyword
// is empty and confidence is 0.
func (m *Matcher) Match(utterance string, keywords []string) (keyword string, confidence float64, matched bool) {
	tokens := strings.Fields(strings.ToLower(strings.TrimSpace(utterance)))
	if len(tokens) == 0 || len(keywords) == 0 {
		return "", 0, false
	}

	type candidate struct {
		keyword  string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, kw := range keywords {
		kwLower := strings.ToLower(kw)
		kwCodes := metaphoneCodes(kwLower)

		for _, tok := range tokens {
			score := matchr.JaroWinkler(tok, kwLower, false)
			phonetic := codesOverlap(metaphoneCodes(tok), kwCodes)

			if phonetic {
				if score >= m.phoneticThreshold && (!best.phonetic || score > best.score) {
					best = candidate{keyword: kw, score: score, phonetic: true}
				}
			} else if !best.phonetic && score >= m.fuzzyThreshold && score > best.score {
				best = candidate{keyword: kw, score: score, phonetic: false}
			}
		}
	}

	if best.keyword == "" {
		return "", 0, false
	}
	return best.keyword, best.score, true
}

// metaphoneCodes returns the non-empty Double Metaphone codes for a word.
func metaphoneCodes(word string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

// codesOverlap reports whether the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
