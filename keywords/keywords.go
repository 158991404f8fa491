package keywords

import (
	"regexp"
	"strings"
)

// DefaultVocabulary is the built-in list of uplifting terms.
var DefaultVocabulary = []string{
	"adopted",
	"breakthrough",
	"celebrate",
	"charity",
	"community",
	"cure",
	"donate",
	"donated",
	"donation",
	"free",
	"generous",
	"gift",
	"grateful",
	"heartwarming",
	"help",
	"helped",
	"hero",
	"heroes",
	"hope",
	"inspiring",
	"kindness",
	"recovered",
	"rescue",
	"rescued",
	"restored",
	"reunited",
	"saved",
	"support",
	"thanks",
	"volunteer",
	"volunteers",
}

type term struct {
	word string
	re   *regexp.Regexp
}

// Matcher counts whole-word, case-insensitive vocabulary hits.
type Matcher struct {
	terms []term
}

// New builds a matcher over the given vocabulary. Terms are trimmed,
// lower-cased and de-duplicated; blank entries are dropped.
func New(vocabulary []string) *Matcher {
	seen := make(map[string]bool, len(vocabulary))
	m := &Matcher{}
	for _, v := range vocabulary {
		w := strings.ToLower(strings.TrimSpace(v))
		if w == "" || seen[w] {
			continue
		}
		seen[w] = true
		m.terms = append(m.terms, term{
			word: w,
			re:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(w) + `\b`),
		})
	}
	return m
}

// MatchCount returns the number of distinct vocabulary terms found in text.
func (m *Matcher) MatchCount(text string) int {
	return len(m.Matches(text))
}

// HasMatch reports whether any vocabulary term appears in text.
func (m *Matcher) HasMatch(text string) bool {
	if text == "" {
		return false
	}
	for _, t := range m.terms {
		if t.re.MatchString(text) {
			return true
		}
	}
	return false
}

// Matches returns the distinct vocabulary terms found in text, in vocabulary order.
func (m *Matcher) Matches(text string) []string {
	if text == "" {
		return nil
	}
	var found []string
	for _, t := range m.terms {
		if t.re.MatchString(text) {
			found = append(found, t.word)
		}
	}
	return found
}

// Size returns the number of terms in the vocabulary.
func (m *Matcher) Size() int {
	return len(m.terms)
}
