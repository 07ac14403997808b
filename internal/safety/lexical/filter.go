// Package lexical implements the local, zero-latency banned-term screen.
// It runs on the boundary as the authoritative check; any client-side copy
// is a fast-path nicety only.
package lexical

import (
	"regexp"
	"strings"
)

// RefusalMessage is the fixed, non-model-generated reply returned whenever a
// turn is blocked by the lexical screen or by remote moderation.
const RefusalMessage = "This is a topic you need to talk about with a parent or trusted adult. " +
	"I can't answer this, but please ask your mom or dad (or another adult you trust) instead."

// bannedTerms is the human-curated hard-block list. Matching is whole-word so
// that e.g. "Sussex" does not trip on "sex".
var bannedTerms = []string{
	"sex",
	"sexual",
	"porn",
	"onlyfans",
	"hookup",
	"boyfriend",
	"girlfriend",
	"dating",
	"crush",
	"sext",
	"nudes",
}

// Filter screens text against a fixed banned-term set.
type Filter struct {
	pattern *regexp.Regexp
}

// NewFilter compiles the default banned-term set.
func NewFilter() *Filter {
	return newFilter(bannedTerms)
}

func newFilter(terms []string) *Filter {
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = regexp.QuoteMeta(term)
	}
	pattern := regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
	return &Filter{pattern: pattern}
}

// Screen reports whether the text contains a banned term as a whole word.
// A true result is terminal for the pipeline.
func (f *Filter) Screen(text string) bool {
	return f.pattern.MatchString(text)
}
