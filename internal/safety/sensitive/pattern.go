// Package sensitive detects topics that require parent sign-off before a
// turn may proceed. The set is deliberately broader than the lexical
// hard-block list; a match pauses the turn, it does not refuse it.
package sensitive

import (
	"regexp"
	"strings"
)

var keywords = []string{
	"sex",
	"sexual",
	"dating",
	"porn",
	"suicide",
	"self-harm",
	"self harm",
	"extremism",
	"gore",
	"drugs",
	"nsfw",
}

var pattern = compile(keywords)

func compile(terms []string) *regexp.Regexp {
	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = regexp.QuoteMeta(term)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)
}

// Match reports whether the raw user text touches a sensitive topic.
func Match(text string) bool {
	return pattern.MatchString(text)
}
