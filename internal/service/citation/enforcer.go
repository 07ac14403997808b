// Package citation validates that factual answers carry an identifiable
// reference list before they are released to the user.
package citation

import (
	"regexp"
	"strings"

	"github.com/kidsafegpt/backend/internal/model/profile"
)

// MissingSourcesReply replaces replies that should have cited sources but
// did not. The enforcer never fabricates citations; it chooses accuracy over
// completeness and asks the user to re-ask.
const MissingSourcesReply = "I couldn't back that answer up with sources, so I'd rather not guess. " +
	"Please ask me again and I'll try to find a properly referenced answer."

// sourcesHeader matches a "Sources:" or "References:" line and captures
// everything after it.
var sourcesHeader = regexp.MustCompile(`(?is)(?:^|\n)\s*(?:Sources|References)\s*:\n(.*)$`)

// Enforce applies the profile's citation policy to an upstream reply. When
// the profile does not require citations the reply passes through unchanged.
func Enforce(reply string, p profile.Profile) string {
	if !p.RequireCitations {
		return reply
	}
	if len(ExtractSources(reply)) == 0 {
		return MissingSourcesReply
	}
	return reply
}

// ExtractSources returns up to 10 trimmed entries following the sources
// header, or nil when the reply has none.
func ExtractSources(reply string) []string {
	m := sourcesHeader.FindStringSubmatch(reply)
	if m == nil {
		return nil
	}

	var sources []string
	for _, line := range strings.Split(m[1], "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimSpace(strings.TrimPrefix(line, "-"))
		if line == "" {
			continue
		}
		sources = append(sources, line)
		if len(sources) == 10 {
			break
		}
	}
	return sources
}
