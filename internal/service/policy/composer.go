// Package policy builds the system-level instruction text from the active
// profile and its enabled rules. Composition is deterministic: the same
// profile value always yields byte-identical output, which keeps the policy
// auditable and testable.
package policy

import (
	"fmt"
	"strings"

	"github.com/kidsafegpt/backend/internal/model/profile"
	"github.com/kidsafegpt/backend/internal/model/rule"
)

// Composer assembles system messages against a fixed rule registry.
type Composer struct {
	rules *rule.Registry
}

// NewComposer binds the composer to the rule library.
func NewComposer(rules *rule.Registry) *Composer {
	return &Composer{rules: rules}
}

// Compose returns the single system-role text that precedes the user's
// messages upstream. Fragment order: baseline persona, one fragment per
// enabled rule in profile order, citation policy, faith module, closing
// refusal directive. Empty fragments are dropped.
func (c *Composer) Compose(p profile.Profile) string {
	fragments := []string{
		"You are KidSafe GPT, a helpful, age-aware educational assistant.",
		fmt.Sprintf("Respond for a child approximately age %d. Use simple, friendly language without being patronizing.", p.Age),
		"If a question is unclear or seems sensitive for minors, explain why and suggest asking a parent.",
		"Keep answers concise, factual, and non-sensational; avoid graphic detail.",
	}

	for _, r := range c.rules.Resolve(p.EnabledRuleIDs) {
		fragments = append(fragments, fmt.Sprintf("Rule(%s): %s", r.Label, r.SystemFragment))
	}

	fragments = append(fragments, citationFragment(p))
	fragments = append(fragments, faithFragment(p))
	fragments = append(fragments, "If a topic is blocked by policy, politely refuse and suggest discussing with a parent.")

	kept := fragments[:0]
	for _, fragment := range fragments {
		if fragment != "" {
			kept = append(kept, fragment)
		}
	}
	return strings.Join(kept, "\n")
}

func citationFragment(p profile.Profile) string {
	if !p.RequireCitations {
		return ""
	}
	return "When claims involve facts, history, science, or health, include a short 'Sources' list with reputable/peer-reviewed references."
}

func faithFragment(p profile.Profile) string {
	if p.FaithModule == profile.FaithNone {
		return "Do not add any faith content unless explicitly requested by the user or parent."
	}

	fragment := fmt.Sprintf("If the parent toggles 'Faith Companion', append a short '%s' perspective.", p.FaithModule)
	if p.FaithModule == profile.FaithCustom && p.CustomFaithNote != "" {
		fragment += " Parent note: " + p.CustomFaithNote
	}
	return fragment
}
