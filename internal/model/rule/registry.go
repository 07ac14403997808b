package rule

// Registry holds the rule library keyed by identifier. It is loaded once at
// process start and never mutated afterwards.
type Registry struct {
	byID  map[string]Rule
	order []string
}

// NewRegistry indexes the supplied rules. Later duplicates win.
func NewRegistry(rules []Rule) *Registry {
	r := &Registry{byID: make(map[string]Rule, len(rules))}
	for _, item := range rules {
		if _, seen := r.byID[item.ID]; !seen {
			r.order = append(r.order, item.ID)
		}
		r.byID[item.ID] = item
	}
	return r
}

// List returns every rule in library order.
func (r *Registry) List() []Rule {
	out := make([]Rule, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// FindByID looks up a rule by identifier.
func (r *Registry) FindByID(id string) (Rule, bool) {
	item, ok := r.byID[id]
	return item, ok
}

// Resolve maps enabled-rule identifiers to rules, preserving the profile's
// order and skipping identifiers the library does not know.
func (r *Registry) Resolve(ids []string) []Rule {
	out := make([]Rule, 0, len(ids))
	for _, id := range ids {
		if item, ok := r.byID[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

// Library provides the built-in rule set shipped with the product.
func Library() []Rule {
	return []Rule{
		{
			ID:          "no_sexual_topics",
			Label:       "Block sexual/interpersonal topics",
			Description: "Decline content about sex, dating, explicit material; redirect to parent.",
			Mode:        ModeBlock,
			Keywords:    []string{"sex", "sexual", "dating", "porn", "nsfw", "explicit"},
			SystemFragment: "Politely refuse any sexual, pornographic, dating, or explicit content. " +
				"Say you cannot discuss that and suggest asking a parent.",
		},
		{
			ID:          "violence_filter",
			Label:       "Filter graphic violence",
			Description: "Allow historical discussion but omit graphic details; reinforce safety.",
			Mode:        ModeTransform,
			Keywords:    []string{"gore", "graphic", "blood"},
			SystemFragment: "If violence appears, keep discussion factual and age-appropriate, " +
				"omit graphic details, and emphasize safety and empathy.",
		},
		{
			ID:          "political_neutrality",
			Label:       "Political neutrality",
			Description: "Avoid partisan persuasion; focus on verifiable facts and balanced views.",
			Mode:        ModeTransform,
			Keywords:    []string{"election", "democrat", "republican", "liberal", "conservative"},
			SystemFragment: "Maintain political neutrality. Provide balanced, sourced information " +
				"and avoid persuasive language.",
		},
		{
			ID:          "faith_options",
			Label:       "Faith-aware companion",
			Description: "When asked for, append an optional faith-based companion section.",
			Mode:        ModeTransform,
			Keywords:    []string{"faith", "bible", "scripture", "quran", "torah"},
			SystemFragment: "When FAITH_COMPANION is requested, add a short, respectful faith-based " +
				"companion section matching the selected faith tradition.",
		},
		{
			ID:          "scholarly_citations",
			Label:       "Require citations",
			Description: "For educational topics, cite peer-reviewed or reputable sources when applicable.",
			Mode:        ModeTransform,
			Keywords:    []string{"study", "paper", "citation", "evidence"},
			SystemFragment: "When the user asks academic/educational questions, include a concise " +
				"'Sources' list referencing peer-reviewed or reputable sources, with " +
				"author/title/year or DOI/URL.",
		},
		{
			ID:          "ask_parent_redirect",
			Label:       "Ask-a-Parent redirect",
			Description: "Intercept sensitive topics and ask for parent approval before proceeding.",
			Mode:        ModeTransform,
			Keywords:    []string{"suicide", "self-harm", "sex", "drugs", "extremism", "gore"},
			SystemFragment: "If a topic appears sensitive for minors, suggest asking a parent or " +
				"trusted adult and pause until approved.",
		},
	}
}
