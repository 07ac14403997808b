package profile

// FaithModule selects the optional faith-companion behavior for a profile.
type FaithModule string

const (
	FaithNone              FaithModule = "none"
	FaithChristianReformed FaithModule = "christian_reformed"
	FaithJewish            FaithModule = "jewish"
	FaithMuslim            FaithModule = "muslim"
	FaithHindu             FaithModule = "hindu"
	FaithBuddhist          FaithModule = "buddhist"
	FaithCustom            FaithModule = "custom"
)

// Valid reports whether the value is part of the closed enumeration.
func (f FaithModule) Valid() bool {
	switch f {
	case FaithNone, FaithChristianReformed, FaithJewish, FaithMuslim,
		FaithHindu, FaithBuddhist, FaithCustom:
		return true
	}
	return false
}

// Profile is a parent-defined configuration for one end user. The pipeline
// only reads profiles; mutation belongs to the profile-management UI.
type Profile struct {
	ID                        string      `json:"id"`
	Name                      string      `json:"name"`
	Age                       int         `json:"age"`
	EnabledRuleIDs            []string    `json:"enabledRuleIds"`
	RequireCitations          bool        `json:"requireCitations"`
	RequireParentForSensitive bool        `json:"requireParentForSensitive"`
	FaithModule               FaithModule `json:"faithModule"`
	// CustomFaithNote is consulted only when FaithModule is "custom".
	CustomFaithNote string `json:"customFaithNote,omitempty"`
}

// Seed provides the starter profiles shipped with the product.
func Seed() []Profile {
	return []Profile{
		{
			ID:   "p_8_primary",
			Name: "Paige (8)",
			Age:  8,
			EnabledRuleIDs: []string{
				"no_sexual_topics",
				"violence_filter",
				"political_neutrality",
				"scholarly_citations",
				"ask_parent_redirect",
			},
			RequireCitations:          true,
			RequireParentForSensitive: true,
			FaithModule:               FaithChristianReformed,
		},
		{
			ID:   "d_12_middle",
			Name: "David (12)",
			Age:  12,
			EnabledRuleIDs: []string{
				"no_sexual_topics",
				"violence_filter",
				"political_neutrality",
				"scholarly_citations",
			},
			RequireCitations:          true,
			RequireParentForSensitive: true,
			FaithModule:               FaithNone,
		},
	}
}
