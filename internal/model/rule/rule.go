package rule

// Mode describes how a rule shapes model behavior.
type Mode string

const (
	ModeAllow     Mode = "allow"
	ModeBlock     Mode = "block"
	ModeTransform Mode = "transform"
)

// Rule is a named, reusable policy fragment. Rules are immutable and live in
// the static registry; profiles reference them by identifier.
type Rule struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Mode        Mode     `json:"mode"`
	Keywords    []string `json:"keywords"`
	// SystemFragment is injected into the system message when the rule is
	// enabled on the active profile.
	SystemFragment string `json:"systemFragment"`
}
