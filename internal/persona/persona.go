// Package persona owns the loaded corpus of digital-twin profiles and answers
// selection queries for a run. Personas are immutable after load; every other
// component holds references into the store, never copies.
package persona

import (
	"sort"
	"strings"
)

// Persona is one real individual's profile used to condition model output.
type Persona struct {
	ID         string            `json:"id"`
	Narrative  string            `json:"narrative"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Attribute returns the named attribute value and whether it is present.
func (p *Persona) Attribute(name string) (string, bool) {
	value, ok := p.Attributes[name]
	return value, ok
}

// Summary returns a short human-readable description for previews: the
// attribute pairs in sorted key order plus a truncated narrative.
func (p *Persona) Summary() string {
	var parts []string

	keys := make([]string, 0, len(p.Attributes))
	for key := range p.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, key+": "+p.Attributes[key])
	}

	narrative := strings.TrimSpace(p.Narrative)
	if narrative != "" {
		parts = append(parts, truncateRunes(narrative, 200))
	}
	if len(parts) == 0 {
		return "no profile data"
	}
	return strings.Join(parts, "\n")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
