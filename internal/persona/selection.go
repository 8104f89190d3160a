package persona

import "fmt"

// Selection modes.
const (
	SelectAll    = "all"
	SelectRandom = "random"
	SelectFilter = "filter"
	SelectByID   = "by_id"
)

// Selection names a persona subset declaratively so the CLI and the HTTP API
// share one vocabulary.
type Selection struct {
	Mode  string   `json:"mode" yaml:"mode"`
	Count int      `json:"count,omitempty" yaml:"count,omitempty"`
	Seed  int64    `json:"seed,omitempty" yaml:"seed,omitempty"`
	Field string   `json:"field,omitempty" yaml:"field,omitempty"`
	Value string   `json:"value,omitempty" yaml:"value,omitempty"`
	IDs   []string `json:"ids,omitempty" yaml:"ids,omitempty"`
}

// Select resolves the selection against the loaded corpus.
func (s *Store) Select(sel Selection) ([]*Persona, error) {
	switch sel.Mode {
	case "", SelectAll:
		return s.All(), nil
	case SelectRandom:
		if sel.Count <= 0 {
			return nil, fmt.Errorf("random selection needs a positive count")
		}
		return s.Random(sel.Count, sel.Seed), nil
	case SelectFilter:
		if sel.Field == "" {
			return nil, fmt.Errorf("filter selection needs a field")
		}
		return s.Filter(AttributeEquals(sel.Field, sel.Value)), nil
	case SelectByID:
		if len(sel.IDs) == 0 {
			return nil, fmt.Errorf("by_id selection needs at least one id")
		}
		return s.ByID(sel.IDs...)
	default:
		return nil, fmt.Errorf("unknown selection mode %q", sel.Mode)
	}
}
