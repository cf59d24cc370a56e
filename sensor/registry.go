// Package sensor holds the polled sensor list and the results produced for it.
package sensor

import (
	"fmt"
	"regexp"
)

var entityIDPattern = regexp.MustCompile(`^[a-z0-9_]+\.[a-z0-9_]+$`)

// Entry is a single sensor to poll: the label printed on the console and the
// Home Assistant entity id it is read from.
type Entry struct {
	Label    string `json:"label" yaml:"label"`
	EntityID string `json:"entity_id" yaml:"entity_id"`
}

func (e Entry) validate() error {
	if e.Label == "" {
		return fmt.Errorf("sensor %q has an empty label", e.EntityID)
	}
	if !entityIDPattern.MatchString(e.EntityID) {
		return fmt.Errorf("sensor %q has invalid entity id %q, expected domain.object_id", e.Label, e.EntityID)
	}
	return nil
}

// Registry is the ordered, read-only list of sensors. Order is polling order.
type Registry struct {
	entries []Entry
}

// NewRegistry validates entries and copies them into a Registry.
func NewRegistry(entries []Entry) (*Registry, error) {
	copied := make([]Entry, len(entries))
	for i, e := range entries {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("sensor %d: %w", i, err)
		}
		copied[i] = e
	}

	return &Registry{entries: copied}, nil
}

// Entries returns a copy of the configured entries in polling order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// Duplicates returns entity ids that appear more than once, in order of first
// repetition.
func (r *Registry) Duplicates() []string {
	seen := map[string]int{}
	var dups []string
	for _, e := range r.entries {
		seen[e.EntityID]++
		if seen[e.EntityID] == 2 {
			dups = append(dups, e.EntityID)
		}
	}
	return dups
}
