// Package selector describes which properties a search materializes.
package selector

import "sort"

// Select is a property selection. The zero value selects all properties.
type Select struct {
	names map[string]struct{}
}

// All selects every property.
func All() Select { return Select{} }

// Of selects only the named properties. Empty names are ignored; selecting
// nothing valid falls back to All.
func Of(names ...string) Select {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			set[n] = struct{}{}
		}
	}
	if len(set) == 0 {
		return All()
	}
	return Select{names: set}
}

// IsAll reports whether every property is selected.
func (s Select) IsAll() bool { return len(s.names) == 0 }

// Contains reports whether name is selected.
func (s Select) Contains(name string) bool {
	if s.IsAll() {
		return true
	}
	_, ok := s.names[name]
	return ok
}

// Names returns the selected names in sorted order, or nil for All.
func (s Select) Names() []string {
	if s.IsAll() {
		return nil
	}
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
