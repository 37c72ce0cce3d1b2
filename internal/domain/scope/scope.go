// Package scope restricts a search to a subset of the corpus.
package scope

// Selector is either the whole corpus or an explicit set of scope identifiers.
type Selector struct {
	members []string
	limited bool
}

// All selects every record.
func All() Selector { return Selector{} }

// Members selects records whose scope id is in ids. Duplicates are dropped.
func Members(ids []string) Selector {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return Selector{members: out, limited: true}
}

// IsAll reports whether the selector is unrestricted.
func (s Selector) IsAll() bool { return !s.limited }

// IsEmpty reports whether the selector is restricted to nothing.
func (s Selector) IsEmpty() bool { return s.limited && len(s.members) == 0 }

// IDs returns the selected scope identifiers (nil for All).
func (s Selector) IDs() []string { return s.members }
