// Package symset provides the string set used for every name and path
// collection in a cell record.
package symset

import (
	"encoding/json"
	"sort"
)

// Set is an unordered collection of symbol names or file paths.
// The zero value (nil) is a valid empty set for reads; use New or Add
// through a pointer-free make before writing.
type Set map[string]struct{}

// New returns a set containing items.
func New(items ...string) Set {
	s := make(Set, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

// Add inserts items into s.
func (s Set) Add(items ...string) {
	for _, it := range items {
		s[it] = struct{}{}
	}
}

// AddAll inserts every member of other into s.
func (s Set) AddAll(other Set) {
	for it := range other {
		s[it] = struct{}{}
	}
}

// Has reports whether item is a member of s.
func (s Set) Has(item string) bool {
	_, ok := s[item]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int { return len(s) }

// Sorted returns the members in ascending order. Never nil.
func (s Set) Sorted() []string {
	out := make([]string, 0, len(s))
	for it := range s {
		out = append(out, it)
	}
	sort.Strings(out)
	return out
}

// Clone returns an independent copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for it := range s {
		out[it] = struct{}{}
	}
	return out
}

// Intersect returns the members present in both s and other.
func (s Set) Intersect(other Set) Set {
	out := make(Set)
	small, large := s, other
	if len(large) < len(small) {
		small, large = large, small
	}
	for it := range small {
		if large.Has(it) {
			out[it] = struct{}{}
		}
	}
	return out
}

// Minus returns the members of s absent from every one of others.
func (s Set) Minus(others ...Set) Set {
	out := make(Set, len(s))
	for it := range s {
		drop := false
		for _, o := range others {
			if o.Has(it) {
				drop = true
				break
			}
		}
		if !drop {
			out[it] = struct{}{}
		}
	}
	return out
}

// Map returns a new set with fn applied to every member.
func (s Set) Map(fn func(string) string) Set {
	out := make(Set, len(s))
	for it := range s {
		out[fn(it)] = struct{}{}
	}
	return out
}

// Equal reports whether s and other have the same members.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for it := range s {
		if !other.Has(it) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the set as a sorted array so output is stable.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a JSON array of strings. A JSON null yields an
// empty set.
func (s *Set) UnmarshalJSON(data []byte) error {
	var items []string
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = New(items...)
	return nil
}
