// Package selection tracks which catalog models the user wants to query.
package selection

import "github.com/pennh4i/tentacool/internal/model"

// Set is a set of model identity keys drawn from one catalog listing.
// Keys outside that listing are never admitted. A Set is not safe for
// concurrent use; the workflow controller serializes access.
type Set struct {
	known    map[string]model.ModelRef
	order    []string
	selected map[string]struct{}
}

// New creates a Set over the given catalog models. With selectAll every
// model starts out selected.
func New(catalog []model.ModelRef, selectAll bool) *Set {
	s := &Set{
		known:    make(map[string]model.ModelRef, len(catalog)),
		selected: make(map[string]struct{}, len(catalog)),
	}
	for _, ref := range catalog {
		key := ref.Key()
		if _, dup := s.known[key]; dup {
			continue
		}
		s.known[key] = ref
		s.order = append(s.order, key)
		if selectAll {
			s.selected[key] = struct{}{}
		}
	}
	return s
}

// Toggle flips membership of one model. Unknown keys are ignored.
// It reports whether the model is selected afterwards.
func (s *Set) Toggle(key string) bool {
	if _, ok := s.known[key]; !ok {
		return false
	}
	if _, ok := s.selected[key]; ok {
		delete(s.selected, key)
		return false
	}
	s.selected[key] = struct{}{}
	return true
}

// ToggleAll clears the selection when it already covers all of all, and
// otherwise selects exactly all. Calling it twice from empty returns to
// empty.
func (s *Set) ToggleAll(all []model.ModelRef) {
	keys := make([]string, 0, len(all))
	for _, ref := range all {
		if _, ok := s.known[ref.Key()]; ok {
			keys = append(keys, ref.Key())
		}
	}

	if len(s.selected) == len(keys) && s.coversAll(keys) {
		clear(s.selected)
		return
	}
	clear(s.selected)
	for _, k := range keys {
		s.selected[k] = struct{}{}
	}
}

// SelectAll selects every known model.
func (s *Set) SelectAll() {
	for _, k := range s.order {
		s.selected[k] = struct{}{}
	}
}

// Clear deselects everything.
func (s *Set) Clear() {
	clear(s.selected)
}

// Has reports whether key is selected.
func (s *Set) Has(key string) bool {
	_, ok := s.selected[key]
	return ok
}

// Len returns the number of selected models.
func (s *Set) Len() int {
	return len(s.selected)
}

// Total returns the number of known models.
func (s *Set) Total() int {
	return len(s.order)
}

// Empty reports whether nothing is selected.
func (s *Set) Empty() bool {
	return len(s.selected) == 0
}

// Refs returns the selected models in catalog order.
func (s *Set) Refs() []model.ModelRef {
	refs := make([]model.ModelRef, 0, len(s.selected))
	for _, k := range s.order {
		if _, ok := s.selected[k]; ok {
			refs = append(refs, s.known[k])
		}
	}
	return refs
}

// Keys returns the selected identity keys in catalog order.
func (s *Set) Keys() []string {
	keys := make([]string, 0, len(s.selected))
	for _, k := range s.order {
		if _, ok := s.selected[k]; ok {
			keys = append(keys, k)
		}
	}
	return keys
}

// All returns every known model in catalog order.
func (s *Set) All() []model.ModelRef {
	refs := make([]model.ModelRef, 0, len(s.order))
	for _, k := range s.order {
		refs = append(refs, s.known[k])
	}
	return refs
}

func (s *Set) coversAll(keys []string) bool {
	for _, k := range keys {
		if _, ok := s.selected[k]; !ok {
			return false
		}
	}
	return true
}
