// Package selection decides which catalog entries, and which files inside a derivative
// package, a run retrieves.
package selection

import (
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
)

// FileFilter reports whether an archive member should be expanded. name is the member
// path inside the archive.
type FileFilter func(name string) bool

// TypeSet selects scans by exact type name. The zero value selects everything.
type TypeSet struct {
	types map[string]struct{}
}

// NewTypeSet builds a selection from type names. Names are compared verbatim,
// case and spaces included.
func NewTypeSet(types []string) TypeSet {
	if len(types) == 0 {
		return TypeSet{}
	}
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return TypeSet{types: set}
}

// Empty reports whether the set selects everything.
func (s TypeSet) Empty() bool { return len(s.types) == 0 }

// Len returns the number of type names.
func (s TypeSet) Len() int { return len(s.types) }

// IsSelected reports whether entry is wanted.
func (s TypeSet) IsSelected(entry model.ResourceEntry) bool {
	if s.Empty() {
		return true
	}
	_, ok := s.types[entry.TypeName]
	return ok
}

// FileFilter returns nil: scans are expanded whole.
func (s TypeSet) FileFilter(model.ResourceEntry) FileFilter { return nil }
