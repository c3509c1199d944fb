package selection

import (
	"fmt"
	"path"
	"sort"
	"strings"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
)

// Resource folders of a derivative package.
const (
	resourceSnapshots = "SNAPSHOTS"
	resourceLog       = "LOG"
	resourceData      = "DATA"
)

// Resource-level flags shared by both derivative kinds.
const (
	FlagLogs  = "logs"
	FlagSnaps = "snaps"
)

// matcher decides a file by its base name.
type matcher func(base string) bool

// FreeSurferFlags lists the FreeSurfer selection flags in help order.
var FreeSurferFlags = []string{
	"annot", "area", "avg_curv", "bak", "cmd", "crv", "csurfdir", "ctab", "curv", "dat",
	"defect_borders", "defect_chull", "defect_labels", "done", "env", "H", "inflated",
	"jacobian_white", "K", "label", "local-copy", FlagLogs, "lta", "mgh", "mgz", "m3z", "mid",
	"nofix", "old", "orig", "pial", "reg", "smoothwm", FlagSnaps, "sphere", "stats", "sulc",
	"thickness", "touch", "txt", "volume", "white", "xdebug_mris_calc", "xfm",
}

// PUPFlags lists the PUP selection flags in help order.
var PUPFlags = []string{
	"4dfp", "dat", "info", FlagLogs, "lst", "mgz", "moco", "nii", "params", FlagSnaps,
	"sub", "suvr", "tac", "tb", "txt", "no-ext", "SUVR4dfp", "T10014dfp", "PETFOV",
	"RSFMask", "wmparc",
}

// lastSuffix matches names whose last dot-separated segment equals suffix.
func lastSuffix(suffix string) matcher {
	return func(base string) bool {
		parts := strings.Split(base, ".")
		return len(parts) > 1 && parts[len(parts)-1] == suffix
	}
}

// secondSegment matches names whose second dot-separated segment equals suffix.
func secondSegment(suffix string) matcher {
	return func(base string) bool {
		parts := strings.Split(base, ".")
		return len(parts) > 1 && parts[1] == suffix
	}
}

// fourDFP matches 4dfp members whose stem satisfies stem.
func fourDFP(stem func(string) bool) matcher {
	return func(base string) bool {
		parts := strings.Split(base, ".")
		return len(parts) > 1 && strings.Contains(parts[1], "4dfp") && stem(parts[0])
	}
}

func freeSurferMatchers() map[string]matcher {
	m := make(map[string]matcher, len(FreeSurferFlags))
	for _, f := range FreeSurferFlags {
		switch f {
		case FlagSnaps:
			continue
		case FlagLogs:
			m[f] = lastSuffix("log")
		default:
			m[f] = lastSuffix(f)
		}
	}
	return m
}

func pupMatchers() map[string]matcher {
	any4dfp := func(string) bool { return true }
	m := map[string]matcher{
		"4dfp":   fourDFP(any4dfp),
		FlagLogs: secondSegment("log"),
		"no-ext": func(base string) bool { return !strings.Contains(base, ".") },
		"SUVR4dfp": fourDFP(func(stem string) bool {
			return strings.Contains(stem, "SUVR")
		}),
		"T10014dfp": fourDFP(func(stem string) bool { return stem == "T1001" }),
		"PETFOV":    fourDFP(func(stem string) bool { return stem == "petfov" }),
		"RSFMask":   fourDFP(func(stem string) bool { return stem == "RSFMask" }),
		"wmparc": func(base string) bool {
			parts := strings.Split(base, ".")
			return len(parts) > 1 && strings.Contains(parts[0], "wmparc")
		},
	}
	for _, f := range []string{"dat", "info", "lst", "mgz", "moco", "nii", "params", "sub", "suvr", "tac", "tb", "txt"} {
		m[f] = secondSegment(f)
	}
	return m
}

// FlagSet selects the files of a derivative package by suffix flag. An empty set
// selects every file of every resource.
type FlagSet struct {
	kind     model.Kind
	flags    map[string]struct{}
	matchers map[string]matcher
}

// NewFlagSet validates flags against the table of kind.
func NewFlagSet(kind model.Kind, flags []string) (*FlagSet, error) {
	var known []string
	var matchers map[string]matcher
	switch kind {
	case model.KindFreeSurfer:
		known, matchers = FreeSurferFlags, freeSurferMatchers()
	case model.KindPUP:
		known, matchers = PUPFlags, pupMatchers()
	default:
		return nil, fmt.Errorf("no flag table for %q: %w", kind, pkgerrors.ErrUnknownSelection)
	}

	valid := make(map[string]struct{}, len(known))
	for _, f := range known {
		valid[f] = struct{}{}
	}
	set := make(map[string]struct{}, len(flags))
	for _, f := range flags {
		if _, ok := valid[f]; !ok {
			return nil, fmt.Errorf("%q for %s: %w", f, kind, pkgerrors.ErrUnknownSelection)
		}
		set[f] = struct{}{}
	}
	return &FlagSet{kind: kind, flags: set, matchers: matchers}, nil
}

// All reports whether no flag was given.
func (s *FlagSet) All() bool { return len(s.flags) == 0 }

// Has reports whether flag was given.
func (s *FlagSet) Has(flag string) bool {
	_, ok := s.flags[flag]
	return ok
}

// Flags returns the given flags, sorted.
func (s *FlagSet) Flags() []string {
	out := make([]string, 0, len(s.flags))
	for f := range s.flags {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Resources returns the resource folders to download, in retrieval order.
// SNAPSHOTS is needed for snaps, LOG for logs and DATA for any file-level flag.
func (s *FlagSet) Resources() []string {
	var out []string
	if s.All() || s.Has(FlagSnaps) {
		out = append(out, resourceSnapshots)
	}
	if s.All() || s.Has(FlagLogs) {
		out = append(out, resourceLog)
	}
	if s.All() || s.hasFileFlag() {
		out = append(out, resourceData)
	}
	return out
}

func (s *FlagSet) hasFileFlag() bool {
	for f := range s.flags {
		if f != FlagSnaps {
			return true
		}
	}
	return false
}

// IsSelected reports whether the resource folder of entry is retrieved.
func (s *FlagSet) IsSelected(entry model.ResourceEntry) bool {
	for _, r := range s.Resources() {
		if r == entry.ResourceID {
			return true
		}
	}
	return false
}

// FileFilter returns the per-file predicate for the resource of entry, or nil when
// every file is kept.
func (s *FlagSet) FileFilter(entry model.ResourceEntry) FileFilter {
	if s.All() {
		return nil
	}
	if (entry.ResourceID == resourceLog && s.Has(FlagLogs)) ||
		(entry.ResourceID == resourceSnapshots && s.Has(FlagSnaps)) {
		return nil
	}
	return func(name string) bool {
		base := path.Base(strings.TrimSuffix(name, "/"))
		for f := range s.flags {
			if m, ok := s.matchers[f]; ok && m(base) {
				return true
			}
		}
		return false
	}
}
