package layout

import (
	"fmt"
	"strings"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
)

// Profile is a slash-separated wrapper pattern. Segments are
//
//	name     a literal directory name
//	{var}    the value of var
//	*        any one directory
//	**       one or more directories
//
// A segment in parentheses, such as (*), is matched but kept in the output.
type Profile struct {
	Name    string
	Pattern string
}

// Built-in profiles.
var (
	// ScanProfile unwraps <label>/scans/<id>-<type>/resources/<resource>/files and keeps
	// the resource label.
	ScanProfile = Profile{Name: "scans", Pattern: "{label}/scans/*/resources/(*)/files"}
	// DerivativeProfile unwraps everything up to and including resources/<resource>/files.
	DerivativeProfile = Profile{Name: "derivative", Pattern: "**/resources/{resource}/files"}
)

// ProfileFor returns the profile used for kind.
func ProfileFor(kind model.Kind) Profile {
	if kind == model.KindScans {
		return ScanProfile
	}
	return DerivativeProfile
}

type segmentKind int

const (
	segLiteral segmentKind = iota
	segAny
	segAnyDepth
)

type segment struct {
	kind  segmentKind
	value string
	keep  bool
}

func (p Profile) compile(vars map[string]string) ([]segment, error) {
	if strings.TrimSpace(p.Pattern) == "" {
		return nil, fmt.Errorf("profile %q: empty pattern: %w", p.Name, pkgerrors.ErrInvalidPath)
	}
	parts := strings.Split(strings.Trim(p.Pattern, "/"), "/")
	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		var seg segment
		if strings.HasPrefix(part, "(") && strings.HasSuffix(part, ")") {
			seg.keep = true
			part = part[1 : len(part)-1]
		}
		switch {
		case part == "**":
			seg.kind = segAnyDepth
		case part == "*":
			seg.kind = segAny
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := part[1 : len(part)-1]
			v, ok := vars[name]
			if !ok || !validValue(v) {
				return nil, fmt.Errorf("profile %q: bad value for {%s}: %w", p.Name, name, pkgerrors.ErrInvalidPath)
			}
			seg.kind, seg.value = segLiteral, v
		case part == "" || part == "." || part == "..":
			return nil, fmt.Errorf("profile %q: bad segment %q: %w", p.Name, part, pkgerrors.ErrInvalidPath)
		default:
			seg.kind, seg.value = segLiteral, part
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// CheckVar reports whether value can stand in for {name}. Profiles that do not
// reference name accept any value.
func (p Profile) CheckVar(name, value string) error {
	if !strings.Contains(p.Pattern, "{"+name+"}") || validValue(value) {
		return nil
	}
	return fmt.Errorf("profile %q: %q is not a single directory name: %w", p.Name, value, pkgerrors.ErrInvalidPath)
}

func validValue(v string) bool {
	return v != "" && v != "." && v != ".." && !strings.ContainsAny(v, `/\`)
}
