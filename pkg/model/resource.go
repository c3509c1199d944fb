// Package model provides the data structures shared by the catalog, fetch, layout
// and audit stages of a retrieval run.
package model

import (
	"path/filepath"
	"strings"
)

// Kind names the family of resources a run retrieves.
type Kind string

const (
	// KindScans retrieves raw scans of an imaging session.
	KindScans Kind = "scans"
	// KindFreeSurfer retrieves FreeSurfer derivative packages.
	KindFreeSurfer Kind = "freesurfer"
	// KindPUP retrieves PUP derivative packages.
	KindPUP Kind = "pup"
)

// ResourceEntry is one retrievable unit belonging to a subject.
type ResourceEntry struct {
	ResourceID  string // scan ID, or resource name for derivative packages
	TypeName    string // scan type, or resource name for derivative packages
	Description string // series description when the archive reports one
	DownloadURI string // archive-relative path of the zip download
	Owner       string // experiment or assessor the resource hangs off
}

// Subject is the resolved view of one input ID.
type Subject struct {
	ID      string
	Label   string
	Entries []ResourceEntry
}

// RetrievedArtifact is the transient archive file downloaded for one entry.
type RetrievedArtifact struct {
	Path  string
	Entry ResourceEntry
	Size  int64
}

// Discriminator returns the directory name used for entry below the subject label.
// Characters that are unsafe in a path segment are replaced by an underscore.
func Discriminator(name string) string {
	if name == "" {
		return "_"
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-' || r == ' ':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "." || out == ".." {
		return strings.Repeat("_", len(out))
	}
	return out
}

// AssignDiscriminators maps each entry to its directory name. Entries whose sanitized type
// name is shared with another entry of the same subject are prefixed with their resource ID
// so that the mapping only depends on the catalog and no two resources share a directory.
func AssignDiscriminators(entries []ResourceEntry) map[string]string {
	prefixed := make(map[string]bool, len(entries))
	for {
		out := make(map[string]string, len(entries))
		owners := make(map[string][]string, len(entries))
		for _, e := range entries {
			disc := Discriminator(e.TypeName)
			if prefixed[e.ResourceID] {
				disc = Discriminator(e.ResourceID + "-" + e.TypeName)
			}
			out[e.ResourceID] = disc
			owners[disc] = append(owners[disc], e.ResourceID)
		}

		changed := false
		for _, ids := range owners {
			if len(ids) < 2 {
				continue
			}
			for _, id := range ids {
				if !prefixed[id] {
					prefixed[id] = true
					changed = true
				}
			}
		}
		if !changed {
			return out
		}
	}
}

// ResourceDirs maps each selected entry to its directory relative to the destination root.
// Scans live under <label>/<discriminator>, FreeSurfer resources under <assessor>/<resource>
// and PUP resources under <session label>/<assessor>/<resource>.
func ResourceDirs(kind Kind, subject *Subject, selected []ResourceEntry) map[string]string {
	out := make(map[string]string, len(selected))
	label := Discriminator(subject.Label)
	switch kind {
	case KindScans:
		for id, disc := range AssignDiscriminators(selected) {
			out[id] = filepath.Join(label, disc)
		}
	case KindPUP:
		for _, e := range selected {
			out[e.ResourceID] = filepath.Join(label, Discriminator(e.Owner), Discriminator(e.ResourceID))
		}
	default:
		for _, e := range selected {
			out[e.ResourceID] = filepath.Join(label, Discriminator(e.ResourceID))
		}
	}
	return out
}
