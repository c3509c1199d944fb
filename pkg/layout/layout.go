// Package layout rewrites the archive-native directory structure of an expanded
// resource into the canonical destination layout.
//
// The archive wraps every resource in several directory levels, for example
// <label>/scans/<id>-<type>/resources/<resource>/files. A Profile describes those
// levels; Normalize removes each of them with FlattenLevel, innermost first. Every step
// tolerates an already flattened level and merges into existing directories, so
// running Normalize again on a canonical tree is a no-op, and a fresh expansion on
// top of a tree left half-way by an interrupted run converges to the canonical form.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/spf13/afero"
)

// maxWildcardDepth bounds how many levels a "**" segment may span.
const maxWildcardDepth = 8

// Normalizer performs layout rewrites on a filesystem.
type Normalizer struct {
	fs afero.Fs
}

// NewNormalizer creates a normalizer on fs. Use afero.NewOsFs() for the real disk.
func NewNormalizer(fs afero.Fs) *Normalizer {
	return &Normalizer{fs: fs}
}

// FlattenLevel moves every child of parent/wrapper into parent and removes the wrapper.
// Directories are merged with existing ones and files replace existing files. A missing
// wrapper is not an error.
func (n *Normalizer) FlattenLevel(parent, wrapper string) error {
	wrapperPath := filepath.Join(parent, wrapper)
	info, err := n.fs.Stat(wrapperPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &pkgerrors.FilesystemError{Op: "stat", Path: wrapperPath, Err: err}
	}
	if !info.IsDir() {
		return nil
	}

	children, err := afero.ReadDir(n.fs, wrapperPath)
	if err != nil {
		return &pkgerrors.FilesystemError{Op: "readdir", Path: wrapperPath, Err: err}
	}

	// A child named like the wrapper would land on the wrapper itself.
	for _, c := range children {
		if c.Name() == wrapper {
			tmp, err := n.freeName(parent, "."+wrapper+".flatten")
			if err != nil {
				return err
			}
			if err := n.fs.Rename(wrapperPath, tmp); err != nil {
				return &pkgerrors.FilesystemError{Op: "rename", Path: wrapperPath, Err: err}
			}
			wrapperPath = tmp
			break
		}
	}

	for _, c := range children {
		if err := n.moveInto(filepath.Join(wrapperPath, c.Name()), filepath.Join(parent, c.Name())); err != nil {
			return err
		}
	}

	return n.removeEmpty(wrapperPath)
}

// moveInto moves src to dst. Directories are merged; anything else at dst is replaced.
func (n *Normalizer) moveInto(src, dst string) error {
	srcInfo, err := n.fs.Stat(src)
	if err != nil {
		return &pkgerrors.FilesystemError{Op: "stat", Path: src, Err: err}
	}
	dstInfo, err := n.fs.Stat(dst)
	switch {
	case os.IsNotExist(err):
		return n.rename(src, dst)
	case err != nil:
		return &pkgerrors.FilesystemError{Op: "stat", Path: dst, Err: err}
	}

	if srcInfo.IsDir() && dstInfo.IsDir() {
		children, err := afero.ReadDir(n.fs, src)
		if err != nil {
			return &pkgerrors.FilesystemError{Op: "readdir", Path: src, Err: err}
		}
		for _, c := range children {
			if err := n.moveInto(filepath.Join(src, c.Name()), filepath.Join(dst, c.Name())); err != nil {
				return err
			}
		}
		return n.removeEmpty(src)
	}

	if err := n.fs.RemoveAll(dst); err != nil {
		return &pkgerrors.FilesystemError{Op: "remove", Path: dst, Err: err}
	}
	return n.rename(src, dst)
}

func (n *Normalizer) rename(src, dst string) error {
	if err := n.fs.Rename(src, dst); err != nil {
		return &pkgerrors.FilesystemError{Op: "rename", Path: src, Err: err}
	}
	return nil
}

func (n *Normalizer) removeEmpty(dir string) error {
	children, err := afero.ReadDir(n.fs, dir)
	if err != nil {
		return &pkgerrors.FilesystemError{Op: "readdir", Path: dir, Err: err}
	}
	if len(children) > 0 {
		return &pkgerrors.FilesystemError{Op: "remove", Path: dir, Err: pkgerrors.ErrWrapperNotEmpty}
	}
	if err := n.fs.Remove(dir); err != nil {
		return &pkgerrors.FilesystemError{Op: "remove", Path: dir, Err: err}
	}
	return nil
}

func (n *Normalizer) freeName(dir, base string) (string, error) {
	for i := 0; i < 1000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s%d", base, i))
		if _, err := n.fs.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", &pkgerrors.FilesystemError{Op: "rename", Path: filepath.Join(dir, base), Err: os.ErrExist}
}

// Normalize flattens every wrapper level of profile found below resourceDir. vars
// supplies the values of {name} segments.
func (n *Normalizer) Normalize(resourceDir string, profile Profile, vars map[string]string) error {
	segs, err := profile.compile(vars)
	if err != nil {
		return err
	}

	chains, err := n.findChains(resourceDir, segs)
	if err != nil {
		return err
	}
	if len(chains) == 0 {
		return nil
	}

	maxLen := 0
	for _, c := range chains {
		maxLen = max(maxLen, len(c))
	}

	// Deepest level first: flattening depth d only touches paths below depth d,
	// so the prefixes of every chain stay valid for the shallower passes.
	for depth := maxLen - 1; depth >= 0; depth-- {
		done := make(map[string]struct{})
		for _, c := range chains {
			if depth >= len(c) || c[depth].keep {
				continue
			}
			parent := filepath.Join(append([]string{resourceDir}, names(c[:depth])...)...)
			key := filepath.Join(parent, c[depth].name)
			if _, ok := done[key]; ok {
				continue
			}
			done[key] = struct{}{}
			if err := n.FlattenLevel(parent, c[depth].name); err != nil {
				return err
			}
		}
	}
	return nil
}

// link is one concrete directory of a matched chain.
type link struct {
	name string
	keep bool
}

func names(chain []link) []string {
	out := make([]string, len(chain))
	for i, l := range chain {
		out[i] = l.name
	}
	return out
}

// findChains returns every directory chain below root matching segs, in a stable order.
func (n *Normalizer) findChains(root string, segs []segment) ([][]link, error) {
	var out [][]link
	var walk func(dir string, segs []segment, acc []link, depth int) error
	walk = func(dir string, segs []segment, acc []link, depth int) error {
		if len(segs) == 0 {
			out = append(out, append([]link(nil), acc...))
			return nil
		}
		seg := segs[0]

		if seg.kind == segLiteral {
			info, err := n.fs.Stat(filepath.Join(dir, seg.value))
			if err != nil || !info.IsDir() {
				return nil
			}
			return walk(filepath.Join(dir, seg.value), segs[1:], append(acc, link{name: seg.value, keep: seg.keep}), depth)
		}

		subdirs, err := n.subdirs(dir)
		if err != nil {
			return err
		}
		for _, name := range subdirs {
			next := append(acc, link{name: name, keep: seg.keep})
			if err := walk(filepath.Join(dir, name), segs[1:], next, depth); err != nil {
				return err
			}
			if seg.kind == segAnyDepth && depth+1 < maxWildcardDepth {
				if err := walk(filepath.Join(dir, name), segs, next, depth+1); err != nil {
					return err
				}
			}
		}
		return nil
	}

	if err := walk(root, segs, nil, 0); err != nil {
		return nil, err
	}
	return out, nil
}

func (n *Normalizer) subdirs(dir string) ([]string, error) {
	entries, err := afero.ReadDir(n.fs, dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &pkgerrors.FilesystemError{Op: "readdir", Path: dir, Err: err}
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
