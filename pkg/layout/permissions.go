package layout

import (
	"os"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/fsutil"
	"github.com/spf13/afero"
)

// NormalizePermissions grants owner and group read-write on every file and directory
// below root, root included. Files lose their execute bits; a directory that can be
// searched by anyone becomes searchable by owner and group.
func (n *Normalizer) NormalizePermissions(root string) error {
	return afero.Walk(n.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return &pkgerrors.FilesystemError{Op: "walk", Path: path, Err: err}
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		perm := info.Mode().Perm() | fsutil.OwnerGroupRW
		switch {
		case !info.IsDir():
			perm &^= fsutil.ExecBits
		case perm&fsutil.ExecBits != 0:
			perm |= fsutil.OwnerGroupX
		}
		if perm == info.Mode().Perm() {
			return nil
		}
		if err := n.fs.Chmod(path, perm); err != nil {
			return &pkgerrors.FilesystemError{Op: "chmod", Path: path, Err: err}
		}
		return nil
	})
}
