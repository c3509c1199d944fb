// Package archive verifies downloaded resource archives and expands them into the
// destination tree.
package archive

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/benzinger-icl/karidf-scripts/internal/logger"
	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/fsutil"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
	"github.com/benzinger-icl/karidf-scripts/pkg/selection"
	"github.com/mholt/archives"
)

// Manager handles archive verification and extraction.
type Manager struct{}

// NewManager creates a new Manager instance.
func NewManager() *Manager {
	return &Manager{}
}

// Verify checks that the artifact is a well-formed archive by reading every member to
// the end, which makes the zip reader check each CRC. A corrupt artifact is removed and
// reported as an UnpackError.
func (am *Manager) Verify(ctx context.Context, artifact *model.RetrievedArtifact) error {
	if err := verify(ctx, artifact.Path); err != nil {
		if rmErr := fsutil.RemoveIfExists(artifact.Path); rmErr != nil {
			logger.Warn("Failed to remove corrupt artifact", logger.Fields{"path": artifact.Path, "error": rmErr.Error()})
		}
		return &pkgerrors.UnpackError{Path: artifact.Path, Err: fmt.Errorf("%w: %w", pkgerrors.ErrCorruptArchive, err)}
	}
	return nil
}

func verify(ctx context.Context, archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	format, _, err := archives.Identify(ctx, filepath.Base(archivePath), f)
	if err != nil {
		return fmt.Errorf("unrecognized archive: %w", err)
	}
	extractor, ok := format.(archives.Extractor)
	if !ok {
		return fmt.Errorf("%s is not an extractable archive format", format.Extension())
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return err
	}

	return extractor.Extract(ctx, f, func(ctx context.Context, info archives.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.IsDir() || info.LinkTarget != "" {
			return nil
		}
		rc, err := info.Open()
		if err != nil {
			return fmt.Errorf("open %s: %w", info.NameInArchive, err)
		}
		defer func() { _ = rc.Close() }()
		if _, err := io.Copy(io.Discard, rc); err != nil {
			return fmt.Errorf("read %s: %w", info.NameInArchive, err)
		}
		return nil
	})
}

// Unpack expands the artifact into destDir and returns the number of files written.
// When filter is non-nil only the members it accepts are written. The artifact is
// removed after a successful expansion and left in place otherwise.
func (am *Manager) Unpack(ctx context.Context, artifact *model.RetrievedArtifact, destDir string, filter selection.FileFilter) (int, error) {
	n, err := am.ExtractAll(ctx, artifact.Path, destDir, filter)
	if err != nil {
		return n, &pkgerrors.UnpackError{Path: artifact.Path, Err: err}
	}
	if err := os.Remove(artifact.Path); err != nil {
		return n, &pkgerrors.FilesystemError{Op: "remove", Path: artifact.Path, Err: err}
	}
	return n, nil
}

// ExtractAll extracts the members of an archive accepted by filter to destDir.
func (am *Manager) ExtractAll(ctx context.Context, archivePath, destDir string, filter selection.FileFilter) (int, error) {
	// Open the archive file
	fsys, err := archives.FileSystem(ctx, archivePath, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to open archive file: %w", err)
	}
	if _, ok := fsys.(*archives.ArchiveFS); !ok {
		return 0, fmt.Errorf("%w: %s", pkgerrors.ErrCorruptArchive, archivePath)
	}
	// Ensure archive FS is closed after extraction
	if closer, ok := fsys.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	absDest, err := filepath.Abs(destDir)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve destination directory: %w", err)
	}
	if err := os.MkdirAll(absDest, fsutil.DirModeDefault); err != nil {
		return 0, fmt.Errorf("failed to create destination directory: %w", err)
	}

	written := 0
	walkFn := func(name string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := am.extractEntry(fsys, name, absDest, d, filter)
		if ok {
			written++
		}
		return err
	}

	return written, fs.WalkDir(fsys, ".", walkFn)
}

// extractEntry processes a single archive entry and writes it below destDir. It reports
// whether a file was written.
func (am *Manager) extractEntry(fsys fs.FS, name, destDir string, d fs.DirEntry, filter selection.FileFilter) (bool, error) {
	// Skip the root directory
	if name == "." {
		return false, nil
	}

	targetPath := filepath.Join(destDir, filepath.FromSlash(name))
	if !fsutil.WithinDir(destDir, targetPath) || strings.HasPrefix(path.Clean(name), "../") {
		return false, fmt.Errorf("%w: %s", pkgerrors.ErrInvalidFilePath, name)
	}

	if d.IsDir() {
		// With a filter, directories only appear as parents of kept files.
		if filter != nil {
			return false, nil
		}
		return false, os.MkdirAll(targetPath, fsutil.DirModeDefault)
	}

	if filter != nil && !filter(name) {
		return false, nil
	}

	info, err := d.Info()
	if err != nil {
		return false, fmt.Errorf("failed to get file info for %s: %w", name, err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		return true, am.writeSymlink(fsys, name, targetPath, destDir)
	}

	return true, am.writeRegularFile(fsys, name, targetPath, info)
}

// writeSymlink creates a symlink at targetPath with contents from the archive entry at name.
// Links that would resolve outside destDir are rejected.
func (am *Manager) writeSymlink(fsys fs.FS, name, targetPath, destDir string) error {
	linkTarget, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("failed to read symlink %s: %w", name, err)
	}
	defer func() { _ = linkTarget.Close() }()

	targetBytes, err := io.ReadAll(linkTarget)
	if err != nil {
		return fmt.Errorf("failed to read symlink target %s: %w", name, err)
	}
	target := string(targetBytes)
	resolved := target
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(filepath.Dir(targetPath), resolved)
	}
	if !fsutil.WithinDir(destDir, resolved) {
		return fmt.Errorf("%w: symlink %s points to %s", pkgerrors.ErrInvalidFilePath, name, target)
	}

	if err := os.MkdirAll(filepath.Dir(targetPath), fsutil.DirModeDefault); err != nil {
		return fmt.Errorf("failed to create parent directory for symlink %s: %w", name, err)
	}

	// Remove existing file/symlink if it exists
	_ = os.Remove(targetPath)

	return os.Symlink(target, targetPath)
}

// writeRegularFile writes a regular file from the archive entry to targetPath and preserves metadata.
// An existing file at targetPath is replaced.
func (am *Manager) writeRegularFile(fsys fs.FS, name, targetPath string, info fs.FileInfo) error {
	srcFile, err := fsys.Open(name)
	if err != nil {
		return fmt.Errorf("failed to open source file %s: %w", name, err)
	}
	defer func() { _ = srcFile.Close() }()

	if err := os.MkdirAll(filepath.Dir(targetPath), fsutil.DirModeDefault); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", name, err)
	}

	perm := info.Mode().Perm()
	if perm == 0 {
		perm = fsutil.FileModeDefault
	}
	dstFile, err := fsutil.CreateFilePerm(targetPath, perm)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", targetPath, err)
	}
	defer func() { _ = dstFile.Close() }()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file %s: %w", name, err)
	}

	if err := os.Chmod(targetPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions for %s: %w", targetPath, err)
	}
	if err := os.Chtimes(targetPath, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("failed to set modification time for %s: %w", targetPath, err)
	}
	return nil
}
