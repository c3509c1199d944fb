// Package fsutil provides utility functions and constants for file system operations.
package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
)

// EnsureDir creates a directory and all necessary parent directories with default permissions if they don't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, DirModeDefault)
}

// EnsureFileDir creates the parent directory of a file path if it doesn't exist.
func EnsureFileDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// CheckDirectoryWritable checks that path is a writable directory, creating it when missing.
// A probe file is written and removed again.
func CheckDirectoryWritable(path string) error {
	if path == "" {
		return fmt.Errorf("destination: %w", pkgerrors.ErrInvalidPath)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	info, err := os.Stat(absPath)
	switch {
	case os.IsNotExist(err):
		if err := EnsureDir(absPath); err != nil {
			return &pkgerrors.FilesystemError{Op: "mkdir", Path: absPath, Err: err}
		}
	case err != nil:
		return &pkgerrors.FilesystemError{Op: "stat", Path: absPath, Err: err}
	case !info.IsDir():
		return &pkgerrors.FilesystemError{Op: "stat", Path: absPath, Err: pkgerrors.ErrNotADirectory}
	}

	probe, err := os.CreateTemp(absPath, ".karidf-write-test-*")
	if err != nil {
		return &pkgerrors.FilesystemError{Op: "write", Path: absPath, Err: fmt.Errorf("%w: %w", pkgerrors.ErrDirNotWritable, err)}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return nil
}
