// Package errors defines the error taxonomy shared by the retrieval pipeline.
// Subject- and resource-scoped errors (NotFoundError, DownloadError, UnpackError)
// are recorded and skipped; AuthError and destination-root FilesystemError abort the run.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Common error types.
var (
	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigFileExists  = fmt.Errorf("configuration file already exists")

	// Input errors.
	ErrNoSubjectSource    = fmt.Errorf("either an ID list or a single ID is required")
	ErrBothSubjectSources = fmt.Errorf("an ID list and a single ID cannot both be given")

	// Session errors.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrSessionClosed      = fmt.Errorf("session is closed")
	ErrSessionExpired     = fmt.Errorf("session expired or was invalidated")
	ErrArchiveUnreachable = fmt.Errorf("archive is unreachable")

	// Catalog errors.
	ErrSubjectNotFound  = fmt.Errorf("subject not found")
	ErrResourceNotFound = fmt.Errorf("resource not found")
	ErrCatalogParse     = fmt.Errorf("failed to parse catalog response")
	ErrInvalidAssessor  = fmt.Errorf("assessor ID does not carry an experiment prefix")

	// Fetch and unpack errors.
	ErrUnexpectedStatus = fmt.Errorf("unexpected status code")
	ErrTruncatedBody    = fmt.Errorf("response body shorter than announced")
	ErrCorruptArchive   = fmt.Errorf("artifact is not a well-formed archive")
	ErrInvalidFilePath  = fmt.Errorf("invalid file path in archive")

	// Filesystem errors.
	ErrInvalidPath      = fmt.Errorf("invalid path")
	ErrNotADirectory    = fmt.Errorf("path is not a directory")
	ErrDirNotWritable   = fmt.Errorf("directory is not writable")
	ErrWrapperNotEmpty  = fmt.Errorf("wrapper directory still has children")
	ErrUnknownSelection = fmt.Errorf("unknown selection flag")

	// Hook errors.
	ErrHookExecution = fmt.Errorf("error executing hook")
	ErrHookScript    = fmt.Errorf("hook script error")
)

// AuthError reports a failed or expired session. It is fatal for the whole run.
type AuthError struct {
	Site string
	Err  error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication against %s failed: %v", e.Site, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// NotFoundError reports that the archive has no record for the requested item.
type NotFoundError struct {
	Kind string // subject, scans, resource
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
	}
	return fmt.Sprintf("%s %s not found: %v", e.Kind, e.ID, e.Err)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err == nil {
		return ErrSubjectNotFound
	}
	return e.Err
}

// DownloadError reports a failed download of one resource.
type DownloadError struct {
	ResourceID string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download of %s failed with HTTP %d: %v", e.ResourceID, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("download of %s failed: %v", e.ResourceID, e.Err)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// UnpackError reports a corrupt artifact or a failed expansion.
type UnpackError struct {
	Path string
	Err  error
}

func (e *UnpackError) Error() string {
	return fmt.Sprintf("failed to unpack %s: %v", e.Path, e.Err)
}

func (e *UnpackError) Unwrap() error { return e.Err }

// FilesystemError reports a failed filesystem operation.
type FilesystemError struct {
	Op   string
	Path string
	Err  error
}

func (e *FilesystemError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FilesystemError) Unwrap() error { return e.Err }

// IsAuth reports whether err is, or wraps, an AuthError.
func IsAuth(err error) bool {
	var authErr *AuthError
	return stderrors.As(err, &authErr)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return stderrors.As(err, &nf)
}

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
