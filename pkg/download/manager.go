// Package download streams resource archives from the archive to local artifact files.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/benzinger-icl/karidf-scripts/internal/logger"
	"github.com/benzinger-icl/karidf-scripts/pkg/auth"
	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/fsutil"
	archivehttp "github.com/benzinger-icl/karidf-scripts/pkg/http"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
)

// ManagerImpl downloads one resource at a time. Each call is a single attempt.
type ManagerImpl struct {
	client *archivehttp.HTTPClient
}

// NewManager creates a new download manager on top of an archive client.
func NewManager(client *archivehttp.HTTPClient) *ManagerImpl {
	return &ManagerImpl{client: client}
}

// ArtifactName returns the file name of the downloaded archive of entry.
func ArtifactName(entry model.ResourceEntry) string {
	return model.Discriminator(entry.Owner+"_"+entry.ResourceID) + ".zip"
}

// Fetch downloads entry as a zip into destDir. The body is streamed to a temporary file
// that is renamed into place only once it is complete. An AuthError is returned as is;
// every other failure is a DownloadError and leaves nothing behind.
func (m *ManagerImpl) Fetch(ctx context.Context, authn auth.Authenticator, entry model.ResourceEntry, destDir string) (*model.RetrievedArtifact, error) {
	if destDir == "" || !filepath.IsAbs(destDir) {
		return nil, fmt.Errorf("download dir must be absolute: %s: %w", destDir, pkgerrors.ErrInvalidPath)
	}
	if err := os.MkdirAll(destDir, fsutil.DirModeDefault); err != nil {
		return nil, &pkgerrors.FilesystemError{Op: "mkdir", Path: destDir, Err: err}
	}

	resp, err := m.client.Do(ctx, http.MethodGet, entry.DownloadURI, url.Values{"format": {"zip"}}, authn)
	if err != nil {
		if pkgerrors.IsAuth(err) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &pkgerrors.DownloadError{ResourceID: entry.ResourceID, StatusCode: archivehttp.StatusCode(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	absPath := filepath.Join(destDir, ArtifactName(entry))
	logger.Debug("Downloading resource", logger.Fields{
		"resource_id": entry.ResourceID,
		"uri":         entry.DownloadURI,
		"size":        resp.ContentLength,
	})

	tmpPath, written, err := writeBodyToTemp(resp, absPath)
	if err != nil {
		return nil, &pkgerrors.DownloadError{ResourceID: entry.ResourceID, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.ContentLength >= 0 && written != resp.ContentLength {
		_ = os.Remove(tmpPath)
		return nil, &pkgerrors.DownloadError{
			ResourceID: entry.ResourceID,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w: got %d of %d bytes", pkgerrors.ErrTruncatedBody, written, resp.ContentLength),
		}
	}
	if err := finalizeFile(tmpPath, absPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, &pkgerrors.DownloadError{ResourceID: entry.ResourceID, Err: err}
	}

	return &model.RetrievedArtifact{Path: absPath, Entry: entry, Size: written}, nil
}

func writeBodyToTemp(resp *http.Response, absPath string) (string, int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(absPath), ".dl-*.tmp")
	if err != nil {
		return "", 0, pkgerrors.Wrap(err, "could not create temp file")
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return "", written, fmt.Errorf("%w: %w", pkgerrors.ErrTruncatedBody, err)
		}
		return "", written, pkgerrors.Wrap(err, "could not write file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", written, pkgerrors.Wrap(err, "could not sync file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", written, pkgerrors.Wrap(err, "could not close file")
	}
	return tmpPath, written, nil
}

func finalizeFile(tmpPath, absPath string) error {
	if err := fsutil.Move(tmpPath, absPath); err != nil {
		return pkgerrors.Wrap(err, "could not finalize file")
	}
	if err := os.Chmod(absPath, fsutil.FileModeDefault); err != nil {
		return pkgerrors.Wrap(err, "could not set permissions")
	}
	return nil
}
