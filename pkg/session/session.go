// Package session opens and closes the authenticated archive session that brackets a run.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/benzinger-icl/karidf-scripts/internal/logger"
	"github.com/benzinger-icl/karidf-scripts/pkg/auth"
	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/fsutil"
	archivehttp "github.com/benzinger-icl/karidf-scripts/pkg/http"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
	"github.com/google/uuid"
)

// Credentials are the user name and password (or token alias and secret) for the archive.
type Credentials struct {
	User     string
	Password string
}

// Default retry policy for opening a session.
const (
	DefaultOpenAttempts = 3
	DefaultOpenDelay    = 500 * time.Millisecond
)

// Manager opens and closes archive sessions.
type Manager struct {
	client   *archivehttp.HTTPClient
	stateDir string
	attempts uint
	delay    time.Duration
	now      func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithRetry overrides the open retry policy.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(m *Manager) {
		m.attempts = attempts
		m.delay = delay
	}
}

// NewManager creates a session manager. Token stores are written below stateDir.
func NewManager(client *archivehttp.HTTPClient, stateDir string, opts ...Option) *Manager {
	m := &Manager{
		client:   client,
		stateDir: stateDir,
		attempts: DefaultOpenAttempts,
		delay:    DefaultOpenDelay,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open authenticates against the archive and returns a fresh session.
// Unreachable hosts and 5xx responses are retried; rejected credentials are not.
func (m *Manager) Open(ctx context.Context, creds Credentials) (*model.Session, error) {
	basic := auth.BasicAuth{Username: creds.User, Password: creds.Password}

	var body []byte
	err := retry.Do(
		func() error {
			data, err := m.client.Get(ctx, archivehttp.SessionPath, nil, basic)
			if err != nil {
				return err
			}
			body = data
			return nil
		},
		retry.Attempts(m.attempts),
		retry.Delay(m.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("Retrying session open", logger.Fields{
				"attempt": n + 1,
				"site":    m.client.SiteURL(),
				"error":   err.Error(),
			})
		}),
		retry.Context(ctx),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if pkgerrors.IsAuth(err) {
			return nil, err
		}
		return nil, &pkgerrors.AuthError{
			Site: m.client.SiteURL(),
			Err:  pkgerrors.Wrapf(err, "failed to open session after %d attempts", m.attempts),
		}
	}

	token := strings.TrimSpace(string(body))
	if token == "" {
		return nil, &pkgerrors.AuthError{Site: m.client.SiteURL(), Err: fmt.Errorf("empty session token: %w", pkgerrors.ErrInvalidCredentials)}
	}

	s := &model.Session{
		ID:        uuid.NewString(),
		Token:     token,
		SiteURL:   m.client.SiteURL(),
		User:      creds.User,
		CreatedAt: m.now(),
	}
	if err := m.writeStore(s); err != nil {
		_ = m.Close(ctx, s)
		return nil, err
	}

	logger.Debug("Session opened", logger.Fields{"session_id": s.ID, "site": s.SiteURL})
	return s, nil
}

// Close invalidates the session on the archive. The DELETE is best effort; the
// token store is removed and the handle marked closed whatever the outcome.
// Closing an already closed session is a no-op.
func (m *Manager) Close(ctx context.Context, s *model.Session) error {
	if s == nil || s.Closed() {
		return nil
	}
	defer func() {
		s.MarkClosed()
		if s.StorePath != "" {
			if err := fsutil.RemoveIfExists(s.StorePath); err != nil {
				logger.Warn("Failed to remove session token store", logger.Fields{"path": s.StorePath, "error": err.Error()})
			}
		}
	}()

	resp, err := m.client.Do(ctx, http.MethodDelete, archivehttp.SessionPath, nil, auth.SessionAuth{Session: s})
	if err != nil {
		return pkgerrors.Wrap(err, "failed to close session")
	}
	_ = resp.Body.Close()
	logger.Debug("Session closed", logger.Fields{"session_id": s.ID})
	return nil
}

// Authenticator returns the request authenticator for s.
func Authenticator(s *model.Session) auth.Authenticator {
	return auth.SessionAuth{Session: s}
}

func (m *Manager) writeStore(s *model.Session) error {
	if m.stateDir == "" {
		return nil
	}
	if err := os.MkdirAll(m.stateDir, fsutil.DirModeSecure); err != nil {
		return &pkgerrors.FilesystemError{Op: "mkdir", Path: m.stateDir, Err: err}
	}
	path := filepath.Join(m.stateDir, s.ID+".session")
	f, err := fsutil.CreateFilePerm(path, fsutil.FileModePrivate)
	if err != nil {
		return &pkgerrors.FilesystemError{Op: "create", Path: path, Err: err}
	}
	s.StorePath = path
	if _, err := f.WriteString(s.Token); err != nil {
		_ = f.Close()
		return &pkgerrors.FilesystemError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &pkgerrors.FilesystemError{Op: "close", Path: path, Err: err}
	}
	return nil
}

func isTransient(err error) bool {
	if pkgerrors.IsAuth(err) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, pkgerrors.ErrArchiveUnreachable) {
		return true
	}
	code := archivehttp.StatusCode(err)
	return code >= http.StatusInternalServerError
}
