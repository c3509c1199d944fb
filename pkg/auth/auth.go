// Package auth provides authentication support for archive HTTP requests.
package auth

import (
	"net/http"

	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
)

// Authenticator defines the interface for applying authentication to HTTP requests.
type Authenticator interface {
	Apply(req *http.Request) error
	Type() Type
}

// BasicAuth represents HTTP Basic Authentication credentials.
// It is only used to open a session.
type BasicAuth struct {
	Username string
	Password string
}

// SessionAuth authenticates a request with an open archive session.
type SessionAuth struct {
	Session *model.Session
}

// Type represents the type of authentication.
type Type string

// Authentication types.
const (
	// BasicAuthType represents HTTP Basic Authentication.
	BasicAuthType Type = "basic"
	// SessionAuthType represents the JSESSIONID cookie of an open session.
	SessionAuthType Type = "session"
)

// Apply adds Basic Authentication headers to the HTTP request.
func (b BasicAuth) Apply(req *http.Request) error {
	req.SetBasicAuth(b.Username, b.Password)
	return nil
}

// Type returns the authentication type (BasicAuthType).
func (b BasicAuth) Type() Type { return BasicAuthType }

// Apply adds the session cookie to the HTTP request. A closed or missing session
// yields an AuthError without touching the request.
func (s SessionAuth) Apply(req *http.Request) error {
	if s.Session.Closed() {
		site := ""
		if s.Session != nil {
			site = s.Session.SiteURL
		}
		return &pkgerrors.AuthError{Site: site, Err: pkgerrors.ErrSessionClosed}
	}
	req.AddCookie(&http.Cookie{Name: model.SessionCookie, Value: s.Session.Token})
	return nil
}

// Type returns the authentication type (SessionAuthType).
func (s SessionAuth) Type() Type { return SessionAuthType }
