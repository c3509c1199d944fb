package model

import (
	"sync/atomic"
	"time"
)

// SessionCookie is the cookie carrying the archive session token.
const SessionCookie = "JSESSIONID"

// Session is the credential handle of one run. It is created by the session manager
// and passed explicitly to every archive call.
type Session struct {
	ID        string // run identifier, also names the token store
	Token     string
	SiteURL   string
	User      string
	CreatedAt time.Time
	StorePath string

	closed atomic.Bool
}

// Closed reports whether the session was closed.
func (s *Session) Closed() bool {
	return s == nil || s.closed.Load()
}

// MarkClosed invalidates the handle locally.
func (s *Session) MarkClosed() {
	if s != nil {
		s.closed.Store(true)
	}
}
