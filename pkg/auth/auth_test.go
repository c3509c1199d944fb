package auth_test

import (
	"net/http"
	"testing"

	"github.com/benzinger-icl/karidf-scripts/pkg/auth"
	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicAuth(t *testing.T) {
	tests := []struct {
		name     string
		username string
		password string
		expected string
	}{
		{
			name:     "valid credentials",
			username: "user",
			password: "pass",
			expected: "Basic dXNlcjpwYXNz", // base64("user:pass")
		},
		{
			name:     "empty credentials",
			username: "",
			password: "",
			expected: "Basic Og==", // base64(":")
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "http://example.com", nil)
			basicAuth := auth.BasicAuth{
				Username: tt.username,
				Password: tt.password,
			}

			err := basicAuth.Apply(req)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, req.Header.Get("Authorization"))
			assert.Equal(t, auth.BasicAuthType, basicAuth.Type())
		})
	}
}

func TestSessionAuth(t *testing.T) {
	t.Run("open session sets cookie", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "http://example.com", nil)
		s := &model.Session{Token: "ABC123", SiteURL: "http://example.com"}

		sessionAuth := auth.SessionAuth{Session: s}
		require.NoError(t, sessionAuth.Apply(req))

		cookie, err := req.Cookie(model.SessionCookie)
		require.NoError(t, err)
		assert.Equal(t, "ABC123", cookie.Value)
		assert.Equal(t, auth.SessionAuthType, sessionAuth.Type())
	})

	t.Run("closed session is rejected", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "http://example.com", nil)
		s := &model.Session{Token: "ABC123", SiteURL: "http://example.com"}
		s.MarkClosed()

		err := auth.SessionAuth{Session: s}.Apply(req)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsAuth(err))
		assert.ErrorIs(t, err, pkgerrors.ErrSessionClosed)
		assert.Empty(t, req.Cookies())
	})

	t.Run("nil session is rejected", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "http://example.com", nil)
		err := auth.SessionAuth{}.Apply(req)
		assert.True(t, pkgerrors.IsAuth(err))
	})
}
