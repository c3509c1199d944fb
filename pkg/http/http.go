// Package http is the typed client for the archive REST endpoints. It builds request
// URLs from the site root, applies authentication and maps response status codes onto
// the error taxonomy in pkg/errors.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/benzinger-icl/karidf-scripts/pkg/auth"
	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/hashicorp/go-version"
)

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "karidf/1.0"

// Archive endpoints.
const (
	SessionPath     = "/data/JSESSION"
	ExperimentsPath = "/data/experiments"
	VersionPath     = "/data/version"
)

// StatusError carries a non-2xx status that has no dedicated error type.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.Code, e.URL)
}

func (e *StatusError) Unwrap() error { return pkgerrors.ErrUnexpectedStatus }

// HTTPClient handles HTTP operations against one archive site.
type HTTPClient struct {
	client    *http.Client
	siteURL   *url.URL
	userAgent string
}

// NewHTTPClient creates a new HTTP client for the archive rooted at siteURL.
func NewHTTPClient(siteURL string, timeout time.Duration) (*HTTPClient, error) {
	parsed, err := url.Parse(strings.TrimRight(siteURL, "/"))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid site URL %q", siteURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("invalid site URL %q: scheme must be http or https: %w", siteURL, pkgerrors.ErrConfigValidation)
	}
	return &HTTPClient{
		client:    &http.Client{Timeout: timeout},
		siteURL:   parsed,
		userAgent: DefaultUserAgent,
	}, nil
}

// SiteURL returns the normalized site root.
func (hc *HTTPClient) SiteURL() string {
	return hc.siteURL.String()
}

// BuildURL joins an archive path and query onto the site root.
func (hc *HTTPClient) BuildURL(path string, query url.Values) string {
	u := *hc.siteURL
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	u.RawQuery = ""
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// Do sends a request and returns the response for any 2xx status. The caller closes
// the body. 401 and 403 become an AuthError, 404 a NotFoundError and everything else
// a StatusError. Transport failures wrap ErrArchiveUnreachable.
func (hc *HTTPClient) Do(ctx context.Context, method, path string, query url.Values, authn auth.Authenticator) (*http.Response, error) {
	target := hc.BuildURL(path, query)
	req, err := http.NewRequestWithContext(ctx, method, target, http.NoBody)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", hc.userAgent)
	if authn != nil {
		if err := authn.Apply(req); err != nil {
			return nil, err
		}
	}

	resp, err := hc.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %s %s: %w", pkgerrors.ErrArchiveUnreachable, method, target, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	drainAndClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		cause := pkgerrors.ErrSessionExpired
		if authn != nil && authn.Type() == auth.BasicAuthType {
			cause = pkgerrors.ErrInvalidCredentials
		}
		return nil, &pkgerrors.AuthError{Site: hc.SiteURL(), Err: cause}
	case http.StatusNotFound:
		return nil, &pkgerrors.NotFoundError{Kind: "resource", ID: path, Err: pkgerrors.ErrResourceNotFound}
	default:
		return nil, &StatusError{Code: resp.StatusCode, URL: target}
	}
}

// Get performs a GET and returns the whole body.
func (hc *HTTPClient) Get(ctx context.Context, path string, query url.Values, authn auth.Authenticator) ([]byte, error) {
	resp, err := hc.Do(ctx, http.MethodGet, path, query, authn)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read response body")
	}
	return data, nil
}

// Version returns the archive server version.
func (hc *HTTPClient) Version(ctx context.Context, authn auth.Authenticator) (*version.Version, error) {
	data, err := hc.Get(ctx, VersionPath, nil, authn)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to query archive version")
	}
	raw := strings.TrimSpace(string(data))
	v, err := version.NewVersion(raw)
	if err != nil {
		return nil, fmt.Errorf("unparseable archive version %q: %w", raw, err)
	}
	return v, nil
}

// StatusCode extracts the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	var nf *pkgerrors.NotFoundError
	if errors.As(err, &nf) {
		return http.StatusNotFound
	}
	return 0
}

func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
