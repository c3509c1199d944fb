// Package catalog resolves subject labels and lists the retrievable resources of a subject.
package catalog

import (
	"context"
	"net/url"
	"strings"

	"github.com/benzinger-icl/karidf-scripts/pkg/auth"
	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	archivehttp "github.com/benzinger-icl/karidf-scripts/pkg/http"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
)

// Scan list columns.
const (
	colID                = "ID"
	colType              = "type"
	colSeriesDescription = "series_description"
	colLabel             = "label"
)

// ResolveLabel looks up the label of an experiment. A missing row or a 404 yields a NotFoundError.
func ResolveLabel(ctx context.Context, client *archivehttp.HTTPClient, authn auth.Authenticator, experimentID string) (string, error) {
	query := url.Values{
		"ID":      {experimentID},
		"columns": {colLabel},
		"format":  {"csv"},
	}
	data, err := client.Get(ctx, archivehttp.ExperimentsPath, query, authn)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return "", &pkgerrors.NotFoundError{Kind: "subject", ID: experimentID, Err: pkgerrors.ErrSubjectNotFound}
		}
		return "", pkgerrors.Wrapf(err, "failed to resolve label of %s", experimentID)
	}

	t, err := parseTable(data)
	if err != nil {
		return "", err
	}
	if err := t.require(colLabel); err != nil {
		return "", err
	}

	for _, row := range t.rows {
		id := t.get(row, colID)
		if id != "" && id != experimentID {
			continue
		}
		if label := strings.TrimSpace(t.get(row, colLabel)); label != "" {
			return label, nil
		}
	}
	return "", &pkgerrors.NotFoundError{Kind: "subject", ID: experimentID, Err: pkgerrors.ErrSubjectNotFound}
}

// ScanCatalog lists the raw scans of an imaging session.
type ScanCatalog struct {
	client *archivehttp.HTTPClient
}

// NewScanCatalog creates a scan catalog.
func NewScanCatalog(client *archivehttp.HTTPClient) *ScanCatalog {
	return &ScanCatalog{client: client}
}

// Kind returns KindScans.
func (c *ScanCatalog) Kind() model.Kind { return model.KindScans }

// ListResources resolves the session label and lists its scans in archive order.
func (c *ScanCatalog) ListResources(ctx context.Context, authn auth.Authenticator, subjectID string) (*model.Subject, error) {
	label, err := ResolveLabel(ctx, c.client, authn, subjectID)
	if err != nil {
		return nil, err
	}

	data, err := c.client.Get(ctx, experimentPath(subjectID, "scans"), url.Values{"format": {"csv"}}, authn)
	if err != nil {
		if pkgerrors.IsNotFound(err) {
			return nil, &pkgerrors.NotFoundError{Kind: "scans", ID: subjectID, Err: pkgerrors.ErrResourceNotFound}
		}
		return nil, pkgerrors.Wrapf(err, "failed to list scans of %s", subjectID)
	}

	t, err := parseTable(data)
	if err != nil {
		return nil, err
	}
	if err := t.require(colID, colType); err != nil {
		return nil, err
	}

	subject := &model.Subject{ID: subjectID, Label: label}
	for _, row := range t.rows {
		scanID := t.get(row, colID)
		if scanID == "" {
			continue
		}
		subject.Entries = append(subject.Entries, model.ResourceEntry{
			ResourceID:  scanID,
			TypeName:    t.get(row, colType),
			Description: t.get(row, colSeriesDescription),
			DownloadURI: experimentPath(subjectID, "scans", scanID, "files"),
			Owner:       subjectID,
		})
	}
	return subject, nil
}

func experimentPath(experimentID string, parts ...string) string {
	segs := append([]string{archivehttp.ExperimentsPath, url.PathEscape(experimentID)}, escapeAll(parts)...)
	return strings.Join(segs, "/")
}

func escapeAll(parts []string) []string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = url.PathEscape(p)
	}
	return out
}
