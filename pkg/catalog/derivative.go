package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/benzinger-icl/karidf-scripts/pkg/auth"
	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	archivehttp "github.com/benzinger-icl/karidf-scripts/pkg/http"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
)

// Derivative package resources.
const (
	ResourceSnapshots = "SNAPSHOTS"
	ResourceLog       = "LOG"
	ResourceData      = "DATA"
)

// Assessor ID separators.
const (
	FreeSurferSeparator = "_freesurfer_"
	PUPSeparator        = "_PUPTIMECOURSE_"
)

// DerivativeCatalog lists the resource folders of a FreeSurfer or PUP assessor.
// The subject ID is the assessor ID.
type DerivativeCatalog struct {
	client    *archivehttp.HTTPClient
	kind      model.Kind
	resources []string
}

// NewFreeSurferCatalog creates a catalog of FreeSurfer resources. resources lists the
// folders to retrieve, in order.
func NewFreeSurferCatalog(client *archivehttp.HTTPClient, resources []string) *DerivativeCatalog {
	return &DerivativeCatalog{client: client, kind: model.KindFreeSurfer, resources: resources}
}

// NewPUPCatalog creates a catalog of PUP resources.
func NewPUPCatalog(client *archivehttp.HTTPClient, resources []string) *DerivativeCatalog {
	return &DerivativeCatalog{client: client, kind: model.KindPUP, resources: resources}
}

// Kind returns the derivative kind.
func (c *DerivativeCatalog) Kind() model.Kind { return c.kind }

// ExperimentID returns the experiment an assessor ID hangs off.
func ExperimentID(kind model.Kind, assessorID string) (string, error) {
	sep := FreeSurferSeparator
	if kind == model.KindPUP {
		sep = PUPSeparator
	}
	expt, _, found := strings.Cut(assessorID, sep)
	if !found || expt == "" {
		return "", fmt.Errorf("%s: %w", assessorID, pkgerrors.ErrInvalidAssessor)
	}
	return expt, nil
}

// ListResources returns one entry per configured resource folder. FreeSurfer assessors
// are labelled by their own ID; PUP assessors by the label of their parent session.
func (c *DerivativeCatalog) ListResources(ctx context.Context, authn auth.Authenticator, assessorID string) (*model.Subject, error) {
	expt, err := ExperimentID(c.kind, assessorID)
	if err != nil {
		return nil, &pkgerrors.NotFoundError{Kind: "assessor", ID: assessorID, Err: err}
	}

	label := assessorID
	if c.kind == model.KindPUP {
		label, err = ResolveLabel(ctx, c.client, authn, expt)
		if err != nil {
			return nil, err
		}
	}

	subject := &model.Subject{ID: assessorID, Label: label}
	for _, res := range c.resources {
		subject.Entries = append(subject.Entries, model.ResourceEntry{
			ResourceID:  res,
			TypeName:    res,
			DownloadURI: experimentPath(expt, "assessors", assessorID, "resources", res, "files"),
			Owner:       assessorID,
		})
	}
	return subject, nil
}
