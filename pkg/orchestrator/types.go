//go:generate mockgen -destination=./mocks/orchestrator.go -package=mocks . Catalog,Fetcher,Unpacker,Recorder

package orchestrator

import (
	"context"

	"github.com/benzinger-icl/karidf-scripts/pkg/auth"
	"github.com/benzinger-icl/karidf-scripts/pkg/hooks"
	"github.com/benzinger-icl/karidf-scripts/pkg/layout"
	"github.com/benzinger-icl/karidf-scripts/pkg/metrics"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
	"github.com/benzinger-icl/karidf-scripts/pkg/selection"
)

// Catalog resolves a subject ID into its label and resource entries.
type Catalog interface {
	Kind() model.Kind
	ListResources(ctx context.Context, authn auth.Authenticator, subjectID string) (*model.Subject, error)
}

// Selector decides which entries are retrieved and which of their files are kept.
type Selector interface {
	IsSelected(entry model.ResourceEntry) bool
	FileFilter(entry model.ResourceEntry) selection.FileFilter
}

// Fetcher downloads the archive of one entry.
type Fetcher interface {
	Fetch(ctx context.Context, authn auth.Authenticator, entry model.ResourceEntry, destDir string) (*model.RetrievedArtifact, error)
}

// Unpacker verifies and expands a downloaded artifact.
type Unpacker interface {
	Verify(ctx context.Context, artifact *model.RetrievedArtifact) error
	Unpack(ctx context.Context, artifact *model.RetrievedArtifact, destDir string, filter selection.FileFilter) (int, error)
}

// LayoutNormalizer rewrites an expanded resource into the canonical layout.
type LayoutNormalizer interface {
	Normalize(resourceDir string, profile layout.Profile, vars map[string]string) error
	NormalizePermissions(root string) error
}

// Recorder receives one manifest record per attempted unit.
type Recorder interface {
	Record(rec model.LogRecord) error
}

// Pipeline ties the catalog, selection, fetch, unpack, layout and audit stages together.
type Pipeline struct {
	Catalog  Catalog
	Selector Selector
	Fetcher  Fetcher
	Unpacker Unpacker
	Layout   LayoutNormalizer
	Recorder Recorder
	Scripts  hooks.HookManager // optional
	Metrics  metrics.Metrics   // optional
	Hooks    Hooks             // Hooks for progress and event notifications
}

// Event represents a simple progress notification.
type Event struct {
	Phase string // catalog|skipped|downloading|unpacking|normalizing|recorded|done|error
	ID    string // subject ID
	Msg   string
}

// Hooks carries callbacks for progress events.
type Hooks struct {
	OnEvent func(Event)
}

// Options control pipeline execution.
type Options struct {
	DestinationDir string
	Concurrency    int
}

// Summary counts the outcome of a run.
type Summary struct {
	Subjects int
	Counts   map[model.Status]int
}

// Failed returns the number of records with a failure status.
func (s Summary) Failed() int {
	return s.Counts[model.StatusNotFound] + s.Counts[model.StatusDownloadFailed] + s.Counts[model.StatusUnpackFailed]
}
