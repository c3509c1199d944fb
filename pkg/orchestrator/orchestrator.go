package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/benzinger-icl/karidf-scripts/internal/logger"
	"github.com/benzinger-icl/karidf-scripts/pkg/auth"
	pkgerrors "github.com/benzinger-icl/karidf-scripts/pkg/errors"
	"github.com/benzinger-icl/karidf-scripts/pkg/fsutil"
	"github.com/benzinger-icl/karidf-scripts/pkg/hooks"
	"github.com/benzinger-icl/karidf-scripts/pkg/layout"
	"github.com/benzinger-icl/karidf-scripts/pkg/metrics"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
	concpool "github.com/sourcegraph/conc/pool"
)

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

// run holds the state of one Run call.
type run struct {
	p       *Pipeline
	authn   auth.Authenticator
	dest    string
	kind    model.Kind
	metrics metrics.Metrics
	labels  keyedMutex

	mu       sync.Mutex
	subjects int
	counts   map[model.Status]int
}

// Run processes ids in order. Subject-scoped failures are recorded and skipped; the
// returned error is non-nil only for an AuthError, an unusable destination root or a
// cancelled context.
func (p *Pipeline) Run(ctx context.Context, authn auth.Authenticator, ids []string, opts Options) (Summary, error) {
	if err := p.validate(); err != nil {
		return Summary{}, err
	}
	dest, err := filepath.Abs(opts.DestinationDir)
	if err != nil || opts.DestinationDir == "" {
		return Summary{}, &pkgerrors.FilesystemError{Op: "resolve", Path: opts.DestinationDir, Err: pkgerrors.ErrInvalidPath}
	}
	if err := fsutil.CheckDirectoryWritable(dest); err != nil {
		return Summary{}, err
	}

	r := &run{
		p:       p,
		authn:   authn,
		dest:    dest,
		kind:    p.Catalog.Kind(),
		metrics: p.Metrics,
		counts:  make(map[model.Status]int),
	}
	if r.metrics == nil {
		r.metrics = metrics.Noop{}
	}

	start := time.Now()
	if opts.Concurrency > 1 {
		err = r.parallel(ctx, ids, opts.Concurrency)
	} else {
		err = r.sequential(ctx, ids)
	}
	r.metrics.ObserveRunDuration(string(r.kind), time.Since(start).Seconds())

	summary := r.summary()
	if err != nil {
		emit(p.Hooks, Event{Phase: "error", Msg: err.Error()})
		return summary, err
	}

	r.runScript(ctx, hooks.PostRun, hooks.HookContext{
		Kind: string(r.kind),
		Vars: map[string]interface{}{
			"subjects":   summary.Subjects,
			"downloaded": summary.Counts[model.StatusDownloaded],
			"failed":     summary.Failed(),
		},
	})
	emit(p.Hooks, Event{Phase: "done", Msg: fmt.Sprintf("%d subjects, %d downloaded, %d failed",
		summary.Subjects, summary.Counts[model.StatusDownloaded], summary.Failed())})
	return summary, nil
}

func (p *Pipeline) validate() error {
	switch {
	case p.Catalog == nil:
		return fmt.Errorf("catalog is not configured")
	case p.Selector == nil:
		return fmt.Errorf("selector is not configured")
	case p.Fetcher == nil:
		return fmt.Errorf("fetcher is not configured")
	case p.Unpacker == nil:
		return fmt.Errorf("unpacker is not configured")
	case p.Layout == nil:
		return fmt.Errorf("layout normalizer is not configured")
	case p.Recorder == nil:
		return fmt.Errorf("recorder is not configured")
	}
	return nil
}

func (r *run) sequential(ctx context.Context, ids []string) error {
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.subject(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// parallel processes subjects on a bounded pool. The first fatal error cancels the rest.
func (r *run) parallel(ctx context.Context, ids []string, workers int) error {
	pl := concpool.New().WithContext(ctx).WithCancelOnError().WithFirstError().WithMaxGoroutines(workers)
	for _, id := range ids {
		pl.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return r.subject(ctx, id)
		})
	}
	if err := pl.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// subject processes one subject ID. Only fatal errors are returned.
func (r *run) subject(ctx context.Context, id string) error {
	emit(r.p.Hooks, Event{Phase: "catalog", ID: id})
	logger.Info("Checking subject", logger.Fields{"kind": r.kind, "subject_id": id})

	subject, err := r.p.Catalog.ListResources(ctx, r.authn, id)
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		status := model.StatusDownloadFailed
		if pkgerrors.IsNotFound(err) {
			status = model.StatusNotFound
		}
		logger.Warn("Subject could not be resolved", logger.Fields{"subject_id": id, "error": err.Error()})
		return r.record(ctx, model.LogRecord{SubjectID: id, Status: status, Detail: err.Error()}, "")
	}
	r.countSubject()

	var selected []model.ResourceEntry
	for _, e := range subject.Entries {
		if !r.p.Selector.IsSelected(e) {
			logger.Debug("Skipping unselected resource", logger.Fields{"subject_id": id, "resource_id": e.ResourceID, "type": e.TypeName})
			emit(r.p.Hooks, Event{Phase: "skipped", ID: id, Msg: e.ResourceID + " " + e.TypeName})
			continue
		}
		selected = append(selected, e)
	}
	if len(selected) == 0 {
		logger.Info("No selected resources", logger.Fields{"subject_id": id, "label": subject.Label, "available": len(subject.Entries)})
		return nil
	}
	if err := layout.ProfileFor(r.kind).CheckVar("label", subject.Label); err != nil {
		logger.Warn("Subject label cannot be unwrapped, resources will fail to normalize", logger.Fields{
			"subject_id": id, "label": subject.Label, "error": err.Error(),
		})
	}

	dirs := model.ResourceDirs(r.kind, subject, selected)
	labelRoot := filepath.Join(r.dest, topDir(dirs[selected[0].ResourceID]))
	unlock := r.labels.lock(labelRoot)
	defer unlock()

	downloaded := 0
	for _, e := range selected {
		if err := ctx.Err(); err != nil {
			return err
		}
		resourceDir := filepath.Join(r.dest, dirs[e.ResourceID])
		status, detail, err := r.entry(ctx, subject, e, resourceDir)
		if err != nil {
			return err
		}
		if status == model.StatusDownloaded {
			downloaded++
		}
		rec := model.LogRecord{
			SubjectID:    subject.ID,
			SubjectLabel: subject.Label,
			ResourceID:   e.ResourceID,
			TypeName:     e.TypeName,
			Status:       status,
			Detail:       detail,
		}
		if err := r.record(ctx, rec, resourceDir); err != nil {
			return err
		}
	}

	if downloaded > 0 {
		if err := r.p.Layout.NormalizePermissions(labelRoot); err != nil {
			logger.Warn("Failed to normalize permissions", logger.Fields{"path": labelRoot, "error": err.Error()})
		}
	}
	return nil
}

// entry fetches, verifies, unpacks and normalizes one resource. It returns the manifest
// status and detail, or a fatal error.
func (r *run) entry(ctx context.Context, subject *model.Subject, e model.ResourceEntry, resourceDir string) (model.Status, string, error) {
	fields := logger.Fields{"subject_id": subject.ID, "label": subject.Label, "resource_id": e.ResourceID, "type": e.TypeName}

	emit(r.p.Hooks, Event{Phase: "downloading", ID: subject.ID, Msg: e.ResourceID})
	artifact, err := r.p.Fetcher.Fetch(ctx, r.authn, e, filepath.Dir(resourceDir))
	if err != nil {
		if fatal(ctx, err) {
			return "", "", err
		}
		logger.Warn("Download failed", withError(fields, err))
		if pkgerrors.IsNotFound(err) {
			return model.StatusNotFound, err.Error(), nil
		}
		return model.StatusDownloadFailed, err.Error(), nil
	}
	r.metrics.AddBytes(string(r.kind), artifact.Size)

	emit(r.p.Hooks, Event{Phase: "unpacking", ID: subject.ID, Msg: e.ResourceID})
	if err := r.p.Unpacker.Verify(ctx, artifact); err != nil {
		if fatal(ctx, err) {
			return "", "", err
		}
		logger.Warn("Downloaded artifact is corrupt", withError(fields, err))
		return model.StatusUnpackFailed, err.Error(), nil
	}
	n, err := r.p.Unpacker.Unpack(ctx, artifact, resourceDir, r.p.Selector.FileFilter(e))
	if err != nil {
		if fatal(ctx, err) {
			return "", "", err
		}
		logger.Warn("Unpack failed", withError(fields, err))
		return model.StatusUnpackFailed, err.Error(), nil
	}

	emit(r.p.Hooks, Event{Phase: "normalizing", ID: subject.ID, Msg: e.ResourceID})
	vars := map[string]string{"label": subject.Label, "resource": e.ResourceID}
	if err := r.p.Layout.Normalize(resourceDir, layout.ProfileFor(r.kind), vars); err != nil {
		logger.Warn("Layout normalization failed", withError(fields, err))
		return model.StatusUnpackFailed, err.Error(), nil
	}

	fields["files"] = n
	fields["path"] = resourceDir
	logger.Success("Resource downloaded", fields)
	return model.StatusDownloaded, fileCount(n), nil
}

func fileCount(n int) string {
	if n == 1 {
		return "1 file"
	}
	return fmt.Sprintf("%d files", n)
}

// record writes rec, updates the counters and runs the post-resource script.
func (r *run) record(ctx context.Context, rec model.LogRecord, resourceDir string) error {
	if err := r.p.Recorder.Record(rec); err != nil {
		return pkgerrors.Wrapf(err, "failed to record %s", rec.SubjectID)
	}
	r.mu.Lock()
	r.counts[rec.Status]++
	r.mu.Unlock()
	r.metrics.IncResources(string(r.kind), string(rec.Status))
	emit(r.p.Hooks, Event{Phase: "recorded", ID: rec.SubjectID, Msg: strings.TrimSpace(rec.ResourceID + " " + string(rec.Status))})

	r.runScript(ctx, hooks.PostResource, hooks.HookContext{
		Kind:         string(r.kind),
		SubjectID:    rec.SubjectID,
		SubjectLabel: rec.SubjectLabel,
		ResourceID:   rec.ResourceID,
		TypeName:     rec.TypeName,
		ResourceDir:  resourceDir,
		Status:       string(rec.Status),
		Detail:       rec.Detail,
	})
	return nil
}

// runScript runs a hook script. Script failures are logged and never stop the run.
func (r *run) runScript(ctx context.Context, hookType hooks.HookType, hc hooks.HookContext) {
	if r.p.Scripts == nil {
		return
	}
	if err := r.p.Scripts.Execute(ctx, hookType, hc); err != nil {
		logger.Warn("Hook script failed", logger.Fields{"hook": hookType, "subject_id": hc.SubjectID, "error": err.Error()})
	}
}

func (r *run) countSubject() {
	r.mu.Lock()
	r.subjects++
	r.mu.Unlock()
	r.metrics.IncSubjects(string(r.kind))
}

func (r *run) summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[model.Status]int, len(r.counts))
	for k, v := range r.counts {
		counts[k] = v
	}
	return Summary{Subjects: r.subjects, Counts: counts}
}

// fatal reports whether err must stop the whole run.
func fatal(ctx context.Context, err error) bool {
	if pkgerrors.IsAuth(err) {
		return true
	}
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}

func withError(fields logger.Fields, err error) logger.Fields {
	out := make(logger.Fields, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["error"] = err.Error()
	return out
}

// topDir returns the first element of a relative path.
func topDir(rel string) string {
	first, _, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return first
}

// keyedMutex serializes work on the same subject label directory, which duplicate IDs
// or IDs of the same session share.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
