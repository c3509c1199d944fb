package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/benzinger-icl/karidf-scripts/internal/logger"
	"github.com/benzinger-icl/karidf-scripts/pkg/archive"
	"github.com/benzinger-icl/karidf-scripts/pkg/audit"
	"github.com/benzinger-icl/karidf-scripts/pkg/config"
	"github.com/benzinger-icl/karidf-scripts/pkg/download"
	"github.com/benzinger-icl/karidf-scripts/pkg/fsutil"
	"github.com/benzinger-icl/karidf-scripts/pkg/hooks"
	archivehttp "github.com/benzinger-icl/karidf-scripts/pkg/http"
	"github.com/benzinger-icl/karidf-scripts/pkg/input"
	"github.com/benzinger-icl/karidf-scripts/pkg/layout"
	"github.com/benzinger-icl/karidf-scripts/pkg/metrics"
	"github.com/benzinger-icl/karidf-scripts/pkg/model"
	"github.com/benzinger-icl/karidf-scripts/pkg/orchestrator"
	"github.com/benzinger-icl/karidf-scripts/pkg/session"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// retrieveFlags are the flags shared by the scans, freesurfer and pup commands.
type retrieveFlags struct {
	idList      string
	singleID    string
	user        string
	password    string
	createLogs  bool
	concurrency int
	metricsFile string
}

func (f *retrieveFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.idList, "csv", "c", "", "CSV file with one subject ID per row, no header")
	cmd.Flags().StringVarP(&f.singleID, "id", "i", "", "single subject ID")
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "archive user name or token alias")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "archive password or token secret (prompted when omitted)")
	cmd.Flags().BoolVar(&f.createLogs, "create-logs", false, "write a run log and a manifest CSV to the log directory")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "number of subjects processed in parallel (0=config)")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after the run")
}

// retrieval is one fully configured run of a retrieval command.
type retrieval struct {
	kind     model.Kind
	flags    *retrieveFlags
	args     []string
	selector orchestrator.Selector
	// newCatalog builds the catalog once the archive client exists.
	newCatalog func(client *archivehttp.HTTPClient) orchestrator.Catalog
}

// applyArgs applies the positional [site] [destination] arguments and the flags to cfg.
func (r *retrieval) applyArgs(cfg *config.Config) error {
	if len(r.args) > 0 {
		cfg.Archive.SiteURL = r.args[0]
	}
	if len(r.args) > 1 {
		cfg.Settings.DestinationDir = r.args[1]
	}
	if cfg.Settings.DestinationDir == "" {
		cfg.Settings.DestinationDir = "."
	}
	if r.flags.createLogs {
		cfg.Settings.CreateLogs = true
	}
	if r.flags.concurrency > 0 {
		cfg.Settings.Concurrency = r.flags.concurrency
	}
	if r.flags.metricsFile != "" {
		cfg.Settings.MetricsFile = r.flags.metricsFile
	}
	return cfg.Validate()
}

// runLogPaths returns the run log and manifest paths for kind, e.g.
// download_scans_1700000000.log and download_scans_catalog_1700000000.csv.
func runLogPaths(logDir string, kind model.Kind, now time.Time) (string, string) {
	ts := strconv.FormatInt(now.Unix(), 10)
	logPath := filepath.Join(logDir, fmt.Sprintf("download_%s_%s.log", kind, ts))
	manifestPath := filepath.Join(logDir, fmt.Sprintf("download_%s_catalog_%s.csv", kind, ts))
	return logPath, manifestPath
}

type recorder interface {
	orchestrator.Recorder
	Counts() map[model.Status]int
}

// openRecorder attaches the run log and creates the manifest when logs are requested,
// and returns a counting recorder otherwise. The returned func finalizes both.
func openRecorder(cfg *config.Config, kind model.Kind) (recorder, func(), error) {
	if !cfg.Settings.CreateLogs {
		return &audit.Tally{}, func() {}, nil
	}

	logPath, manifestPath := runLogPaths(cfg.Settings.LogDir, kind, time.Now())
	if err := fsutil.EnsureFileDir(logPath); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	logger.AttachRunLog(logPath)

	manifest, err := audit.CreateManifest(manifestPath)
	if err != nil {
		_ = logger.CloseRunLog()
		return nil, nil, err
	}
	logger.Info("Writing run logs", logger.Fields{"log": logPath, "manifest": manifestPath})

	return manifest, func() {
		if err := manifest.Finalize(); err != nil {
			logger.Error("Failed to finalize manifest", logger.Fields{"path": manifestPath, "error": err.Error()})
		}
		_ = logger.CloseRunLog()
	}, nil
}

func loadScripts(cfg *config.Config) (hooks.HookManager, error) {
	if cfg.Hooks.PostResource == "" && cfg.Hooks.PostRun == "" {
		return nil, nil
	}
	manager := hooks.NewHookManager()
	if err := hooks.LoadHookFile(manager, hooks.PostResource, cfg.Hooks.PostResource); err != nil {
		return nil, err
	}
	if err := hooks.LoadHookFile(manager, hooks.PostRun, cfg.Hooks.PostRun); err != nil {
		return nil, err
	}
	return manager, nil
}

func runRetrieval(ctx context.Context, r *retrieval) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := r.applyArgs(cfg); err != nil {
		return err
	}

	ids, err := input.SubjectSource{ListPath: r.flags.idList, SingleID: r.flags.singleID}.Load()
	if err != nil {
		return fmt.Errorf("failed to read subject IDs: %w", err)
	}

	scripts, err := loadScripts(cfg)
	if err != nil {
		return err
	}

	rec, finalize, err := openRecorder(cfg, r.kind)
	if err != nil {
		return err
	}
	defer finalize()

	client, err := archivehttp.NewHTTPClient(cfg.Archive.SiteURL, cfg.Archive.HTTPTimeout)
	if err != nil {
		return err
	}
	sessions := session.NewManager(client, cfg.Settings.StateDir,
		session.WithRetry(cfg.Archive.OpenAttempts, session.DefaultOpenDelay))

	creds := newCredentialSource(r.flags.user, r.flags.password, cfg.Archive.User)
	sess, err := openSession(ctx, sessions, creds)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), CloseTimeout)
		defer cancel()
		if err := sessions.Close(closeCtx, sess); err != nil {
			logger.Warn("Failed to close session", logger.Fields{"error": err.Error()})
		}
	}()
	authn := session.Authenticator(sess)

	if v, err := client.Version(ctx, authn); err != nil {
		logger.Debug("Archive version unavailable", logger.Fields{"error": err.Error()})
	} else {
		logger.Info("Connected to archive", logger.Fields{"site": cfg.Archive.SiteURL, "version": v.String()})
	}

	var prom *metrics.Prom
	var m metrics.Metrics = metrics.Noop{}
	if cfg.Settings.MetricsFile != "" {
		prom = metrics.NewProm()
		m = prom
	}

	p := &orchestrator.Pipeline{
		Catalog:  r.newCatalog(client),
		Selector: r.selector,
		Fetcher:  download.NewManager(client),
		Unpacker: archive.NewManager(),
		Layout:   layout.NewNormalizer(afero.NewOsFs()),
		Recorder: rec,
		Scripts:  scripts,
		Metrics:  m,
		Hooks: orchestrator.Hooks{OnEvent: func(e orchestrator.Event) {
			logger.Debug("Progress", logger.Fields{"phase": e.Phase, "subject_id": e.ID, "msg": e.Msg})
		}},
	}

	logger.Info("Starting retrieval", logger.Fields{
		"kind":        r.kind,
		"subjects":    len(ids),
		"destination": cfg.Settings.DestinationDir,
		"concurrency": cfg.Settings.Concurrency,
	})
	summary, runErr := p.Run(ctx, authn, ids, orchestrator.Options{
		DestinationDir: cfg.Settings.DestinationDir,
		Concurrency:    cfg.Settings.Concurrency,
	})

	if prom != nil {
		if err := prom.WriteTextfile(cfg.Settings.MetricsFile); err != nil {
			logger.Warn("Failed to write metrics", logger.Fields{"path": cfg.Settings.MetricsFile, "error": err.Error()})
		}
	}
	if runErr != nil {
		return fmt.Errorf("retrieval aborted: %w", runErr)
	}

	counts := rec.Counts()
	logger.Success("Retrieval finished", logger.Fields{
		"subjects":        summary.Subjects,
		"downloaded":      counts[model.StatusDownloaded],
		"not_found":       counts[model.StatusNotFound],
		"download_failed": counts[model.StatusDownloadFailed],
		"unpack_failed":   counts[model.StatusUnpackFailed],
	})
	return nil
}
