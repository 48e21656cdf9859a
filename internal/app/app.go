package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"dt-go/internal/config"
	"dt-go/internal/database"
	"dt-go/internal/dt"
	"dt-go/internal/git"
	"dt-go/internal/remote"
	"dt-go/internal/secrets"
	"dt-go/internal/tasks"
	"dt-go/internal/transfer"
	"dt-go/internal/vault"
)

// Archive location of the history snapshot in the vault.
const (
	ArchiveNamespace = "dt"
	ArchiveName      = database.HistoryFile
)

var (
	errNoDeployment    = errors.New("no deployment selected")
	errHistoryDisabled = errors.New("history is disabled in the config")
)

// Options selects what a DTApp is built for. The collaborator fields are
// optional; when nil the production implementation is built from config.
type Options struct {
	// Deployment names the deployment to operate on. It may be empty for
	// commands that only read the history.
	Deployment string
	// Operation identifies the CLI command being run (e.g. "deploy", "history").
	Operation string
	// WorkDir is the local checkout used for git checks and branch names.
	WorkDir string
	// Verbose sends debug output to stderr as well as the log file.
	Verbose bool

	Prompter       dt.Prompter
	PasswordPrompt remote.PasswordPrompt
	Dialer         dt.Dialer
	Transferer     dt.Transferer
	Git            dt.GitInspector
	Vault          dt.Vault
	Clock          dt.Clock
	IDs            dt.IDGenerator
}

// DTApp is the application layer between the CLI and the deployment core.
// It constructs all dependencies from config, records mutating operations
// in the history and archives the history on Close.
type DTApp struct {
	cfg     *config.Config
	history dt.HistoryStore
	vault   dt.Vault
	multi   *dt.MultiTarget
	op      *Operation
	logger  dt.Logger
	logFile *os.File
}

// NewDTApp creates a fully wired DTApp from the given config.
// The caller must call Close when done.
func NewDTApp(ctx context.Context, cfg *config.Config, opts Options) (*DTApp, error) {
	clock := opts.Clock
	if clock == nil {
		clock = dt.RealClock{}
	}

	v := opts.Vault
	if v == nil {
		var err error
		v, err = vault.NewVaultFromConfig(ctx, cfg.Archive)
		if err != nil {
			return nil, fmt.Errorf("creating vault: %w", err)
		}
	}

	db, err := database.NewDatabaseFromConfig(cfg.History, clock)
	if err != nil {
		return nil, fmt.Errorf("creating history database: %w", err)
	}
	var history dt.HistoryStore
	if db != nil {
		if err := db.CheckMigrations(); err != nil {
			db.Close()
			return nil, fmt.Errorf("history schema out of date: %w", err)
		}
		history = db
	}

	if history != nil && v != nil {
		if err := checkArchiveVersion(history, v); err != nil {
			history.Close()
			return nil, err
		}
	}

	ids := opts.IDs
	if ids == nil {
		ids = dt.UUIDGenerator{}
	}
	runID := ids.New()
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	sl, logFile, err := newLogger(cfg.LogDir, runID, level)
	if err != nil {
		if history != nil {
			history.Close()
		}
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: sl.With("deployment", opts.Deployment, "op", opts.Operation)}

	a := &DTApp{
		cfg:     cfg,
		history: history,
		vault:   v,
		op:      NewOperation(opts.Deployment, opts.Operation),
		logger:  logger,
		logFile: logFile,
	}

	if opts.Deployment != "" {
		multi, err := buildMultiTarget(cfg, opts, logger, clock)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.multi = multi
	}
	return a, nil
}

// checkArchiveVersion refuses to run when the archived history is newer
// than the local one, which means another machine deployed since.
func checkArchiveVersion(history dt.HistoryStore, v dt.Vault) error {
	remoteVersion, err := v.GetMetadataVersion(ArchiveNamespace, ArchiveName)
	if err != nil {
		return fmt.Errorf("checking archived history version: %w", err)
	}
	localMax, err := history.MaxRunID()
	if err != nil {
		return fmt.Errorf("checking local history version: %w", err)
	}
	if remoteVersion > localMax {
		return fmt.Errorf("local history is behind the archive (local=%d, archive=%d): restore it with 'dt history restore'", localMax, remoteVersion)
	}
	return nil
}

func buildMultiTarget(cfg *config.Config, opts Options, logger dt.Logger, clock dt.Clock) (*dt.MultiTarget, error) {
	d, err := cfg.Deployment(opts.Deployment)
	if err != nil {
		return nil, err
	}

	dialer := opts.Dialer
	if dialer == nil {
		var dec remote.Decrypter
		if s := secrets.NewAgeSecrets(cfg.Secrets); s.IsConfigured() {
			dec = s
		}
		dialer = remote.NewDialer(remote.NewSSHDialer(dec, opts.PasswordPrompt, logger))
	}

	transferer := opts.Transferer
	if transferer == nil {
		transferer = transfer.NewRsync(logger)
	}

	registry, err := tasks.NewRegistry(cfg.Tasks, logger)
	if err != nil {
		return nil, fmt.Errorf("registering tasks: %w", err)
	}

	inspector := opts.Git
	if inspector == nil && (d.CheckGit || d.Strategy == "branches") {
		repo, err := git.Open(workDir(opts.WorkDir))
		if err != nil {
			return nil, err
		}
		inspector = repo
	}

	var releaser dt.Releaser
	switch d.Strategy {
	case "branches":
		branch, err := inspector.CurrentBranch()
		if err != nil {
			return nil, fmt.Errorf("determining branch: %w", err)
		}
		releaser = dt.NewBranches(branch, logger, opts.Prompter, clock)
	default:
		releaser = dt.NewRevisions(logger, opts.Prompter, clock)
	}

	return dt.NewMultiTarget(d, releaser, dialer, transferer, registry, inspector, logger, clock), nil
}

func workDir(dir string) string {
	if dir != "" {
		return dir
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// persistOperation saves the operation to the history, giving it an auto-increment ID.
// This should only be called for commands that change targets.
func (a *DTApp) persistOperation() error {
	if a.history == nil || a.op.Persisted() {
		return nil
	}
	run, err := a.history.CreateRun(a.op.Deployment, a.op.Name)
	if err != nil {
		return fmt.Errorf("persisting operation: %w", err)
	}
	a.op.ID = run.ID
	return nil
}

// record runs fn across the deployment's targets. Mutating operations are
// stored in the history together with each target's result.
func (a *DTApp) record(ctx context.Context, mutating bool, fn func(context.Context) ([]dt.TargetResult, error)) ([]dt.TargetResult, error) {
	if a.multi == nil {
		return nil, errNoDeployment
	}
	if mutating {
		if err := a.persistOperation(); err != nil {
			return nil, err
		}
	}

	results, err := fn(ctx)
	if err != nil {
		a.op.Fail()
	}
	if a.op.Persisted() {
		for _, r := range results {
			if rerr := a.history.RecordTargetResult(a.op.ID, r); rerr != nil {
				a.logger.Error("recording target result", "target", r.Host, "error", rerr)
			}
		}
	}
	return results, err
}

// Deploy creates a release on every target.
func (a *DTApp) Deploy(ctx context.Context) ([]dt.TargetResult, error) {
	return a.record(ctx, true, a.multi.Deploy)
}

// Rollback points every target at its previous release.
func (a *DTApp) Rollback(ctx context.Context) ([]dt.TargetResult, error) {
	return a.record(ctx, true, a.multi.RollbackRelease)
}

// Prune removes untracked releases and one operator-selected release per target.
func (a *DTApp) Prune(ctx context.Context) ([]dt.TargetResult, error) {
	return a.record(ctx, true, a.multi.PruneReleases)
}

// GenerateIndex rewrites the release index on every target.
func (a *DTApp) GenerateIndex(ctx context.Context) ([]dt.TargetResult, error) {
	return a.record(ctx, true, a.multi.GenerateIndex)
}

// List returns the tracked releases of every target.
func (a *DTApp) List(ctx context.Context) ([]dt.TargetResult, error) {
	return a.record(ctx, false, a.multi.ListReleases)
}

// History returns the most recent runs.
func (a *DTApp) History(limit int) ([]*dt.Run, error) {
	if a.history == nil {
		return nil, errHistoryDisabled
	}
	return a.history.ListRuns(limit)
}

// RunResults returns the per-target results of a run.
func (a *DTApp) RunResults(runID int64) ([]*dt.TargetRecord, error) {
	if a.history == nil {
		return nil, errHistoryDisabled
	}
	return a.history.ListTargetResults(runID)
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the run record, snapshots the history and uploads it to the vault.
// For non-persisted operations: just closes the database.
func (a *DTApp) Close() error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.history != nil {
		if a.op.Persisted() {
			if err := a.history.FinishRun(a.op.ID, a.op.Status); err != nil {
				keep(fmt.Errorf("finishing run: %w", err))
			}
		}

		var tmpPath string
		if a.op.Persisted() && a.vault != nil {
			tmpPath = a.snapshot()
		}

		if err := a.history.Close(); err != nil {
			keep(fmt.Errorf("closing history: %w", err))
		}

		if tmpPath != "" {
			keep(a.uploadHistory(tmpPath, a.op.ID))
			os.Remove(tmpPath)
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}

// snapshot writes the history to a temp file. It returns "" and logs the
// failure if the snapshot could not be taken.
func (a *DTApp) snapshot() string {
	tmpFile, err := os.CreateTemp("", "dt-history-*.db")
	if err != nil {
		a.logger.Error("creating temp file for history snapshot", "error", err)
		return ""
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	if err := a.history.BackupTo(tmpPath); err != nil {
		a.logger.Error("snapshotting history", "error", err)
		os.Remove(tmpPath)
		return ""
	}
	return tmpPath
}

// uploadHistory uploads the snapshot at path to the vault with the run ID as version.
func (a *DTApp) uploadHistory(path string, version int64) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening history snapshot for upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat history snapshot: %w", err)
	}

	if err := a.vault.PutMetadata(ArchiveNamespace, ArchiveName, f, info.Size(), version); err != nil {
		return fmt.Errorf("uploading history to vault: %w", err)
	}
	a.logger.Info("archived history", "version", version, "bytes", info.Size())
	return nil
}
