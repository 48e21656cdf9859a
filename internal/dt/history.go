package dt

import (
	"io"
	"time"
)

// Run statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Run is one recorded invocation of a deployment operation.
type Run struct {
	ID         int64
	Deployment string
	Operation  string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// TargetRecord is the stored outcome of one operation on one target.
type TargetRecord struct {
	ID       int64
	RunID    int64
	Host     string
	Release  string
	Error    string
	Duration time.Duration
}

// HistoryStore records runs and their per-target results.
type HistoryStore interface {
	// CreateRun starts a run record with status "running".
	CreateRun(deployment, operation string) (*Run, error)

	// FinishRun sets the final status of a run.
	FinishRun(id int64, status string) error

	// RecordTargetResult stores the outcome of one target within a run.
	RecordTargetResult(runID int64, result TargetResult) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(limit int) ([]*Run, error)

	// ListTargetResults returns the per-target records of a run.
	ListTargetResults(runID int64) ([]*TargetRecord, error)

	// MaxRunID returns the highest run ID, or 0 when nothing was recorded.
	MaxRunID() (int64, error)

	// BackupTo writes a consistent snapshot of the store to path.
	BackupTo(path string) error

	Close() error
}

// Vault stores archive snapshots of the history store.
type Vault interface {
	// PutMetadata stores a named item under namespace. size is the number of
	// bytes that will be read from r; version is kept alongside it.
	PutMetadata(namespace, name string, r io.Reader, size int64, version int64) error

	// GetMetadata writes a stored item to w.
	GetMetadata(namespace, name string, w io.Writer) error

	// GetMetadataVersion returns the version stored with an item, or 0 if absent.
	GetMetadataVersion(namespace, name string) (int64, error)

	// ValidateSetup verifies that the vault is accessible.
	ValidateSetup() error
}
