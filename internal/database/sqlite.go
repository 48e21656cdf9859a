package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dt-go/internal/database/migrations"
	"dt-go/internal/dt"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the dt.HistoryStore interface using SQLite.
type SQLiteDatabase struct {
	db      *sql.DB
	queries *Queries
	clock   dt.Clock
	path    string
}

// NewSQLiteDatabase opens the database at path and applies any pending
// migrations. path can be a file path or ":memory:". clock may be nil.
func NewSQLiteDatabase(path string, clock dt.Clock) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}

	return NewSQLiteDatabaseFromDB(db, path, clock), nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the schema is up to date.
func NewSQLiteDatabaseFromDB(db *sql.DB, path string, clock dt.Clock) *SQLiteDatabase {
	if clock == nil {
		clock = dt.RealClock{}
	}
	return &SQLiteDatabase{
		db:      db,
		queries: NewQueries(db),
		clock:   clock,
		path:    path,
	}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Runs are recorded from a single process; one connection also keeps
	// ":memory:" databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Run tracking

func (s *SQLiteDatabase) CreateRun(deployment, operation string) (*dt.Run, error) {
	run, err := s.queries.InsertRun(context.Background(), InsertRunParams{
		Deployment: deployment,
		Operation:  operation,
		StartedAt:  s.clock.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return toRun(run), nil
}

func (s *SQLiteDatabase) FinishRun(id int64, status string) error {
	n, err := s.queries.UpdateRunFinished(context.Background(), UpdateRunFinishedParams{
		FinishedAt: sql.NullTime{Time: s.clock.Now().UTC(), Valid: true},
		Status:     status,
		ID:         id,
	})
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run: run %d not found", id)
	}
	return nil
}

func (s *SQLiteDatabase) ListRuns(limit int) ([]*dt.Run, error) {
	runs, err := s.queries.GetRuns(context.Background(), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	result := make([]*dt.Run, len(runs))
	for i := range runs {
		result[i] = toRun(runs[i])
	}
	return result, nil
}

func (s *SQLiteDatabase) MaxRunID() (int64, error) {
	id, err := s.queries.GetMaxRunID(context.Background())
	if err != nil {
		return 0, fmt.Errorf("getting max run ID: %w", err)
	}
	return id, nil
}

func toRun(r Run) *dt.Run {
	run := &dt.Run{
		ID:         r.ID,
		Deployment: r.Deployment,
		Operation:  r.Operation,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
	}
	if r.FinishedAt.Valid {
		finished := r.FinishedAt.Time
		run.FinishedAt = &finished
	}
	return run
}

// Target results

// RecordTargetResult stores the outcome of one target. Releases listed by
// the operation are not stored.
func (s *SQLiteDatabase) RecordTargetResult(runID int64, result dt.TargetResult) error {
	var errText string
	if result.Err != nil {
		errText = result.Err.Error()
	}
	err := s.queries.InsertTargetResult(context.Background(), InsertTargetResultParams{
		RunID:      runID,
		Host:       result.Host,
		Release:    result.Release,
		Error:      errText,
		DurationMs: result.Duration.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("recording result for %s: %w", result.Host, err)
	}
	return nil
}

func (s *SQLiteDatabase) ListTargetResults(runID int64) ([]*dt.TargetRecord, error) {
	rows, err := s.queries.GetTargetResultsByRun(context.Background(), runID)
	if err != nil {
		return nil, fmt.Errorf("listing target results: %w", err)
	}

	result := make([]*dt.TargetRecord, len(rows))
	for i, r := range rows {
		result[i] = &dt.TargetRecord{
			ID:       r.ID,
			RunID:    r.RunID,
			Host:     r.Host,
			Release:  r.Release,
			Error:    r.Error,
			Duration: time.Duration(r.DurationMs) * time.Millisecond,
		}
	}
	return result, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.Check(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements dt.HistoryStore interface
var _ dt.HistoryStore = (*SQLiteDatabase)(nil)
