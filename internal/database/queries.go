package database

import (
	"context"
	"database/sql"
	"time"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the statements used by SQLiteDatabase.
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

// Run is a row of the runs table.
type Run struct {
	ID         int64
	Deployment string
	Operation  string
	Status     string
	StartedAt  time.Time
	FinishedAt sql.NullTime
}

// TargetResult is a row of the target_results table.
type TargetResult struct {
	ID         int64
	RunID      int64
	Host       string
	Release    string
	Error      string
	DurationMs int64
}

const insertRun = `
INSERT INTO runs (deployment, operation, status, started_at)
VALUES (?, ?, 'running', ?)
RETURNING id, deployment, operation, status, started_at, finished_at
`

type InsertRunParams struct {
	Deployment string
	Operation  string
	StartedAt  time.Time
}

func (q *Queries) InsertRun(ctx context.Context, arg InsertRunParams) (Run, error) {
	row := q.db.QueryRowContext(ctx, insertRun, arg.Deployment, arg.Operation, arg.StartedAt)
	var i Run
	err := row.Scan(&i.ID, &i.Deployment, &i.Operation, &i.Status, &i.StartedAt, &i.FinishedAt)
	return i, err
}

const updateRunFinished = `
UPDATE runs SET finished_at = ?, status = ? WHERE id = ?
`

type UpdateRunFinishedParams struct {
	FinishedAt sql.NullTime
	Status     string
	ID         int64
}

func (q *Queries) UpdateRunFinished(ctx context.Context, arg UpdateRunFinishedParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateRunFinished, arg.FinishedAt, arg.Status, arg.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getRuns = `
SELECT id, deployment, operation, status, started_at, finished_at
FROM runs
ORDER BY id DESC
LIMIT ?
`

func (q *Queries) GetRuns(ctx context.Context, limit int64) ([]Run, error) {
	rows, err := q.db.QueryContext(ctx, getRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Run
	for rows.Next() {
		var i Run
		if err := rows.Scan(&i.ID, &i.Deployment, &i.Operation, &i.Status, &i.StartedAt, &i.FinishedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const getMaxRunID = `
SELECT COALESCE(MAX(id), 0) FROM runs
`

func (q *Queries) GetMaxRunID(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, getMaxRunID)
	var id int64
	err := row.Scan(&id)
	return id, err
}

const insertTargetResult = `
INSERT INTO target_results (run_id, host, release, error, duration_ms)
VALUES (?, ?, ?, ?, ?)
`

type InsertTargetResultParams struct {
	RunID      int64
	Host       string
	Release    string
	Error      string
	DurationMs int64
}

func (q *Queries) InsertTargetResult(ctx context.Context, arg InsertTargetResultParams) error {
	_, err := q.db.ExecContext(ctx, insertTargetResult, arg.RunID, arg.Host, arg.Release, arg.Error, arg.DurationMs)
	return err
}

const getTargetResultsByRun = `
SELECT id, run_id, host, release, error, duration_ms
FROM target_results
WHERE run_id = ?
ORDER BY id
`

func (q *Queries) GetTargetResultsByRun(ctx context.Context, runID int64) ([]TargetResult, error) {
	rows, err := q.db.QueryContext(ctx, getTargetResultsByRun, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []TargetResult
	for rows.Next() {
		var i TargetResult
		if err := rows.Scan(&i.ID, &i.RunID, &i.Host, &i.Release, &i.Error, &i.DurationMs); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}
