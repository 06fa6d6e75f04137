// Package history keeps a durable journal of task runs in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	ferrors "git.home.luguber.info/inful/buildflow/internal/foundation/errors"
	"git.home.luguber.info/inful/buildflow/internal/runner"
	"git.home.luguber.info/inful/buildflow/internal/task"
)

// Entry is a persisted TaskRun. Error holds the failure message, if any.
type Entry struct {
	ID         string
	RunID      string
	TaskName   string
	Kind       task.Kind
	Status     runner.Status
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// Duration returns the wall time of the run.
func (e Entry) Duration() time.Duration { return e.FinishedAt.Sub(e.StartedAt) }

// SQLiteStore implements runner.Journal on top of SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ runner.Journal = (*SQLiteStore)(nil)

// Open opens (creating if necessary) the journal at dbPath.
// Use ":memory:" for a throwaway journal.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "open history database").
			WithContext("path", dbPath).
			Build()
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, ferrors.WrapError(err, ferrors.CategoryFileSystem, "initialize history schema").
			WithContext("path", dbPath).
			Build()
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS task_runs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		run_id TEXT NOT NULL,
		task TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_task_runs_run_id ON task_runs(run_id);
	CREATE INDEX IF NOT EXISTS idx_task_runs_task ON task_runs(task);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record appends a finished TaskRun.
func (s *SQLiteStore) Record(ctx context.Context, run runner.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errText sql.NullString
	if run.Err != nil {
		errText = sql.NullString{String: run.Err.Error(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO task_runs (id, run_id, task, kind, status, started_at, finished_at, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		run.ID, run.RunID, run.TaskName, string(run.Kind), string(run.Status),
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), errText,
	)
	if err != nil {
		return fmt.Errorf("insert task run: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, task, kind, status, started_at, finished_at, error FROM task_runs ORDER BY seq DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query task runs: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ByRun returns every entry of one top-level run in recording order.
func (s *SQLiteStore) ByRun(ctx context.Context, runID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, run_id, task, kind, status, started_at, finished_at, error FROM task_runs WHERE run_id = ? ORDER BY seq",
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query task runs: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			e                 Entry
			kind, status      string
			started, finished int64
			errText           sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.TaskName, &kind, &status, &started, &finished, &errText); err != nil {
			return nil, fmt.Errorf("scan task run: %w", err)
		}
		e.Kind = task.Kind(kind)
		e.Status = runner.Status(status)
		e.StartedAt = time.Unix(0, started)
		e.FinishedAt = time.Unix(0, finished)
		e.Error = errText.String
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return entries, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
