// Package state provides SQLite-backed persistence for runs, credits,
// scheduled jobs, personas, drafts and posting credentials.
package state

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/feedforge/feedforge/internal/core"
	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial_schema.sql
var migrationV1 string

// Store implements the core persistence ports on SQLite.
type Store struct {
	dbPath string
	db     *sql.DB
}

// NewStore opens (creating if needed) the database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	s := &Store{dbPath: dbPath}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	// WAL keeps the reaper and status queries from blocking a run's writes.
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	if err := s.migrate(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("running migrations: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// migrate runs pending migrations.
func (s *Store) migrate() error {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		version = 0
	}

	if version < 1 {
		if _, err := s.db.Exec(migrationV1); err != nil {
			return fmt.Errorf("applying migration v1: %w", err)
		}
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite uniqueness
// constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateRun inserts a run. The partial unique index on RUNNING rows
// makes this the atomic single-flight admission point: a concurrent
// second insert fails here, never after a stale check.
func (s *Store) CreateRun(ctx context.Context, run *core.Run) error {
	toolCallsJSON, err := json.Marshal(run.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshaling tool calls: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_runs (
			id, status, phase, persona_id, topic_count, max_posts,
			tool_calls, started_at, completed_at, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(run.ID), string(run.Status), string(run.Phase), run.PersonaID,
		run.TopicCount, run.MaxPosts, string(toolCallsJSON),
		run.StartedAt, nullableTime(run.CompletedAt), run.Error,
	)
	if isUniqueViolation(err) {
		active, findErr := s.FindActiveRun(ctx)
		if findErr == nil && active != nil {
			return core.ErrAlreadyRunning(active.ID)
		}
		return core.ErrAlreadyRunning("")
	}
	if err != nil {
		return core.ErrPersistence("create run", err)
	}
	return nil
}

// GetRun retrieves a run by id.
func (s *Store) GetRun(ctx context.Context, id core.RunID) (*core.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, phase, persona_id, topic_count, max_posts,
		       tool_calls, started_at, completed_at, error
		FROM workflow_runs WHERE id = ?
	`, string(id))

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, core.ErrRunNotFound(id)
	}
	if err != nil {
		return nil, core.ErrPersistence("get run", err)
	}
	return run, nil
}

// FindActiveRun returns the RUNNING run, or nil if the system is idle.
func (s *Store) FindActiveRun(ctx context.Context) (*core.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, phase, persona_id, topic_count, max_posts,
		       tool_calls, started_at, completed_at, error
		FROM workflow_runs WHERE status = ?
	`, string(core.RunStatusRunning))

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, core.ErrPersistence("find active run", err)
	}
	return run, nil
}

// UpdateRun applies a partial update. Nil patch fields are untouched.
func (s *Store) UpdateRun(ctx context.Context, id core.RunID, patch core.RunPatch) error {
	sets := make([]string, 0, 5)
	args := make([]interface{}, 0, 6)

	if patch.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*patch.Status))
	}
	if patch.Phase != nil {
		sets = append(sets, "phase = ?")
		args = append(args, string(*patch.Phase))
	}
	if patch.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *patch.Error)
	}
	if patch.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *patch.CompletedAt)
	}
	if patch.ToolCalls != nil {
		toolCallsJSON, err := json.Marshal(patch.ToolCalls)
		if err != nil {
			return fmt.Errorf("marshaling tool calls: %w", err)
		}
		sets = append(sets, "tool_calls = ?")
		args = append(args, string(toolCallsJSON))
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, string(id))
	res, err := s.db.ExecContext(ctx,
		"UPDATE workflow_runs SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return core.ErrPersistence("update run", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return core.ErrRunNotFound(id)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*core.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, phase, persona_id, topic_count, max_posts,
		       tool_calls, started_at, completed_at, error
		FROM workflow_runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, core.ErrPersistence("list runs", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRuns(rows)
}

// ListStuckRuns returns RUNNING runs started before the cutoff.
func (s *Store) ListStuckRuns(ctx context.Context, cutoff time.Time) ([]*core.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, phase, persona_id, topic_count, max_posts,
		       tool_calls, started_at, completed_at, error
		FROM workflow_runs
		WHERE status = ? AND started_at < ?
		ORDER BY started_at ASC
	`, string(core.RunStatusRunning), cutoff)
	if err != nil {
		return nil, core.ErrPersistence("list stuck runs", err)
	}
	defer func() { _ = rows.Close() }()
	return collectRuns(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*core.Run, error) {
	var (
		run           core.Run
		id            string
		status        string
		phase         string
		toolCallsJSON string
		completedAt   sql.NullTime
	)
	err := row.Scan(&id, &status, &phase, &run.PersonaID, &run.TopicCount,
		&run.MaxPosts, &toolCallsJSON, &run.StartedAt, &completedAt, &run.Error)
	if err != nil {
		return nil, err
	}
	run.ID = core.RunID(id)
	run.Status = core.RunStatus(status)
	run.Phase = core.Phase(phase)
	if completedAt.Valid {
		t := completedAt.Time
		run.CompletedAt = &t
	}
	if toolCallsJSON != "" && toolCallsJSON != "null" {
		if err := json.Unmarshal([]byte(toolCallsJSON), &run.ToolCalls); err != nil {
			return nil, fmt.Errorf("unmarshaling tool calls: %w", err)
		}
	}
	return &run, nil
}

func collectRuns(rows *sql.Rows) ([]*core.Run, error) {
	var runs []*core.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
