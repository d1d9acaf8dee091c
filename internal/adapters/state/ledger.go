package state

import (
	"context"
	"database/sql"
	"time"

	"github.com/feedforge/feedforge/internal/core"
)

// AppendCredit appends one usage record. Entries are immutable after
// this point.
func (s *Store) AppendCredit(ctx context.Context, entry core.CreditEntry) error {
	if err := entry.Validate(); err != nil {
		return core.ErrPersistence("append credit", err)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_usage (run_id, category, amount, created_at)
		VALUES (?, ?, ?, ?)
	`, string(entry.RunID), string(entry.Category), entry.Amount, entry.CreatedAt)
	if err != nil {
		return core.ErrPersistence("append credit", err)
	}
	return nil
}

// ListCredits returns entries created at or after since.
func (s *Store) ListCredits(ctx context.Context, since time.Time) ([]core.CreditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, category, amount, created_at
		FROM credit_usage WHERE created_at >= ? ORDER BY created_at ASC
	`, since)
	if err != nil {
		return nil, core.ErrPersistence("list credits", err)
	}
	defer func() { _ = rows.Close() }()
	return collectCredits(rows)
}

// ListRunCredits returns all entries for one run.
func (s *Store) ListRunCredits(ctx context.Context, runID core.RunID) ([]core.CreditEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, category, amount, created_at
		FROM credit_usage WHERE run_id = ? ORDER BY created_at ASC
	`, string(runID))
	if err != nil {
		return nil, core.ErrPersistence("list run credits", err)
	}
	defer func() { _ = rows.Close() }()
	return collectCredits(rows)
}

func collectCredits(rows *sql.Rows) ([]core.CreditEntry, error) {
	var entries []core.CreditEntry
	for rows.Next() {
		var (
			e        core.CreditEntry
			runID    string
			category string
		)
		if err := rows.Scan(&e.ID, &runID, &category, &e.Amount, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.RunID = core.RunID(runID)
		e.Category = core.CreditCategory(category)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
