package state

import (
	"context"
	"time"

	"github.com/feedforge/feedforge/internal/core"
)

// ListJobs returns all scheduled jobs ordered by next fire time.
func (s *Store) ListJobs(ctx context.Context) ([]*core.ScheduledJob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, persona_id, cadence, next_run_at
		FROM scheduled_jobs ORDER BY next_run_at ASC
	`)
	if err != nil {
		return nil, core.ErrPersistence("list jobs", err)
	}
	defer func() { _ = rows.Close() }()

	var jobs []*core.ScheduledJob
	for rows.Next() {
		var j core.ScheduledJob
		if err := rows.Scan(&j.ID, &j.PersonaID, &j.Cadence, &j.NextRunAt); err != nil {
			return nil, core.ErrPersistence("scan job", err)
		}
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// UpsertJob creates or replaces a scheduled job.
func (s *Store) UpsertJob(ctx context.Context, job *core.ScheduledJob) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_jobs (id, persona_id, cadence, next_run_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			persona_id = excluded.persona_id,
			cadence = excluded.cadence,
			next_run_at = excluded.next_run_at
	`, job.ID, job.PersonaID, job.Cadence, job.NextRunAt)
	if err != nil {
		return core.ErrPersistence("upsert job", err)
	}
	return nil
}

// RescheduleJob advances a job's next fire time. The scheduler is the
// sole caller.
func (s *Store) RescheduleJob(ctx context.Context, id string, nextRunAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE scheduled_jobs SET next_run_at = ? WHERE id = ?", nextRunAt, id)
	if err != nil {
		return core.ErrPersistence("reschedule job", err)
	}
	return nil
}
