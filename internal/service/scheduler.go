package service

import (
	"context"
	"sync"
	"time"

	"github.com/feedforge/feedforge/internal/core"
	"github.com/feedforge/feedforge/internal/logging"
)

// WorkflowTrigger is the admission surface the scheduler fires into.
type WorkflowTrigger interface {
	Trigger(ctx context.Context, req TriggerRequest) (*TriggerResult, error)
}

// FireResult records what happened to one due job on a tick.
type FireResult struct {
	JobID   string
	Outcome core.FireOutcome
	RunID   core.RunID
}

// SchedulerStatus is the read model for the scheduler surface.
type SchedulerStatus struct {
	Initialized bool
	JobsCount   int
	LastTickAt  *time.Time
	Jobs        []*core.ScheduledJob
}

// Scheduler fires scheduled jobs into the orchestrator. It never
// bypasses admission: a tick that loses to a manual trigger simply
// records a skip. Jobs are always rescheduled after firing, whatever
// the outcome, so one bad tick cannot wedge the loop.
type Scheduler struct {
	jobs     core.JobStore
	trigger  WorkflowTrigger
	interval time.Duration
	logger   *logging.Logger
	now      func() time.Time

	mu          sync.Mutex
	initialized bool
	lastTick    *time.Time
}

// NewScheduler creates a scheduler.
func NewScheduler(jobs core.JobStore, trigger WorkflowTrigger, interval time.Duration, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Scheduler{
		jobs:     jobs,
		trigger:  trigger,
		interval: interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run ticks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	s.logger.Info("scheduler started", "tick_interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.logger.Warn("scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick fires every due job once and reschedules it.
func (s *Scheduler) Tick(ctx context.Context) ([]FireResult, error) {
	now := s.now()
	s.mu.Lock()
	s.lastTick = &now
	s.mu.Unlock()

	jobs, err := s.jobs.ListJobs(ctx)
	if err != nil {
		return nil, err
	}

	var results []FireResult
	for _, job := range jobs {
		if !job.Due(now) {
			continue
		}
		res := s.fire(ctx, job)
		results = append(results, res)
		s.reschedule(ctx, job, now)
	}
	return results, nil
}

// fire attempts admission for one due job. Losing admission is normal
// operation, mapped to a skip outcome rather than an error.
func (s *Scheduler) fire(ctx context.Context, job *core.ScheduledJob) FireResult {
	logger := s.logger.WithJob(job.ID)
	res := FireResult{JobID: job.ID}

	out, err := s.trigger.Trigger(ctx, TriggerRequest{PersonaID: job.PersonaID})
	switch {
	case err == nil:
		res.Outcome = core.FireStarted
		res.RunID = out.RunID
		logger.Info("job fired", "run_id", out.RunID, "persona", out.PersonaName)
	case core.IsCode(err, core.CodeAlreadyRunning):
		res.Outcome = core.FireSkippedRunning
		logger.Info("job skipped, run already in flight")
	case core.IsCode(err, core.CodeAutonomyDisabled):
		res.Outcome = core.FireSkippedDisabled
		logger.Info("job skipped, autonomy disabled")
	case core.IsCode(err, core.CodePersonaNotFound):
		res.Outcome = core.FireSkippedNoPersona
		logger.Warn("job skipped, persona not found", "persona", job.PersonaID)
	default:
		res.Outcome = core.FireFailed
		logger.Error("job fire failed", "error", err)
	}
	return res
}

// reschedule always advances NextRunAt. An unparsable cadence gets a
// 24h backstop so the job stops firing every tick without blocking the
// rest of the schedule.
func (s *Scheduler) reschedule(ctx context.Context, job *core.ScheduledJob, now time.Time) {
	next, err := core.NextFire(job.Cadence, now)
	if err != nil {
		s.logger.WithJob(job.ID).Warn("invalid cadence, deferring 24h", "cadence", job.Cadence, "error", err)
		next = now.Add(24 * time.Hour)
	}
	if err := s.jobs.RescheduleJob(ctx, job.ID, next); err != nil {
		s.logger.WithJob(job.ID).Error("rescheduling job failed", "error", err)
		return
	}
	job.NextRunAt = next
}

// Status reports scheduler state for the dashboard.
func (s *Scheduler) Status(ctx context.Context) (*SchedulerStatus, error) {
	jobs, err := s.jobs.ListJobs(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return &SchedulerStatus{
		Initialized: s.initialized,
		JobsCount:   len(jobs),
		LastTickAt:  s.lastTick,
		Jobs:        jobs,
	}, nil
}
