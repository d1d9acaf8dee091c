package service

import (
	"context"
	"fmt"
	"time"

	"github.com/feedforge/feedforge/internal/core"
	"github.com/feedforge/feedforge/internal/logging"
)

// Reaper clears runs whose process died without finalizing the row.
// A stuck RUNNING row holds the single-flight slot and blocks every
// future trigger, so reaping is what makes the engine self-healing.
type Reaper struct {
	runs      core.RunStore
	threshold time.Duration
	interval  time.Duration
	logger    *logging.Logger
	now       func() time.Time
}

// NewReaper creates a reaper. threshold is the liveness cutoff beyond
// which a RUNNING run is presumed dead; interval is the sweep cadence.
func NewReaper(runs core.RunStore, threshold, interval time.Duration, logger *logging.Logger) *Reaper {
	if logger == nil {
		logger = logging.NewNop()
	}
	if threshold <= 0 {
		threshold = 5 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		runs:      runs,
		threshold: threshold,
		interval:  interval,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps on the configured interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.logger.Warn("reaper sweep failed", "error", err)
			}
		}
	}
}

// ListStuck returns RUNNING runs older than the given age. A zero age
// uses the configured threshold.
func (r *Reaper) ListStuck(ctx context.Context, olderThan time.Duration) ([]*core.Run, error) {
	if olderThan <= 0 {
		olderThan = r.threshold
	}
	return r.runs.ListStuckRuns(ctx, r.now().Add(-olderThan))
}

// Sweep clears every stuck run and returns the cleared ids.
func (r *Reaper) Sweep(ctx context.Context) ([]core.RunID, error) {
	stuck, err := r.ListStuck(ctx, 0)
	if err != nil {
		return nil, err
	}
	var cleared []core.RunID
	for _, run := range stuck {
		if err := r.clear(ctx, run); err != nil {
			r.logger.Warn("clearing stuck run failed", "run_id", run.ID, "error", err)
			continue
		}
		cleared = append(cleared, run.ID)
	}
	return cleared, nil
}

// Clear resolves one run by id. Clearing an already-terminal run is a
// no-op so concurrent clears and racing natural completion stay safe.
func (r *Reaper) Clear(ctx context.Context, id core.RunID) error {
	run, err := r.runs.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run.Terminal() {
		return nil
	}
	return r.clear(ctx, run)
}

// clear marks a presumed-dead run as resolved. The run is closed as
// completed with the phase reset to idle and a diagnostic error
// recorded, releasing the single-flight slot.
func (r *Reaper) clear(ctx context.Context, run *core.Run) error {
	now := r.now()
	status := core.RunStatusCompleted
	phase := core.PhaseIdle
	diag := fmt.Sprintf("run stalled in phase %s and was cleared after %s",
		run.Phase, run.Age(now).Round(time.Second))

	err := r.runs.UpdateRun(ctx, run.ID, core.RunPatch{
		Status:      &status,
		Phase:       &phase,
		Error:       &diag,
		CompletedAt: &now,
	})
	if err != nil {
		return err
	}
	r.logger.Info("cleared stuck run", "run_id", run.ID, "age", run.Age(now).Round(time.Second))
	return nil
}
