package core

import (
	"fmt"
	"strings"
	"time"
)

// ScheduledJob fires the content pipeline for a persona on a cadence.
// The scheduler is the sole mutator of NextRunAt.
type ScheduledJob struct {
	ID        string
	PersonaID string
	Cadence   string
	NextRunAt time.Time
}

// Due reports whether the job should fire at the given instant.
func (j *ScheduledJob) Due(now time.Time) bool {
	return !now.Before(j.NextRunAt)
}

// Cadence grammar:
//
//	daily@HH:MM    fire once per day at HH:MM UTC
//	every:<dur>    fire on a fixed interval, e.g. every:6h
//
// NextFire computes the next fire time strictly after now. An invalid
// cadence returns an error; callers reschedule 24h out so a bad job
// cannot wedge the tick loop.
func NextFire(cadence string, now time.Time) (time.Time, error) {
	now = now.UTC()
	switch {
	case strings.HasPrefix(cadence, "daily@"):
		hhmm := strings.TrimPrefix(cadence, "daily@")
		t, err := time.Parse("15:04", hhmm)
		if err != nil {
			return time.Time{}, &DomainError{
				Category: ErrCatValidation,
				Code:     CodeInvalidCadence,
				Message:  fmt.Sprintf("invalid daily cadence %q: want daily@HH:MM", cadence),
			}
		}
		next := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		return next, nil

	case strings.HasPrefix(cadence, "every:"):
		d, err := time.ParseDuration(strings.TrimPrefix(cadence, "every:"))
		if err != nil || d < time.Minute {
			return time.Time{}, &DomainError{
				Category: ErrCatValidation,
				Code:     CodeInvalidCadence,
				Message:  fmt.Sprintf("invalid interval cadence %q: want every:<duration>, minimum 1m", cadence),
			}
		}
		return now.Add(d), nil

	default:
		return time.Time{}, &DomainError{
			Category: ErrCatValidation,
			Code:     CodeInvalidCadence,
			Message:  fmt.Sprintf("unrecognized cadence %q", cadence),
		}
	}
}

// FireOutcome describes what happened when a due job fired. Skips are
// normal operation, never errors.
type FireOutcome string

const (
	FireStarted          FireOutcome = "started"
	FireSkippedRunning   FireOutcome = "skipped_already_running"
	FireSkippedDisabled  FireOutcome = "skipped_autonomy_disabled"
	FireSkippedNoPersona FireOutcome = "skipped_no_persona"
	FireFailed           FireOutcome = "failed"
)
