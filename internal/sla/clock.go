// Package sla holds the pure SLA arithmetic: the pausable deadline clock,
// the severity classifier and the violation and at-risk detectors.
//
// All functions take the current instant explicitly so results are
// reproducible; nothing here performs I/O.
package sla

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// Status is a point-in-time view of a work item's SLA clock.
type Status struct {
	Started            bool
	StartedAt          *time.Time
	Deadline           *time.Time
	Remaining          time.Duration
	Elapsed            time.Duration
	Paused             bool
	PausedAt           *time.Time
	PauseReason        string
	TotalPausedSeconds int64
	Breached           bool
}

// Start sets the deadline target after now. It reports false and leaves the
// fields untouched when the clock is already running.
func Start(f *domain.SLAFields, target time.Duration, now time.Time) (bool, error) {
	if target <= 0 {
		return false, apperrors.NewValidationError("sla target must be positive", map[string]any{"target_seconds": int64(target / time.Second)})
	}
	if f.Started() {
		return false, nil
	}
	startedAt := now
	deadline := now.Add(target)
	f.StartedAt = &startedAt
	f.Deadline = &deadline
	f.PausedAt = nil
	f.PauseReason = ""
	f.TotalPausedSeconds = 0
	return true, nil
}

// Pause stops the clock at now.
func Pause(f *domain.SLAFields, reason string, now time.Time) error {
	if !f.Started() {
		return apperrors.NewStateError("sla clock not started", nil)
	}
	if f.Paused() {
		return apperrors.NewStateError("sla clock already paused", map[string]any{"paused_at": *f.PausedAt})
	}
	pausedAt := now
	f.PausedAt = &pausedAt
	f.PauseReason = reason
	return nil
}

// Resume restarts the clock and pushes the deadline out by the pause length,
// which it returns.
func Resume(f *domain.SLAFields, now time.Time) (time.Duration, error) {
	if !f.Paused() {
		return 0, apperrors.NewStateError("sla clock not paused", nil)
	}
	elapsed := now.Sub(*f.PausedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	// pause time is accounted in whole seconds; the deadline shift must match
	elapsed = elapsed.Truncate(time.Second)
	deadline := f.Deadline.Add(elapsed)
	f.Deadline = &deadline
	f.TotalPausedSeconds += int64(elapsed / time.Second)
	f.PausedAt = nil
	f.PauseReason = ""
	return elapsed, nil
}

// Remaining returns the time left until the deadline. While paused the value
// is frozen at the pause instant. ok is false when no deadline is set.
func Remaining(f domain.SLAFields, now time.Time) (time.Duration, bool) {
	if f.Deadline == nil {
		return 0, false
	}
	return f.Deadline.Sub(clockTime(f, now)), true
}

// Elapsed returns SLA time consumed, pauses excluded.
func Elapsed(f domain.SLAFields, now time.Time) time.Duration {
	if f.StartedAt == nil {
		return 0
	}
	elapsed := clockTime(f, now).Sub(*f.StartedAt) - time.Duration(f.TotalPausedSeconds)*time.Second
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Snapshot builds the Status of f at now.
func Snapshot(f domain.SLAFields, now time.Time) Status {
	remaining, ok := Remaining(f, now)
	return Status{
		Started:            f.Started(),
		StartedAt:          f.StartedAt,
		Deadline:           f.Deadline,
		Remaining:          remaining,
		Elapsed:            Elapsed(f, now),
		Paused:             f.Paused(),
		PausedAt:           f.PausedAt,
		PauseReason:        f.PauseReason,
		TotalPausedSeconds: f.TotalPausedSeconds,
		Breached:           ok && remaining < 0,
	}
}

// clockTime is the instant the clock reads: the pause instant while paused.
func clockTime(f domain.SLAFields, now time.Time) time.Time {
	if f.PausedAt != nil {
		return *f.PausedAt
	}
	return now
}
