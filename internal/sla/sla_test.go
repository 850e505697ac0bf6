package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/domain"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func TestClassify(t *testing.T) {
	cases := []struct {
		delay float64
		want  domain.Severity
	}{
		{-1, domain.SeverityNone},
		{0, domain.SeverityNone},
		{0.5, domain.SeverityMedium},
		{8.0, domain.SeverityMedium},
		{8.01, domain.SeverityHigh},
		{24.0, domain.SeverityHigh},
		{24.01, domain.SeverityCritical},
		{200, domain.SeverityCritical},
	}
	for _, tt := range cases {
		assert.Equal(t, tt.want, Classify(tt.delay), "delay %v", tt.delay)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	var f domain.SLAFields
	started, err := Start(&f, 8*time.Hour, t0)
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, t0.Add(8*time.Hour), *f.Deadline)

	started, err = Start(&f, time.Hour, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, t0.Add(8*time.Hour), *f.Deadline)

	_, err = Start(&domain.SLAFields{}, 0, t0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestPauseResumeCompensatesDeadline(t *testing.T) {
	var f domain.SLAFields
	_, err := Start(&f, 10*time.Hour, t0)
	require.NoError(t, err)

	pauseAt := t0.Add(2 * time.Hour)
	require.NoError(t, Pause(&f, "waiting on customer", pauseAt))
	before, _ := Remaining(f, pauseAt)

	// frozen while paused
	during, _ := Remaining(f, pauseAt.Add(30*time.Minute))
	assert.Equal(t, before, during)

	resumeAt := pauseAt.Add(3 * time.Hour)
	paused, err := Resume(&f, resumeAt)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, paused)
	assert.Equal(t, t0.Add(13*time.Hour), *f.Deadline)
	assert.EqualValues(t, 3*3600, f.TotalPausedSeconds)
	assert.Nil(t, f.PausedAt)
	assert.Empty(t, f.PauseReason)

	after, _ := Remaining(f, resumeAt)
	assert.Equal(t, before, after)
	assert.Equal(t, 2*time.Hour, Elapsed(f, resumeAt))
}

func TestSubSecondPausesKeepWindowIntact(t *testing.T) {
	var f domain.SLAFields
	_, err := Start(&f, 10*time.Hour, t0)
	require.NoError(t, err)

	now := t0
	for i := 0; i < 10; i++ {
		now = now.Add(time.Minute)
		require.NoError(t, Pause(&f, "waiting on customer", now))
		now = now.Add(1900 * time.Millisecond)
		paused, err := Resume(&f, now)
		require.NoError(t, err)
		assert.Equal(t, time.Second, paused)
	}

	assert.EqualValues(t, 10, f.TotalPausedSeconds)
	assert.Equal(t, t0.Add(10*time.Hour+10*time.Second), *f.Deadline)
	remaining, ok := Remaining(f, now)
	require.True(t, ok)
	assert.Equal(t, 10*time.Hour, remaining+Elapsed(f, now))
}

func TestPauseResumeStateErrors(t *testing.T) {
	var f domain.SLAFields
	err := Pause(&f, "x", t0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeState))

	_, err = Start(&f, time.Hour, t0)
	require.NoError(t, err)

	_, err = Resume(&f, t0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeState))

	require.NoError(t, Pause(&f, "first", t0.Add(time.Minute)))
	err = Pause(&f, "second", t0.Add(2*time.Minute))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeState))
	assert.Equal(t, "first", f.PauseReason)
	assert.Equal(t, t0.Add(time.Minute), *f.PausedAt)
}

func TestSnapshot(t *testing.T) {
	st := Snapshot(domain.SLAFields{}, t0)
	assert.False(t, st.Started)
	assert.False(t, st.Breached)

	f := domain.SLAFields{StartedAt: ptr(t0), Deadline: ptr(t0.Add(time.Hour))}
	st = Snapshot(f, t0.Add(90*time.Minute))
	assert.True(t, st.Started)
	assert.True(t, st.Breached)
	assert.Equal(t, -30*time.Minute, st.Remaining)
}

func item(id string, deadline time.Time, mods ...func(*domain.WorkItem)) domain.WorkItem {
	it := domain.WorkItem{
		ID:          id,
		Kind:        domain.WorkItemKindRequest,
		Title:       "item " + id,
		Priority:    domain.PriorityHigh,
		Status:      domain.StatusInProgress,
		CreatedByID: "creator",
		CreatedAt:   deadline.Add(-48 * time.Hour),
		SLA: domain.SLAFields{
			StartedAt: ptr(deadline.Add(-10 * time.Hour)),
			Deadline:  ptr(deadline),
		},
	}
	for _, m := range mods {
		m(&it)
	}
	return it
}

func TestDetectViolationsOrdering(t *testing.T) {
	now := t0.Add(100 * time.Hour)
	items := []domain.WorkItem{
		item("b-medium", now.Add(-2*time.Hour)),
		item("a-critical", now.Add(-30*time.Hour)),
		item("c-high", now.Add(-10*time.Hour)),
		item("d-medium", now.Add(-5*time.Hour)),
		item("e-critical", now.Add(-30*time.Hour)),
		item("f-ontime", now.Add(time.Hour)),
		item("g-nosla", now, func(w *domain.WorkItem) { w.SLA = domain.SLAFields{} }),
	}

	got := DetectViolations(items, Filter{}, now)
	ids := make([]string, len(got))
	for i, v := range got {
		ids[i] = v.WorkItemID
	}
	assert.Equal(t, []string{"a-critical", "e-critical", "c-high", "d-medium", "b-medium"}, ids)
	assert.Equal(t, domain.SeverityCritical, got[0].Severity)
	assert.InDelta(t, 30, got[0].DelayHours, 1e-9)
	assert.Equal(t, "creator", got[0].AssigneeOrCreator)
}

func TestDetectViolationsReferenceTime(t *testing.T) {
	now := t0.Add(100 * time.Hour)
	deadline := now.Add(-20 * time.Hour)

	completedEarly := item("done-on-time", deadline, func(w *domain.WorkItem) {
		w.Status = domain.StatusCompleted
		w.CompletedAt = ptr(deadline.Add(-time.Minute))
	})
	completedLate := item("done-late", deadline, func(w *domain.WorkItem) {
		w.Status = domain.StatusDone
		w.CompletedAt = ptr(deadline.Add(2 * time.Hour))
	})
	pausedBefore := item("paused", deadline, func(w *domain.WorkItem) {
		w.SLA.PausedAt = ptr(deadline.Add(-time.Hour))
	})

	got := DetectViolations([]domain.WorkItem{completedEarly, completedLate, pausedBefore}, Filter{}, now)
	require.Len(t, got, 1)
	assert.Equal(t, "done-late", got[0].WorkItemID)
	assert.InDelta(t, 2, got[0].DelayHours, 1e-9)
	assert.Equal(t, domain.SeverityMedium, got[0].Severity)
}

func TestDetectViolationsFilter(t *testing.T) {
	now := t0.Add(100 * time.Hour)
	team := "team-a"
	items := []domain.WorkItem{
		item("in-team", now.Add(-time.Hour), func(w *domain.WorkItem) { w.TeamID = &team }),
		item("other-team", now.Add(-time.Hour)),
		item("low", now.Add(-time.Hour), func(w *domain.WorkItem) {
			w.TeamID = &team
			w.Priority = domain.PriorityLow
		}),
	}

	got := DetectViolations(items, Filter{TeamID: &team, Priorities: []domain.Priority{domain.PriorityHigh}}, now)
	require.Len(t, got, 1)
	assert.Equal(t, "in-team", got[0].WorkItemID)

	window := Window{From: now}
	assert.Empty(t, DetectViolations(items, Filter{Window: window}, now))
}

func TestDetectAtRisk(t *testing.T) {
	now := t0.Add(100 * time.Hour)
	items := []domain.WorkItem{
		// 1h of 10h left: 10%
		item("ten-percent", now.Add(time.Hour)),
		// 30m of 10h left: 5%
		item("five-percent", now.Add(30*time.Minute)),
		// 5h of 10h left: 50%
		item("comfortable", now.Add(5*time.Hour)),
		// exactly 20% is not at risk
		item("twenty-percent", now.Add(2*time.Hour)),
		item("overdue", now.Add(-time.Minute)),
		item("closed", now.Add(time.Hour), func(w *domain.WorkItem) { w.Status = domain.StatusCompleted }),
		item("zero-window", now.Add(time.Hour), func(w *domain.WorkItem) { w.SLA.StartedAt = w.SLA.Deadline }),
	}

	got := DetectAtRisk(items, Filter{}, now)
	require.Len(t, got, 2)
	assert.Equal(t, "five-percent", got[0].WorkItemID)
	assert.InDelta(t, 5, got[0].PercentRemaining, 1e-9)
	assert.InDelta(t, 0.5, got[0].HoursRemaining, 1e-9)
	assert.Equal(t, "ten-percent", got[1].WorkItemID)
}

func TestDetectAtRiskUsesFrozenClock(t *testing.T) {
	now := t0.Add(100 * time.Hour)
	paused := item("paused", now.Add(-time.Hour), func(w *domain.WorkItem) {
		// paused with 1h of a 10h window left, long before now
		w.SLA.PausedAt = ptr(now.Add(-2 * time.Hour))
	})

	got := DetectAtRisk([]domain.WorkItem{paused}, Filter{}, now)
	require.Len(t, got, 1)
	assert.InDelta(t, 1, got[0].HoursRemaining, 1e-9)
}
