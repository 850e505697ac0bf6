package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/repository/memory"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

var (
	lead  = domain.Actor{ID: "lead-1", Role: domain.RoleTeamLead}
	agent = domain.Actor{ID: "agent-1", Role: domain.RoleAgent}
	admin = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	t      *testing.T
	store  *memory.Store
	clock  *fakeClock
	events *eventRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := newFakeClock()
	return &fixture{
		t:      t,
		store:  memory.NewStore(clock.Now),
		clock:  clock,
		events: newEventRecorder(),
	}
}

func (f *fixture) team(id string) {
	f.t.Helper()
	require.NoError(f.t, f.store.Repos().Teams.Create(context.Background(), &domain.Team{ID: id, Name: id, IsActive: true}))
}

func (f *fixture) worker(id, teamID string, wipLimit int) {
	f.t.Helper()
	require.NoError(f.t, f.store.Repos().Workers.Create(context.Background(), &domain.Worker{
		ID:        id,
		Name:      id,
		Email:     id + "@example.com",
		Role:      domain.RoleAgent,
		TeamID:    &teamID,
		WIPLimit:  wipLimit,
		Active:    true,
		CreatedAt: t0,
	}))
}

type itemOpt func(*domain.WorkItem)

func assignedTo(workerID string) itemOpt {
	return func(w *domain.WorkItem) { w.AssigneeID = &workerID }
}

func inTeam(teamID string) itemOpt {
	return func(w *domain.WorkItem) { w.TeamID = &teamID }
}

func ofKind(kind domain.WorkItemKind, status domain.WorkStatus) itemOpt {
	return func(w *domain.WorkItem) { w.Kind, w.Status = kind, status }
}

func withPriority(p domain.Priority) itemOpt {
	return func(w *domain.WorkItem) { w.Priority = p }
}

// withSLA starts the clock at start with the given window.
func withSLA(start time.Time, window time.Duration) itemOpt {
	return func(w *domain.WorkItem) {
		deadline := start.Add(window)
		w.SLA.StartedAt = &start
		w.SLA.Deadline = &deadline
	}
}

func (f *fixture) item(id string, opts ...itemOpt) *domain.WorkItem {
	f.t.Helper()
	item := &domain.WorkItem{
		ID:          id,
		Kind:        domain.WorkItemKindTask,
		Title:       "item " + id,
		Priority:    domain.PriorityMedium,
		Status:      domain.StatusTodo,
		CreatedByID: "creator-1",
		CreatedAt:   t0,
	}
	for _, opt := range opts {
		opt(item)
	}
	require.NoError(f.t, f.store.Repos().WorkItems.Create(context.Background(), item))
	return item
}

// busy gives workerID n active items in teamID.
func (f *fixture) busy(workerID, teamID string, n int) {
	f.t.Helper()
	for i := 0; i < n; i++ {
		f.item(workerID+"-load-"+string(rune('a'+i)), inTeam(teamID), assignedTo(workerID))
	}
}

func (f *fixture) activeCount(workerID string) int {
	f.t.Helper()
	counts, err := f.store.Repos().WorkItems.CountActiveByAssignee(context.Background(), []string{workerID})
	require.NoError(f.t, err)
	return counts[workerID]
}

func (f *fixture) dispatcher() events.Dispatcher {
	d := events.NewInMemoryDispatcher(nil)
	for _, et := range []events.EventType{
		events.EventSLAPaused,
		events.EventSLAResumed,
		events.EventEscalationTriggered,
		events.EventEscalationAcknowledged,
		events.EventEscalationResolved,
		events.EventWorkItemAssigned,
		events.EventWIPOverride,
	} {
		d.Subscribe(et, f.events.record)
	}
	return d
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func newEventRecorder() *eventRecorder { return &eventRecorder{} }

func (r *eventRecorder) record(_ context.Context, ev events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *eventRecorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}
