package service

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

func newAssignmentService(f *fixture) *AssignmentService {
	return NewAssignmentService(AssignmentDependencies{
		Store:      f.store,
		Dispatcher: f.dispatcher(),
		Now:        f.clock.Now,
	})
}

func TestSelectLeastUtilized(t *testing.T) {
	load := func(id string, wip, active int) domain.WorkerLoad {
		l, err := domain.NewWorkerLoad(id, wip, active)
		require.NoError(t, err)
		return l
	}

	tests := []struct {
		name   string
		loads  []domain.WorkerLoad
		want   string
		wantOK bool
	}{
		{"lowest utilization", []domain.WorkerLoad{load("w1", 5, 4), load("w2", 5, 2), load("w3", 5, 5)}, "w2", true},
		{"tie on utilization prefers fewer active", []domain.WorkerLoad{load("w1", 10, 2), load("w2", 5, 1)}, "w2", true},
		{"full tie prefers smallest id", []domain.WorkerLoad{load("w9", 4, 1), load("w3", 4, 1)}, "w3", true},
		{"zero limit is skipped", []domain.WorkerLoad{load("w1", 0, 0), load("w2", 2, 2)}, "w2", true},
		{"no assignable worker", []domain.WorkerLoad{load("w1", 0, 0)}, "", false},
		{"empty", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SelectLeastUtilized(tt.loads)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got.WorkerID)
		})
	}
}

func TestAutoAssignPicksLowestUtilization(t *testing.T) {
	f := newFixture(t)
	f.team("t1")
	f.worker("w1", "t1", 5)
	f.worker("w2", "t1", 5)
	f.worker("w3", "t1", 5)
	f.busy("w1", "t1", 4)
	f.busy("w2", "t1", 2)
	f.busy("w3", "t1", 5)
	f.item("new", inTeam("t1"))

	svc := newAssignmentService(f)
	result, err := svc.AutoAssign(context.Background(), lead, "new")
	require.NoError(t, err)

	assert.Equal(t, "w2", *result.WorkItem.AssigneeID)
	assert.Equal(t, 3, result.Load.ActiveCount)
	assert.Equal(t, 3, f.activeCount("w2"))

	entries, err := f.store.Repos().Audit.ListByEntity(context.Background(), result.WorkItem.Ref(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	payload := entries[0].Payload.(domain.AssignedPayload)
	assert.Equal(t, domain.AssignmentAuto, payload.Mode)
	require.NotNil(t, payload.Utilization)
	assert.InDelta(t, 0.4, *payload.Utilization, 1e-9)

	require.Len(t, f.events.ofType(events.EventWorkItemAssigned), 1)
}

func TestAutoAssignFailures(t *testing.T) {
	f := newFixture(t)
	f.team("t1")
	f.worker("w0", "t1", 0)
	f.item("unassignable", inTeam("t1"))
	f.item("taken", inTeam("t1"), assignedTo("w0"))
	f.item("closed", inTeam("t1"), ofKind(domain.WorkItemKindTask, domain.StatusDone))
	f.item("teamless")

	svc := newAssignmentService(f)
	ctx := context.Background()

	_, err := svc.AutoAssign(ctx, lead, "unassignable")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = svc.AutoAssign(ctx, lead, "taken")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	_, err = svc.AutoAssign(ctx, lead, "closed")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeState))

	_, err = svc.AutoAssign(ctx, lead, "teamless")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = svc.AutoAssign(ctx, lead, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = svc.AutoAssign(ctx, agent, "unassignable")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))
}

func TestConcurrentAutoAssignHasOneWinner(t *testing.T) {
	f := newFixture(t)
	f.team("t1")
	f.worker("w1", "t1", 5)
	f.worker("w2", "t1", 5)
	f.item("contested", inTeam("t1"))

	svc := newAssignmentService(f)
	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AutoAssign(context.Background(), lead, "contested")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.HasCode(err, apperrors.CodeConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
	assert.Equal(t, 1, f.activeCount("w1")+f.activeCount("w2"))
}

func TestManualAssignWarningAndOverride(t *testing.T) {
	f := newFixture(t)
	f.team("t1")
	f.worker("w1", "t1", 25)
	f.busy("w1", "t1", 23)
	f.item("target", inTeam("t1"))

	svc := newAssignmentService(f)
	ctx := context.Background()

	outcome, err := svc.ManualAssign(ctx, lead, ManualAssignInput{WorkItemID: "target", WorkerID: "w1"})
	require.NoError(t, err)
	require.NotNil(t, outcome.Warning)
	assert.Nil(t, outcome.Result)
	assert.True(t, outcome.Warning.Warning)
	assert.True(t, outcome.Warning.CanOverride)
	assert.NotEmpty(t, outcome.Warning.Error)
	assert.InDelta(t, 0.92, outcome.Warning.Load.Utilization, 1e-9)
	assert.Equal(t, 23, f.activeCount("w1"), "warning must not write")

	outcome, err = svc.ManualAssign(ctx, lead, ManualAssignInput{WorkItemID: "target", WorkerID: "w1", Override: true})
	require.NoError(t, err)
	require.NotNil(t, outcome.Result)
	assert.Nil(t, outcome.Warning)
	assert.True(t, outcome.Result.Override)
	assert.Equal(t, 24, f.activeCount("w1"))

	entries, err := f.store.Repos().Audit.ListByEntity(ctx, domain.EntityRef{Kind: domain.WorkItemKindTask, ID: "target"}, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	payload := entries[0].Payload.(domain.AssignedPayload)
	assert.True(t, payload.Override)
	assert.Equal(t, lead.ID, payload.AuthorizedBy)
	assert.Len(t, f.events.ofType(events.EventWIPOverride), 1)
}

func TestManualAssignBelowThreshold(t *testing.T) {
	f := newFixture(t)
	f.team("t1")
	f.worker("w1", "t1", 5)
	f.worker("w2", "t1", 5)
	f.item("target", inTeam("t1"), assignedTo("w1"))

	svc := newAssignmentService(f)
	ctx := context.Background()

	outcome, err := svc.ManualAssign(ctx, lead, ManualAssignInput{WorkItemID: "target", WorkerID: "w2"})
	require.NoError(t, err)
	require.NotNil(t, outcome.Result)
	assert.False(t, outcome.Result.Override)
	assert.Equal(t, "w2", *outcome.Result.WorkItem.AssigneeID)
	assert.Equal(t, 0, f.activeCount("w1"))
	assert.Equal(t, 1, f.activeCount("w2"))

	again, err := svc.ManualAssign(ctx, lead, ManualAssignInput{WorkItemID: "target", WorkerID: "w2"})
	require.NoError(t, err)
	assert.Equal(t, 1, again.Result.Load.ActiveCount, "reassigning to the same worker is a no-op")
}

func TestManualAssignRejections(t *testing.T) {
	f := newFixture(t)
	f.team("t1")
	f.worker("w1", "t1", 5)
	f.worker("w0", "t1", 0)
	f.item("target", inTeam("t1"))

	svc := newAssignmentService(f)
	ctx := context.Background()
	system := domain.SystemActor

	_, err := svc.ManualAssign(ctx, agent, ManualAssignInput{WorkItemID: "target", WorkerID: "w1"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = svc.ManualAssign(ctx, system, ManualAssignInput{WorkItemID: "target", WorkerID: "w1", Override: true})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "system sweeps may not override")

	_, err = svc.ManualAssign(ctx, lead, ManualAssignInput{WorkItemID: "target", WorkerID: "nobody"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	stale := "w9"
	_, err = svc.ManualAssign(ctx, lead, ManualAssignInput{WorkItemID: "target", WorkerID: "w1", ExpectedAssigneeID: &stale})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	outcome, err := svc.ManualAssign(ctx, system, ManualAssignInput{WorkItemID: "target", WorkerID: "w0"})
	require.NoError(t, err)
	require.NotNil(t, outcome.Warning)
	assert.False(t, outcome.Warning.CanOverride)
	assert.True(t, math.IsInf(outcome.Warning.Load.Utilization, 1))
}
