package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

func newEscalationService(f *fixture, breachRecipient string) *EscalationService {
	d := f.dispatcher()
	return NewEscalationService(EscalationDependencies{
		Store:           f.store,
		Assigner:        NewAssignmentService(AssignmentDependencies{Store: f.store, Dispatcher: d, Now: f.clock.Now}),
		Dispatcher:      d,
		Now:             f.clock.Now,
		BreachRecipient: breachRecipient,
	})
}

func TestTriggerBreachDeduplicatesOutstanding(t *testing.T) {
	f := newFixture(t)
	f.item("late", withSLA(t0, time.Hour), assignedTo("w1"))
	svc := newEscalationService(f, "")
	ctx := context.Background()

	f.clock.Advance(10 * time.Hour)
	log, created, err := svc.Trigger(ctx, domain.SystemActor, TriggerInput{RuleID: domain.RuleSLABreach, WorkItemID: "late"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, domain.EscalationPending, log.Status)
	assert.Equal(t, "creator-1", log.Recipient)
	assert.Contains(t, log.Reason, "HIGH")

	again, created, err := svc.Trigger(ctx, domain.SystemActor, TriggerInput{RuleID: domain.RuleSLABreach, WorkItemID: "late"})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, log.ID, again.ID)

	_, err = svc.Resolve(ctx, lead, log.ID, nil)
	require.NoError(t, err)

	fresh, created, err := svc.Trigger(ctx, domain.SystemActor, TriggerInput{RuleID: domain.RuleSLABreach, WorkItemID: "late"})
	require.NoError(t, err)
	assert.True(t, created, "a resolved log does not block a new one")
	assert.NotEqual(t, log.ID, fresh.ID)

	assert.Len(t, f.events.ofType(events.EventEscalationTriggered), 2)
}

func TestAtRiskRoutesToAssigneeThenConfiguredRecipient(t *testing.T) {
	f := newFixture(t)
	f.item("owned", withSLA(t0, 12*time.Hour), assignedTo("w1"))
	f.item("orphan", withSLA(t0, 12*time.Hour))
	svc := NewEscalationService(EscalationDependencies{
		Store:           f.store,
		Dispatcher:      f.dispatcher(),
		Now:             f.clock.Now,
		BreachRecipient: "duty-manager",
		AtRiskRecipient: "duty",
	})
	ctx := context.Background()

	f.clock.Advance(10*time.Hour + 30*time.Minute)
	log, _, err := svc.Trigger(ctx, domain.SystemActor, TriggerInput{RuleID: domain.RuleSLAAtRisk, WorkItemID: "owned"})
	require.NoError(t, err)
	assert.Equal(t, "w1", log.Recipient)

	log, _, err = svc.Trigger(ctx, domain.SystemActor, TriggerInput{RuleID: domain.RuleSLAAtRisk, WorkItemID: "orphan"})
	require.NoError(t, err)
	assert.Equal(t, "duty", log.Recipient)
}

func TestTriggerRejectsInapplicableRules(t *testing.T) {
	f := newFixture(t)
	f.item("slightly-late", withSLA(t0, time.Hour))
	f.item("fresh", withSLA(t0, 100*time.Hour))
	svc := newEscalationService(f, "duty-manager")
	ctx := context.Background()

	f.clock.Advance(3 * time.Hour)
	_, _, err := svc.Trigger(ctx, domain.SystemActor, TriggerInput{RuleID: domain.RuleSLABreach, WorkItemID: "slightly-late"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeState), "MEDIUM is below the breach rule")

	_, _, err = svc.Trigger(ctx, domain.SystemActor, TriggerInput{RuleID: domain.RuleSLAAtRisk, WorkItemID: "fresh"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeState))

	_, _, err = svc.Trigger(ctx, domain.SystemActor, TriggerInput{RuleID: "BOGUS", WorkItemID: "fresh"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, _, err = svc.Trigger(ctx, lead, TriggerInput{RuleID: domain.RuleManual, WorkItemID: "fresh"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation), "manual escalations need a recipient")

	_, _, err = svc.Trigger(ctx, agent, TriggerInput{RuleID: domain.RuleManual, WorkItemID: "fresh", Recipient: "boss"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	log, created, err := svc.Trigger(ctx, lead, TriggerInput{RuleID: domain.RuleManual, WorkItemID: "fresh", Recipient: "boss", Reason: "customer called"})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "boss", log.Recipient)
	assert.Equal(t, "customer called", log.Reason)
}

func TestAcknowledgeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.item("late", withSLA(t0, time.Hour), assignedTo("w1"))
	svc := newEscalationService(f, "")
	ctx := context.Background()

	f.clock.Advance(30 * time.Hour)
	log, _, err := svc.Trigger(ctx, domain.SystemActor, TriggerInput{RuleID: domain.RuleSLABreach, WorkItemID: "late"})
	require.NoError(t, err)

	_, err = svc.Acknowledge(ctx, agent, log.ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden), "agents act only on their own escalations")

	recipient := domain.Actor{ID: "creator-1", Role: domain.RoleAgent}
	acked, err := svc.Acknowledge(ctx, recipient, log.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationAcknowledged, acked.Status)
	firstAck := *acked.AcknowledgedAt

	f.clock.Advance(time.Minute)
	acked, err = svc.Acknowledge(ctx, lead, log.ID)
	require.NoError(t, err)
	assert.Equal(t, firstAck, *acked.AcknowledgedAt)
	assert.Len(t, f.events.ofType(events.EventEscalationAcknowledged), 1)

	_, err = svc.Acknowledge(ctx, lead, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestResolveTwiceKeepsFirstResolution(t *testing.T) {
	f := newFixture(t)
	f.item("late", withSLA(t0, time.Hour))
	svc := newEscalationService(f, "duty-manager")
	ctx := context.Background()

	f.clock.Advance(30 * time.Hour)
	log, _, err := svc.Trigger(ctx, domain.SystemActor, TriggerInput{RuleID: domain.RuleSLABreach, WorkItemID: "late"})
	require.NoError(t, err)
	assert.Equal(t, "duty-manager", log.Recipient)

	first := "reassigned to on-call"
	resolved, err := svc.Resolve(ctx, lead, log.ID, &first)
	require.NoError(t, err)
	resolvedAt := *resolved.ResolvedAt

	f.clock.Advance(time.Hour)
	second := "second opinion"
	again, err := svc.Resolve(ctx, lead, log.ID, &second)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationResolved, again.Status)
	assert.Equal(t, resolvedAt, *again.ResolvedAt)
	assert.Equal(t, first, *again.ResolutionNotes)

	acked, err := svc.Acknowledge(ctx, lead, log.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationResolved, acked.Status, "resolved is terminal")
	assert.Nil(t, acked.AcknowledgedAt)

	entries, err := f.store.Repos().Audit.ListByEntity(ctx, log.Entity, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.AuditEscalationResolved, entries[1].Action())
}

func TestReassignDelegatesToManualAssign(t *testing.T) {
	f := newFixture(t)
	f.team("t1")
	f.worker("w1", "t1", 5)
	f.worker("w2", "t1", 5)
	f.item("late", inTeam("t1"), withSLA(t0, time.Hour), assignedTo("w1"))
	svc := newEscalationService(f, "")
	ctx := context.Background()

	f.clock.Advance(30 * time.Hour)
	log, _, err := svc.Trigger(ctx, domain.SystemActor, TriggerInput{RuleID: domain.RuleSLABreach, WorkItemID: "late"})
	require.NoError(t, err)

	outcome, err := svc.Reassign(ctx, lead, ReassignInput{EscalationID: log.ID, WorkerID: "w2"})
	require.NoError(t, err)
	require.NotNil(t, outcome.Result)
	assert.Equal(t, "w2", *outcome.Result.WorkItem.AssigneeID)

	current, err := svc.Get(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationPending, current.Status, "reassignment leaves the escalation open")

	_, err = svc.Reassign(ctx, lead, ReassignInput{EscalationID: log.ID, WorkItemID: "other", WorkerID: "w2"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestSweepRaisesOncePerItem(t *testing.T) {
	f := newFixture(t)
	f.item("very-late", withSLA(t0, time.Hour))
	f.item("medium", withSLA(t0, 8*time.Hour))
	f.item("at-risk", withSLA(t0, 12*time.Hour))
	f.item("healthy", withSLA(t0, 100*time.Hour))
	f.item("closed", withSLA(t0, time.Hour), ofKind(domain.WorkItemKindTask, domain.StatusDone))
	svc := newEscalationService(f, "")
	ctx := context.Background()

	f.clock.Advance(10*time.Hour + 30*time.Minute)
	result, err := svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Breaches: 1, AtRisk: 1}, result, "2.5h late is only MEDIUM")

	f.clock.Advance(20 * time.Hour)
	result, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Breaches)

	result, err = svc.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Breaches, "outstanding escalations are not duplicated")

	status := domain.EscalationPending
	logs, err := svc.List(ctx, repository.EscalationFilter{Status: &status})
	require.NoError(t, err)
	assert.Len(t, logs, 4)
}

func TestConcurrentAcknowledgeAndResolve(t *testing.T) {
	f := newFixture(t)
	f.item("late", withSLA(t0, time.Hour))
	svc := newEscalationService(f, "duty-manager")
	ctx := context.Background()

	f.clock.Advance(30 * time.Hour)
	log, _, err := svc.Trigger(ctx, domain.SystemActor, TriggerInput{RuleID: domain.RuleSLABreach, WorkItemID: "late"})
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = svc.Acknowledge(ctx, lead, log.ID)
			} else {
				_, err = svc.Resolve(ctx, lead, log.ID, nil)
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	current, err := svc.Get(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscalationResolved, current.Status)
	require.NotNil(t, current.ResolvedAt)

	entries, err := f.store.Repos().Audit.ListByEntity(ctx, log.Entity, 50)
	require.NoError(t, err)
	counts := make(map[domain.AuditAction]int)
	for _, e := range entries {
		counts[e.Action()]++
	}
	assert.Equal(t, 1, counts[domain.AuditEscalationTriggered])
	assert.Equal(t, 1, counts[domain.AuditEscalationResolved])
	assert.LessOrEqual(t, counts[domain.AuditEscalationAcknowledged], 1)
	assert.LessOrEqual(t, len(f.events.ofType(events.EventEscalationAcknowledged)), 1)
	assert.Len(t, f.events.ofType(events.EventEscalationResolved), 1)
}
