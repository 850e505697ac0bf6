package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func seedItem(t *testing.T, s *Store, id string) {
	t.Helper()
	require.NoError(t, s.Repos().WorkItems.Create(context.Background(), &domain.WorkItem{
		ID:          id,
		Kind:        domain.WorkItemKindTask,
		Title:       id,
		Priority:    domain.PriorityMedium,
		Status:      domain.StatusTodo,
		CreatedByID: "creator",
		CreatedAt:   t0,
	}))
}

func TestWithTransactionRollsBack(t *testing.T) {
	ctx := context.Background()
	s := NewStore(func() time.Time { return t0 })
	seedItem(t, s, "i1")

	boom := errors.New("boom")
	err := s.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		ok, err := repos.WorkItems.CompareAndSetAssignee(ctx, "i1", nil, "w1")
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	item, err := s.Repos().WorkItems.GetByID(ctx, "i1")
	require.NoError(t, err)
	assert.Nil(t, item.AssigneeID)
}

func TestCompareAndSetAssignee(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	seedItem(t, s, "i1")
	repo := s.Repos().WorkItems

	ok, err := repo.CompareAndSetAssignee(ctx, "i1", nil, "w1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CompareAndSetAssignee(ctx, "i1", nil, "w2")
	require.NoError(t, err)
	assert.False(t, ok, "stale expectation must not overwrite")

	w1 := "w1"
	ok, err = repo.CompareAndSetAssignee(ctx, "i1", &w1, "w2")
	require.NoError(t, err)
	assert.True(t, ok)

	counts, err := repo.CountActiveByAssignee(ctx, []string{"w1", "w2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"w2": 1}, counts)
}

func TestUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	repos := s.Repos()

	require.NoError(t, repos.TimeLogs.Create(ctx, &domain.TimeLog{ID: "l1", UserID: "u1", IsRunning: true}))
	err := repos.TimeLogs.Create(ctx, &domain.TimeLog{ID: "l2", UserID: "u1", IsRunning: true})
	assert.ErrorIs(t, err, ErrUniqueViolation)

	ref := domain.EntityRef{Kind: domain.WorkItemKindTask, ID: "i1"}
	require.NoError(t, repos.Escalations.Create(ctx, &domain.EscalationLog{ID: "e1", RuleID: domain.RuleSLABreach, Status: domain.EscalationPending, Entity: ref}))
	err = repos.Escalations.Create(ctx, &domain.EscalationLog{ID: "e2", RuleID: domain.RuleSLABreach, Status: domain.EscalationPending, Entity: ref})
	assert.ErrorIs(t, err, ErrUniqueViolation)

	_, err = repos.Escalations.FindOutstanding(ctx, domain.RuleSLAAtRisk, ref)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
