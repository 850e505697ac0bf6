package service

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/domain"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

func TestSetWIPLimit(t *testing.T) {
	f := newFixture(t)
	f.team("t1")
	f.worker("w1", "t1", 5)
	svc := NewWorkerService(f.store, nil)
	ctx := context.Background()
	manager := domain.Actor{ID: "mgr-1", Role: domain.RoleManager}

	_, err := svc.SetWIPLimit(ctx, lead, "w1", 3)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = svc.SetWIPLimit(ctx, manager, "w1", -1)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = svc.SetWIPLimit(ctx, manager, "missing", 3)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	worker, err := svc.SetWIPLimit(ctx, manager, "w1", 0)
	require.NoError(t, err)
	assert.Zero(t, worker.WIPLimit)

	stored, err := f.store.Repos().Workers.GetByID(ctx, "w1")
	require.NoError(t, err)
	assert.Zero(t, stored.WIPLimit)
}

func TestListLoads(t *testing.T) {
	f := newFixture(t)
	f.team("t1")
	f.worker("w1", "t1", 4)
	f.worker("w2", "t1", 0)
	f.busy("w1", "t1", 3)
	svc := NewWorkerService(f.store, nil)

	loads, err := svc.ListLoads(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, loads, 2)

	byID := map[string]domain.WorkerLoad{}
	for _, l := range loads {
		byID[l.WorkerID] = l
	}
	assert.Equal(t, 3, byID["w1"].ActiveCount)
	assert.InDelta(t, 0.75, byID["w1"].Utilization, 1e-9)
	assert.True(t, math.IsInf(byID["w2"].Utilization, 1))
	assert.False(t, byID["w2"].Assignable())

	_, err = svc.ListLoads(context.Background(), "nope")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestAuditListValidation(t *testing.T) {
	svc := NewAuditService(newFixture(t).store, nil)

	_, err := svc.List(context.Background(), domain.EntityRef{Kind: "TICKET", ID: "x"}, 10)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	entries, err := svc.List(context.Background(), domain.EntityRef{Kind: domain.WorkItemKindTask, ID: "x"}, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
