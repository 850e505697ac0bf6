package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *mapCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *mapCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}

// flakyStore fails the first n work item searches.
type flakyStore struct {
	repository.Store
	failures atomic.Int32
}

func (s *flakyStore) Repos() repository.Repositories {
	repos := s.Store.Repos()
	repos.WorkItems = &flakyWorkItems{WorkItemRepository: repos.WorkItems, store: s}
	return repos
}

type flakyWorkItems struct {
	repository.WorkItemRepository
	store *flakyStore
}

func (r *flakyWorkItems) Find(ctx context.Context, filter repository.WorkItemFilter) ([]domain.WorkItem, error) {
	if r.store.failures.Add(-1) >= 0 {
		return nil, errors.New("connection reset by peer")
	}
	return r.WorkItemRepository.Find(ctx, filter)
}

func TestListViolationsAcrossKinds(t *testing.T) {
	f := newFixture(t)
	request := func(w *domain.WorkItem) { w.Kind, w.Status = domain.WorkItemKindRequest, domain.StatusAssigned }
	f.item("r-critical", request, withSLA(t0, time.Hour))
	f.item("t-high", withSLA(t0, 10*time.Hour))
	f.item("t-medium", withSLA(t0, 30*time.Hour))
	f.item("r-fine", request, withSLA(t0, 100*time.Hour))
	f.item("t-no-sla")

	metrics := observability.NewMetrics()
	svc := NewReportService(ReportDependencies{Store: f.store, Metrics: metrics, Now: f.clock.Now})
	f.clock.Advance(34 * time.Hour)

	violations, err := svc.ListViolations(context.Background(), ReportFilter{})
	require.NoError(t, err)
	require.Len(t, violations, 3)
	assert.Equal(t, "r-critical", violations[0].WorkItemID)
	assert.Equal(t, domain.SeverityCritical, violations[0].Severity)
	assert.Equal(t, domain.WorkItemKindRequest, violations[0].Kind)
	assert.Equal(t, "t-high", violations[1].WorkItemID)
	assert.Equal(t, domain.SeverityHigh, violations[1].Severity)
	assert.Equal(t, "t-medium", violations[2].WorkItemID)
	assert.Equal(t, domain.SeverityMedium, violations[2].Severity)

	series, err := testutil.GatherAndCount(metrics.Registry, "sla_violations")
	require.NoError(t, err)
	assert.Equal(t, 3, series)

	urgent := []domain.Priority{domain.PriorityUrgent}
	filtered, err := svc.ListViolations(context.Background(), ReportFilter{Priorities: urgent})
	require.NoError(t, err)
	assert.Empty(t, filtered)
	assert.NotNil(t, filtered)
}

func TestListAtRisk(t *testing.T) {
	f := newFixture(t)
	f.item("risky", withSLA(t0, 10*time.Hour))
	f.item("riskier", withSLA(t0, 9*time.Hour+30*time.Minute))
	f.item("comfortable", withSLA(t0, 20*time.Hour))
	f.item("overdue", withSLA(t0, 5*time.Hour))

	svc := NewReportService(ReportDependencies{Store: f.store, Now: f.clock.Now})
	f.clock.Advance(8*time.Hour + 30*time.Minute)

	atRisk, err := svc.ListAtRisk(context.Background(), ReportFilter{})
	require.NoError(t, err)
	require.Len(t, atRisk, 2)
	assert.Equal(t, "riskier", atRisk[0].WorkItemID)
	assert.InDelta(t, 1.0, atRisk[0].HoursRemaining, 1e-9)
	assert.Equal(t, "risky", atRisk[1].WorkItemID)
	assert.InDelta(t, 15.0, atRisk[1].PercentRemaining, 1e-9)
}

func TestReportFilterValidation(t *testing.T) {
	svc := NewReportService(ReportDependencies{Store: newFixture(t).store})
	from := t0
	to := t0.Add(-time.Hour)

	_, err := svc.ListViolations(context.Background(), ReportFilter{From: &from, To: &to})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	_, err = svc.ListAtRisk(context.Background(), ReportFilter{Priorities: []domain.Priority{"SOMEDAY"}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestReportSnapshotCache(t *testing.T) {
	f := newFixture(t)
	f.item("late", withSLA(t0, time.Hour))
	metrics := observability.NewMetrics()
	svc := NewReportService(ReportDependencies{
		Store:    f.store,
		Cache:    &mapCache{data: map[string][]byte{}},
		CacheTTL: time.Minute,
		Metrics:  metrics,
		Now:      f.clock.Now,
	})
	ctx := context.Background()
	f.clock.Advance(3 * time.Hour)

	first, err := svc.ListViolations(ctx, ReportFilter{})
	require.NoError(t, err)
	require.Len(t, first, 1)

	f.item("also-late", withSLA(t0, time.Hour))
	cached, err := svc.ListViolations(ctx, ReportFilter{})
	require.NoError(t, err)
	assert.Len(t, cached, 1, "served from the snapshot")

	series, err := testutil.GatherAndCount(metrics.Registry, "sla_snapshot_cache_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, series, "one miss and one hit")
}

func TestReportsRetryTransientStoreFailure(t *testing.T) {
	f := newFixture(t)
	f.item("late", withSLA(t0, time.Hour))
	f.clock.Advance(3 * time.Hour)

	flaky := &flakyStore{Store: f.store}
	flaky.failures.Store(1)
	svc := NewReportService(ReportDependencies{Store: flaky, Now: f.clock.Now})

	violations, err := svc.ListViolations(context.Background(), ReportFilter{})
	require.NoError(t, err)
	assert.Len(t, violations, 1)

	flaky.failures.Store(4)
	_, err = svc.ListViolations(context.Background(), ReportFilter{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeExternal), "one retry only")
}
