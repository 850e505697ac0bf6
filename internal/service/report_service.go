package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/sla-service/internal/cache"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/sla"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// ReportFilter selects the work items scanned by a report.
type ReportFilter struct {
	From       *time.Time
	To         *time.Time
	TeamID     *string
	Priorities []domain.Priority
}

func (f ReportFilter) validate() error {
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		return apperrors.NewValidationError("window end precedes start", map[string]any{"from": f.From, "to": f.To})
	}
	for _, p := range f.Priorities {
		if !p.IsValid() {
			return apperrors.NewValidationError("unknown priority", map[string]any{"priority": p})
		}
	}
	return nil
}

func (f ReportFilter) detectorFilter() sla.Filter {
	var w sla.Window
	if f.From != nil {
		w.From = *f.From
	}
	if f.To != nil {
		w.To = *f.To
	}
	return sla.Filter{Window: w, TeamID: f.TeamID, Priorities: f.Priorities}
}

// cacheKey is stable for equal filters regardless of priority order.
func (f ReportFilter) cacheKey(report string) string {
	parts := []string{report}
	if f.From != nil {
		parts = append(parts, "from="+f.From.UTC().Format(time.RFC3339))
	}
	if f.To != nil {
		parts = append(parts, "to="+f.To.UTC().Format(time.RFC3339))
	}
	if f.TeamID != nil {
		parts = append(parts, "team="+*f.TeamID)
	}
	if len(f.Priorities) > 0 {
		ps := make([]string, len(f.Priorities))
		for i, p := range f.Priorities {
			ps[i] = string(p)
		}
		slices.Sort(ps)
		parts = append(parts, "priorities="+strings.Join(ps, ","))
	}
	return strings.Join(parts, "|")
}

// ReportService produces violation and at-risk listings.
type ReportService struct {
	store    repository.Store
	cache    cache.SnapshotCache
	cacheTTL time.Duration
	metrics  *observability.Metrics
	logger   *zap.Logger
	now      Clock
}

// ReportDependencies bundles collaborators of ReportService.
type ReportDependencies struct {
	Store    repository.Store
	Cache    cache.SnapshotCache
	CacheTTL time.Duration
	Metrics  *observability.Metrics
	Logger   *zap.Logger
	Now      Clock
}

// NewReportService creates the service. A nil cache disables snapshots.
func NewReportService(deps ReportDependencies) *ReportService {
	c := deps.Cache
	if c == nil {
		c = cache.Noop{}
	}
	return &ReportService{
		store:    deps.Store,
		cache:    c,
		cacheTTL: deps.CacheTTL,
		metrics:  deps.Metrics,
		logger:   loggerOrNop(deps.Logger),
		now:      clockOrDefault(deps.Now),
	}
}

// ListViolations returns every breached request and task matching filter.
func (s *ReportService) ListViolations(ctx context.Context, filter ReportFilter) ([]domain.Violation, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "ReportService.ListViolations")
	defer span.End()

	key := filter.cacheKey("violations")
	var cached []domain.Violation
	if s.lookup(ctx, "violations", key, &cached) {
		return cached, nil
	}

	items, err := s.load(ctx, filter, false)
	if err != nil {
		return nil, err
	}
	violations := sla.DetectViolations(items, filter.detectorFilter(), s.now())
	span.SetAttributes(attribute.Int("violations.count", len(violations)))

	bySeverity := make(map[string]int)
	for _, v := range violations {
		bySeverity[string(v.Severity)]++
	}
	s.metrics.SetViolations(bySeverity)
	s.remember(ctx, key, violations)
	return violations, nil
}

// ListAtRisk returns active items whose remaining window is below the
// at-risk threshold.
func (s *ReportService) ListAtRisk(ctx context.Context, filter ReportFilter) ([]domain.AtRiskItem, error) {
	if err := filter.validate(); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "ReportService.ListAtRisk")
	defer span.End()

	key := filter.cacheKey("at_risk")
	var cached []domain.AtRiskItem
	if s.lookup(ctx, "at_risk", key, &cached) {
		return cached, nil
	}

	items, err := s.load(ctx, filter, true)
	if err != nil {
		return nil, err
	}
	atRisk := sla.DetectAtRisk(items, filter.detectorFilter(), s.now())
	span.SetAttributes(attribute.Int("at_risk.count", len(atRisk)))
	s.metrics.SetAtRisk(len(atRisk))
	s.remember(ctx, key, atRisk)
	return atRisk, nil
}

// load fetches requests and tasks concurrently.
func (s *ReportService) load(ctx context.Context, filter ReportFilter, activeOnly bool) ([]domain.WorkItem, error) {
	kinds := []domain.WorkItemKind{domain.WorkItemKindRequest, domain.WorkItemKindTask}
	results := make([][]domain.WorkItem, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			q := repository.WorkItemFilter{
				Kind:        &kind,
				TeamID:      filter.TeamID,
				Priorities:  filter.Priorities,
				ActiveOnly:  activeOnly,
				WithSLA:     true,
				CreatedFrom: filter.From,
				CreatedTo:   filter.To,
			}
			items, err := retryRead(gctx, s.logger, fmt.Sprintf("work_items.find.%s", strings.ToLower(string(kind))),
				func(ctx context.Context) ([]domain.WorkItem, error) {
					items, err := s.store.Repos().WorkItems.Find(ctx, q)
					return items, storeError(err)
				})
			if err != nil {
				return err
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return slices.Concat(results...), nil
}

func (s *ReportService) lookup(ctx context.Context, report, key string, dest any) bool {
	if s.cacheTTL <= 0 {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dest)
	if err != nil {
		s.logger.Warn("snapshot cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	s.metrics.RecordSnapshotLookup(report, hit)
	return hit
}

func (s *ReportService) remember(ctx context.Context, key string, value any) {
	if s.cacheTTL <= 0 {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		s.logger.Warn("snapshot cache write failed", zap.String("key", key), zap.Error(err))
	}
}
