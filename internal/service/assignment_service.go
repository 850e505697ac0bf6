package service

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// AssignmentService picks and validates assignees under WIP limits. It is the
// only writer of work item assignees.
type AssignmentService struct {
	store      repository.Store
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        Clock
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Now        Clock
}

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrDefault(deps.Now),
	}
}

// AssignResult reports a completed assignment.
type AssignResult struct {
	WorkItem *domain.WorkItem
	Load     domain.WorkerLoad
	Override bool
}

// WIPWarning is returned instead of an error when a manual assignment needs
// an explicit override.
type WIPWarning struct {
	Warning     bool
	CanOverride bool
	Error       string
	WorkerID    string
	Load        domain.WorkerLoad
}

// ManualAssignOutcome holds either a completed assignment or a warning.
type ManualAssignOutcome struct {
	Result  *AssignResult
	Warning *WIPWarning
}

// ManualAssignInput describes a hand-picked assignment.
type ManualAssignInput struct {
	WorkItemID string
	WorkerID   string
	Override   bool
	// ExpectedAssigneeID, when set, must match the current assignee. An empty
	// string expects the item to be unassigned.
	ExpectedAssigneeID *string
}

// AutoAssign gives an unassigned work item to the least utilized active
// worker of its team.
func (s *AssignmentService) AutoAssign(ctx context.Context, actor domain.Actor, workItemID string) (*AssignResult, error) {
	if !actor.CanAssign() {
		return nil, apperrors.NewForbidden("role may not assign work")
	}
	ctx, span := tracer.Start(ctx, "AssignmentService.AutoAssign")
	defer span.End()
	span.SetAttributes(attribute.String("work_item.id", workItemID))

	var (
		result *AssignResult
		evs    []events.Event
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		item, err := repos.WorkItems.GetForUpdate(ctx, workItemID)
		if err != nil {
			return lookupError(err, "work item", map[string]any{"work_item_id": workItemID})
		}
		if !item.IsActive() {
			return apperrors.NewStateError("work item is closed", map[string]any{"status": item.Status})
		}
		if item.AssigneeID != nil {
			return apperrors.NewConflict("work item already assigned", map[string]any{"assignee_id": *item.AssigneeID})
		}
		if item.TeamID == nil {
			return apperrors.NewValidationError("work item has no team to draw candidates from", map[string]any{"work_item_id": item.ID})
		}

		active := true
		candidates, err := repos.Workers.List(ctx, repository.WorkerFilter{TeamID: item.TeamID, Active: &active, ForUpdate: true})
		if err != nil {
			return storeError(err)
		}
		loads, err := s.loads(ctx, repos, candidates)
		if err != nil {
			return err
		}
		chosen, ok := SelectLeastUtilized(loads)
		if !ok {
			return apperrors.NewDomainError(apperrors.CodeNotFound, "no candidate available", http.StatusNotFound, map[string]any{
				"team_id":    *item.TeamID,
				"candidates": len(candidates),
			})
		}

		swapped, err := repos.WorkItems.CompareAndSetAssignee(ctx, item.ID, nil, chosen.WorkerID)
		if err != nil {
			return storeError(err)
		}
		if !swapped {
			return apperrors.NewConflict("assignment race lost", map[string]any{"work_item_id": item.ID})
		}

		now := s.now()
		item.AssigneeID = ptr(chosen.WorkerID)
		after := loadAfterAssign(chosen)
		result = &AssignResult{WorkItem: item, Load: after}
		evs = append(evs, assignmentEvent(item, actor, domain.AssignmentAuto, nil, after, false, now))
		return storeError(repos.Audit.Append(ctx, newAuditEntry(item.Ref(), actor.ID, domain.AssignedPayload{
			Mode:         domain.AssignmentAuto,
			To:           chosen.WorkerID,
			Utilization:  finite(chosen.Utilization),
			AuthorizedBy: actor.ID,
		}, now)))
	})
	if err != nil {
		s.metrics.RecordAssignment(string(domain.AssignmentAuto), outcomeOf(err))
		return nil, err
	}

	s.metrics.RecordAssignment(string(domain.AssignmentAuto), "assigned")
	s.logger.Info("work item auto-assigned",
		zap.String("work_item_id", result.WorkItem.ID),
		zap.String("assignee_id", result.Load.WorkerID),
		zap.Float64("utilization", result.Load.Utilization),
	)
	publish(ctx, s.dispatcher, evs...)
	return result, nil
}

// ManualAssign assigns a hand-picked worker. At or above the WIP warning
// threshold, and without override, a warning is returned and nothing is
// written.
func (s *AssignmentService) ManualAssign(ctx context.Context, actor domain.Actor, in ManualAssignInput) (*ManualAssignOutcome, error) {
	if !actor.CanAssign() {
		return nil, apperrors.NewForbidden("role may not assign work")
	}
	if in.Override && !actor.CanOverrideWIP() {
		return nil, apperrors.NewForbidden("role may not override wip limits")
	}
	if strings.TrimSpace(in.WorkItemID) == "" || strings.TrimSpace(in.WorkerID) == "" {
		return nil, apperrors.NewValidationError("work item id and worker id are required", nil)
	}
	ctx, span := tracer.Start(ctx, "AssignmentService.ManualAssign")
	defer span.End()
	span.SetAttributes(
		attribute.String("work_item.id", in.WorkItemID),
		attribute.String("worker.id", in.WorkerID),
		attribute.Bool("assignment.override", in.Override),
	)

	var (
		outcome ManualAssignOutcome
		evs     []events.Event
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		item, err := repos.WorkItems.GetForUpdate(ctx, in.WorkItemID)
		if err != nil {
			return lookupError(err, "work item", map[string]any{"work_item_id": in.WorkItemID})
		}
		if !item.IsActive() {
			return apperrors.NewStateError("work item is closed", map[string]any{"status": item.Status})
		}
		if in.ExpectedAssigneeID != nil {
			expected := in.ExpectedAssigneeID
			if *expected == "" {
				expected = nil
			}
			if !sameAssignee(expected, item.AssigneeID) {
				return apperrors.NewConflict("work item assignee changed", map[string]any{"assignee_id": item.AssigneeID})
			}
		}

		worker, err := repos.Workers.GetForUpdate(ctx, in.WorkerID)
		if err != nil {
			return lookupError(err, "worker", map[string]any{"worker_id": in.WorkerID})
		}
		if !worker.Active {
			return apperrors.NewConflict("worker is inactive", map[string]any{"worker_id": worker.ID})
		}
		loads, err := s.loads(ctx, repos, []domain.Worker{*worker})
		if err != nil {
			return err
		}
		load := loads[0]

		if sameAssignee(item.AssigneeID, &worker.ID) {
			outcome.Result = &AssignResult{WorkItem: item, Load: load}
			return nil
		}
		if load.OverWarning() && !in.Override {
			outcome.Warning = &WIPWarning{
				Warning:     true,
				CanOverride: actor.CanOverrideWIP(),
				Error:       wipWarningMessage(load),
				WorkerID:    worker.ID,
				Load:        load,
			}
			return nil
		}

		previous := item.AssigneeID
		swapped, err := repos.WorkItems.CompareAndSetAssignee(ctx, item.ID, previous, worker.ID)
		if err != nil {
			return storeError(err)
		}
		if !swapped {
			return apperrors.NewConflict("assignment race lost", map[string]any{"work_item_id": item.ID})
		}

		now := s.now()
		override := in.Override && load.OverWarning()
		item.AssigneeID = ptr(worker.ID)
		after := loadAfterAssign(load)
		outcome.Result = &AssignResult{WorkItem: item, Load: after, Override: override}

		evs = append(evs, assignmentEvent(item, actor, domain.AssignmentManual, previous, after, override, now))
		if override {
			ev := assignmentEvent(item, actor, domain.AssignmentManual, previous, after, true, now)
			ev.Type = events.EventWIPOverride
			evs = append(evs, ev)
		}
		return storeError(repos.Audit.Append(ctx, newAuditEntry(item.Ref(), actor.ID, domain.AssignedPayload{
			Mode:         domain.AssignmentManual,
			From:         previous,
			To:           worker.ID,
			Utilization:  finite(load.Utilization),
			Override:     override,
			AuthorizedBy: actor.ID,
		}, now)))
	})
	if err != nil {
		s.metrics.RecordAssignment(string(domain.AssignmentManual), outcomeOf(err))
		return nil, err
	}

	switch {
	case outcome.Warning != nil:
		s.metrics.RecordAssignment(string(domain.AssignmentManual), "warning")
		s.logger.Info("manual assignment needs override",
			zap.String("work_item_id", in.WorkItemID),
			zap.String("worker_id", in.WorkerID),
			zap.Float64("utilization", outcome.Warning.Load.Utilization),
		)
	case outcome.Result.Override:
		s.metrics.RecordAssignment(string(domain.AssignmentManual), "override")
		s.logger.Warn("wip limit overridden",
			zap.String("work_item_id", in.WorkItemID),
			zap.String("worker_id", in.WorkerID),
			zap.String("authorized_by", actor.ID),
		)
	default:
		s.metrics.RecordAssignment(string(domain.AssignmentManual), "assigned")
	}
	publish(ctx, s.dispatcher, evs...)
	return &outcome, nil
}

// loads derives the current load of each worker in order.
func (s *AssignmentService) loads(ctx context.Context, repos repository.Repositories, workers []domain.Worker) ([]domain.WorkerLoad, error) {
	ids := make([]string, len(workers))
	for i, w := range workers {
		ids[i] = w.ID
	}
	counts, err := repos.WorkItems.CountActiveByAssignee(ctx, ids)
	if err != nil {
		return nil, storeError(err)
	}
	loads := make([]domain.WorkerLoad, 0, len(workers))
	for _, w := range workers {
		load, err := domain.NewWorkerLoad(w.ID, w.WIPLimit, counts[w.ID])
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		loads = append(loads, load)
	}
	return loads, nil
}

// SelectLeastUtilized picks the assignable load with the lowest utilization,
// then the fewest active items, then the smallest worker id.
func SelectLeastUtilized(loads []domain.WorkerLoad) (domain.WorkerLoad, bool) {
	candidates := make([]domain.WorkerLoad, 0, len(loads))
	for _, l := range loads {
		if l.Assignable() {
			candidates = append(candidates, l)
		}
	}
	if len(candidates) == 0 {
		return domain.WorkerLoad{}, false
	}
	return slices.MinFunc(candidates, func(a, b domain.WorkerLoad) int {
		if c := cmp.Compare(a.Utilization, b.Utilization); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ActiveCount, b.ActiveCount); c != 0 {
			return c
		}
		return cmp.Compare(a.WorkerID, b.WorkerID)
	}), true
}

func loadAfterAssign(l domain.WorkerLoad) domain.WorkerLoad {
	after, err := domain.NewWorkerLoad(l.WorkerID, l.WIPLimit, l.ActiveCount+1)
	if err != nil {
		return l
	}
	return after
}

func wipWarningMessage(l domain.WorkerLoad) string {
	if math.IsInf(l.Utilization, 1) {
		return fmt.Sprintf("worker %s has no wip capacity", l.WorkerID)
	}
	return fmt.Sprintf("worker %s is at %.0f%% of wip limit (%d/%d)", l.WorkerID, l.Utilization*100, l.ActiveCount, l.WIPLimit)
}

func assignmentEvent(item *domain.WorkItem, actor domain.Actor, mode domain.AssignmentMode, from *string, load domain.WorkerLoad, override bool, at time.Time) events.Event {
	return newEvent(events.EventWorkItemAssigned, item.Ref(), actor.ID, load.WorkerID, at, events.AssignmentPayload{
		Mode:         mode,
		From:         from,
		To:           load.WorkerID,
		Utilization:  finite(load.Utilization),
		Override:     override,
		AuthorizedBy: actor.ID,
	})
}

// finite drops non-finite utilization values, which JSON cannot carry.
func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

func outcomeOf(err error) string {
	switch {
	case apperrors.HasCode(err, apperrors.CodeConflict):
		return "conflict"
	case apperrors.HasCode(err, apperrors.CodeNotFound):
		return "not_found"
	case apperrors.HasCode(err, apperrors.CodeForbidden):
		return "forbidden"
	default:
		return "error"
	}
}
