package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/events"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/sla"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// SLAService owns every write to the SLA fields of work items.
type SLAService struct {
	store      repository.Store
	targets    map[domain.Priority]time.Duration
	dispatcher events.Dispatcher
	logger     *zap.Logger
	now        Clock
}

// SLADependencies bundles collaborators of SLAService.
type SLADependencies struct {
	Store      repository.Store
	Targets    map[domain.Priority]time.Duration
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Now        Clock
}

// SLAStatusView pairs a work item with its clock snapshot.
type SLAStatusView struct {
	Item   *domain.WorkItem
	Status sla.Status
}

// NewSLAService creates the service.
func NewSLAService(deps SLADependencies) *SLAService {
	return &SLAService{
		store:      deps.Store,
		targets:    deps.Targets,
		dispatcher: deps.Dispatcher,
		logger:     loggerOrNop(deps.Logger),
		now:        clockOrDefault(deps.Now),
	}
}

// StartClock starts the SLA clock of a work item. A nil target selects the
// configured target for the item's priority. Starting a running clock is a
// no-op and reports started=false.
func (s *SLAService) StartClock(ctx context.Context, actor domain.Actor, workItemID string, target *time.Duration) (*domain.WorkItem, bool, error) {
	if !actor.CanControlSLA() {
		return nil, false, apperrors.NewForbidden("role may not control sla clocks")
	}
	if strings.TrimSpace(workItemID) == "" {
		return nil, false, apperrors.NewValidationError("work item id is required", nil)
	}
	ctx, span := tracer.Start(ctx, "SLAService.StartClock")
	defer span.End()
	span.SetAttributes(attribute.String("work_item.id", workItemID))

	var (
		item    *domain.WorkItem
		started bool
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		item, err = repos.WorkItems.GetForUpdate(ctx, workItemID)
		if err != nil {
			return lookupError(err, "work item", map[string]any{"work_item_id": workItemID})
		}
		if !item.IsActive() {
			return apperrors.NewStateError("work item is closed", map[string]any{"status": item.Status})
		}

		duration, err := s.resolveTarget(item.Priority, target)
		if err != nil {
			return err
		}
		now := s.now()
		if started, err = sla.Start(item.SLAState(), duration, now); err != nil || !started {
			return err
		}
		if err := repos.WorkItems.UpdateSLA(ctx, item.ID, item.SLA); err != nil {
			return storeError(err)
		}
		return storeError(repos.Audit.Append(ctx, newAuditEntry(item.Ref(), actor.ID, domain.SLAStartedPayload{
			StartedAt: *item.SLA.StartedAt,
			Deadline:  *item.SLA.Deadline,
			TargetSec: int64(duration / time.Second),
		}, now)))
	})
	if err != nil {
		return nil, false, err
	}
	if started {
		s.logger.Info("sla clock started", zap.String("work_item_id", item.ID), zap.Timep("deadline", item.SLA.Deadline))
	}
	return item, started, nil
}

func (s *SLAService) resolveTarget(priority domain.Priority, target *time.Duration) (time.Duration, error) {
	if target != nil {
		if *target <= 0 {
			return 0, apperrors.NewValidationError("sla target must be positive", nil)
		}
		return *target, nil
	}
	d, ok := s.targets[priority]
	if !ok || d <= 0 {
		return 0, apperrors.NewValidationError("no sla target configured for priority", map[string]any{"priority": priority})
	}
	return d, nil
}

// PauseClock stops the clock of a work item.
func (s *SLAService) PauseClock(ctx context.Context, actor domain.Actor, workItemID, reason string) (*domain.WorkItem, error) {
	if !actor.CanControlSLA() {
		return nil, apperrors.NewForbidden("role may not control sla clocks")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, apperrors.NewValidationError("pause reason is required", nil)
	}

	var (
		item *domain.WorkItem
		ev   events.Event
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		item, err = repos.WorkItems.GetForUpdate(ctx, workItemID)
		if err != nil {
			return lookupError(err, "work item", map[string]any{"work_item_id": workItemID})
		}
		now := s.now()
		if err := sla.Pause(item.SLAState(), reason, now); err != nil {
			return err
		}
		if err := repos.WorkItems.UpdateSLA(ctx, item.ID, item.SLA); err != nil {
			return storeError(err)
		}
		ev = newEvent(events.EventSLAPaused, item.Ref(), actor.ID, item.AssigneeOrCreator(), now,
			events.SLAChangedPayload{Reason: reason, Deadline: *item.SLA.Deadline})
		return storeError(repos.Audit.Append(ctx, newAuditEntry(item.Ref(), actor.ID, domain.SLAPausedPayload{
			PausedAt: now,
			Reason:   reason,
		}, now)))
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.dispatcher, ev)
	return item, nil
}

// ResumeClock restarts a paused clock and extends the deadline by the pause.
func (s *SLAService) ResumeClock(ctx context.Context, actor domain.Actor, workItemID string) (*domain.WorkItem, error) {
	if !actor.CanControlSLA() {
		return nil, apperrors.NewForbidden("role may not control sla clocks")
	}

	var (
		item *domain.WorkItem
		ev   events.Event
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		item, err = repos.WorkItems.GetForUpdate(ctx, workItemID)
		if err != nil {
			return lookupError(err, "work item", map[string]any{"work_item_id": workItemID})
		}
		now := s.now()
		paused, err := sla.Resume(item.SLAState(), now)
		if err != nil {
			return err
		}
		if err := repos.WorkItems.UpdateSLA(ctx, item.ID, item.SLA); err != nil {
			return storeError(err)
		}
		ev = newEvent(events.EventSLAResumed, item.Ref(), actor.ID, item.AssigneeOrCreator(), now,
			events.SLAChangedPayload{Deadline: *item.SLA.Deadline})
		return storeError(repos.Audit.Append(ctx, newAuditEntry(item.Ref(), actor.ID, domain.SLAResumedPayload{
			PausedSeconds:      int64(paused / time.Second),
			TotalPausedSeconds: item.SLA.TotalPausedSeconds,
			Deadline:           *item.SLA.Deadline,
		}, now)))
	})
	if err != nil {
		return nil, err
	}
	publish(ctx, s.dispatcher, ev)
	return item, nil
}

// Remaining returns the SLA time left for a work item, frozen while paused.
func (s *SLAService) Remaining(ctx context.Context, workItemID string) (time.Duration, error) {
	view, err := s.Status(ctx, workItemID)
	if err != nil {
		return 0, err
	}
	if !view.Status.Started {
		return 0, apperrors.NewStateError("sla clock not started", map[string]any{"work_item_id": workItemID})
	}
	return view.Status.Remaining, nil
}

// Status returns a snapshot of the clock of a work item.
func (s *SLAService) Status(ctx context.Context, workItemID string) (*SLAStatusView, error) {
	item, err := retryRead(ctx, s.logger, "work_items.get", func(ctx context.Context) (*domain.WorkItem, error) {
		item, err := s.store.Repos().WorkItems.GetByID(ctx, workItemID)
		if err != nil {
			return nil, lookupError(err, "work item", map[string]any{"work_item_id": workItemID})
		}
		return item, nil
	})
	if err != nil {
		return nil, err
	}
	return &SLAStatusView{Item: item, Status: sla.Snapshot(item.SLA, s.now())}, nil
}

// ClassifySeverity exposes the severity policy for a positive delay.
func (s *SLAService) ClassifySeverity(delayHours float64) (domain.Severity, error) {
	if delayHours <= 0 {
		return domain.SeverityNone, apperrors.NewValidationError("delay must be positive", map[string]any{"delay_hours": delayHours})
	}
	return sla.Classify(delayHours), nil
}
