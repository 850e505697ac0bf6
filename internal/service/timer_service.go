package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/observability"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// TimerService keeps at most one running timer per user and maintains the
// tracked time of work items.
type TimerService struct {
	store   repository.Store
	metrics *observability.Metrics
	logger  *zap.Logger
	now     Clock
}

// TimerDependencies bundles collaborators of TimerService.
type TimerDependencies struct {
	Store   repository.Store
	Metrics *observability.Metrics
	Logger  *zap.Logger
	Now     Clock
}

// NewTimerService creates the service.
func NewTimerService(deps TimerDependencies) *TimerService {
	return &TimerService{
		store:   deps.Store,
		metrics: deps.Metrics,
		logger:  loggerOrNop(deps.Logger),
		now:     clockOrDefault(deps.Now),
	}
}

// StartTimerInput starts a timer. UserID defaults to the actor.
type StartTimerInput struct {
	WorkItemID string
	UserID     string
}

// StartResult is the new running log and the logs parked to make room for it.
type StartResult struct {
	Log    *domain.TimeLog
	Parked []domain.TimeLog
}

// StopResult is the closed log and the recomputed tracked time of its item.
type StopResult struct {
	Log            *domain.TimeLog
	Duration       time.Duration
	TrackedSeconds int64
}

// ManualLogInput records effort after the fact.
type ManualLogInput struct {
	WorkItemID string
	UserID     string
	StartTime  time.Time
	EndTime    time.Time
}

// Start opens a running timer for the user, parking any other running timer
// of that user first.
func (s *TimerService) Start(ctx context.Context, actor domain.Actor, in StartTimerInput) (*StartResult, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		userID = actor.ID
	}
	if !actor.ActsFor(userID) {
		return nil, apperrors.NewForbidden("cannot start timers for another user")
	}

	var result StartResult
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		if err := repos.TimeLogs.LockUser(ctx, userID); err != nil {
			return storeError(err)
		}
		item, err := repos.WorkItems.GetByID(ctx, in.WorkItemID)
		if err != nil {
			return lookupError(err, "work item", map[string]any{"work_item_id": in.WorkItemID})
		}
		if !item.IsActive() {
			return apperrors.NewStateError("work item is closed", map[string]any{"status": item.Status})
		}

		now := s.now()
		parked, err := s.parkRunning(ctx, repos, userID, "", now)
		if err != nil {
			return err
		}
		log := &domain.TimeLog{
			ID:         uuid.NewString(),
			WorkItemID: item.ID,
			UserID:     userID,
			StartTime:  now,
			IsRunning:  true,
			CreatedAt:  now,
		}
		if err := repos.TimeLogs.Create(ctx, log); err != nil {
			return storeError(err)
		}
		result = StartResult{Log: log, Parked: parked}

		parkedIDs := make([]string, len(parked))
		for i, p := range parked {
			parkedIDs[i] = p.ID
		}
		return storeError(repos.Audit.Append(ctx, newAuditEntry(item.Ref(), actor.ID, domain.TimerStartedPayload{
			LogID:        log.ID,
			UserID:       userID,
			ParkedLogIDs: parkedIDs,
		}, now)))
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTimer("start")
	if len(result.Parked) > 0 {
		s.logger.Info("parked running timers", zap.String("user_id", userID), zap.Int("count", len(result.Parked)))
	}
	return &result, nil
}

// parkRunning pauses every running log of userID except keepID.
func (s *TimerService) parkRunning(ctx context.Context, repos repository.Repositories, userID, keepID string, now time.Time) ([]domain.TimeLog, error) {
	running, err := repos.TimeLogs.ListRunningByUser(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	parked := make([]domain.TimeLog, 0, len(running))
	for _, log := range running {
		if log.ID == keepID {
			continue
		}
		log.IsRunning = false
		log.IsPaused = true
		log.PausedAt = ptr(now)
		if err := repos.TimeLogs.Update(ctx, &log); err != nil {
			return nil, storeError(err)
		}
		parked = append(parked, log)
	}
	return parked, nil
}

// Stop closes a log and recomputes the tracked time of its work item.
// Stopping a closed log returns it unchanged.
func (s *TimerService) Stop(ctx context.Context, actor domain.Actor, logID string) (*StopResult, error) {
	var (
		result  StopResult
		stopped bool
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		log, err := s.lockLog(ctx, repos, actor, logID)
		if err != nil {
			return err
		}
		if log.Closed() {
			item, err := repos.WorkItems.GetByID(ctx, log.WorkItemID)
			if err != nil {
				return lookupError(err, "work item", map[string]any{"work_item_id": log.WorkItemID})
			}
			result = StopResult{Log: log, Duration: durationOf(log), TrackedSeconds: item.TrackedSeconds}
			return nil
		}

		now := s.now()
		seconds := int64(now.Sub(log.StartTime) / time.Second)
		if seconds < 0 {
			seconds = 0
		}
		log.EndTime = ptr(now)
		log.DurationSeconds = ptr(seconds)
		log.IsRunning = false
		log.IsPaused = false
		log.PausedAt = nil
		if err := repos.TimeLogs.Update(ctx, log); err != nil {
			return storeError(err)
		}
		tracked, err := s.recompute(ctx, repos, log.WorkItemID)
		if err != nil {
			return err
		}
		stopped = true
		result = StopResult{Log: log, Duration: time.Duration(seconds) * time.Second, TrackedSeconds: tracked}
		return s.audit(ctx, repos, actor, log.WorkItemID, domain.TimerStoppedPayload{
			LogID:           log.ID,
			DurationSeconds: seconds,
			TrackedSeconds:  tracked,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	if stopped {
		s.metrics.RecordTimer("stop")
	}
	return &result, nil
}

// Pause stops a running log without closing it. Pausing a paused log is a
// no-op.
func (s *TimerService) Pause(ctx context.Context, actor domain.Actor, logID string) (*domain.TimeLog, error) {
	var (
		log     *domain.TimeLog
		changed bool
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if log, err = s.lockLog(ctx, repos, actor, logID); err != nil {
			return err
		}
		if log.Closed() {
			return apperrors.NewStateError("time log is closed", map[string]any{"log_id": log.ID})
		}
		if log.IsPaused {
			return nil
		}
		log.IsRunning = false
		log.IsPaused = true
		log.PausedAt = ptr(s.now())
		changed = true
		return storeError(repos.TimeLogs.Update(ctx, log))
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordTimer("pause")
	}
	return log, nil
}

// Resume restarts a paused log, parking any other running log of the user.
func (s *TimerService) Resume(ctx context.Context, actor domain.Actor, logID string) (*domain.TimeLog, error) {
	var (
		log     *domain.TimeLog
		changed bool
	)
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if log, err = s.lockLog(ctx, repos, actor, logID); err != nil {
			return err
		}
		if log.Closed() {
			return apperrors.NewStateError("time log is closed", map[string]any{"log_id": log.ID})
		}
		if log.IsRunning {
			return nil
		}
		if err := repos.TimeLogs.LockUser(ctx, log.UserID); err != nil {
			return storeError(err)
		}
		if _, err := s.parkRunning(ctx, repos, log.UserID, log.ID, s.now()); err != nil {
			return err
		}
		log.IsRunning = true
		log.IsPaused = false
		log.PausedAt = nil
		changed = true
		return storeError(repos.TimeLogs.Update(ctx, log))
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.metrics.RecordTimer("resume")
	}
	return log, nil
}

// AddManual records a closed log for past effort.
func (s *TimerService) AddManual(ctx context.Context, actor domain.Actor, in ManualLogInput) (*StopResult, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		userID = actor.ID
	}
	if !actor.ActsFor(userID) {
		return nil, apperrors.NewForbidden("cannot log time for another user")
	}
	if !in.EndTime.After(in.StartTime) {
		return nil, apperrors.NewValidationError("end time must be after start time", nil)
	}

	var result StopResult
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		now := s.now()
		if in.EndTime.After(now) {
			return apperrors.NewValidationError("end time is in the future", map[string]any{"end_time": in.EndTime})
		}
		item, err := repos.WorkItems.GetByID(ctx, in.WorkItemID)
		if err != nil {
			return lookupError(err, "work item", map[string]any{"work_item_id": in.WorkItemID})
		}

		seconds := int64(in.EndTime.Sub(in.StartTime) / time.Second)
		log := &domain.TimeLog{
			ID:              uuid.NewString(),
			WorkItemID:      item.ID,
			UserID:          userID,
			StartTime:       in.StartTime,
			EndTime:         ptr(in.EndTime),
			DurationSeconds: ptr(seconds),
			Manual:          true,
			CreatedAt:       now,
		}
		if err := repos.TimeLogs.Create(ctx, log); err != nil {
			return storeError(err)
		}
		tracked, err := s.recompute(ctx, repos, item.ID)
		if err != nil {
			return err
		}
		result = StopResult{Log: log, Duration: time.Duration(seconds) * time.Second, TrackedSeconds: tracked}
		return s.audit(ctx, repos, actor, item.ID, domain.TimeLogEditedPayload{LogID: log.ID, TrackedSeconds: tracked}, now)
	})
	if err != nil {
		return nil, err
	}
	s.metrics.RecordTimer("manual")
	return &result, nil
}

// Delete removes a stopped log and recomputes the tracked time.
func (s *TimerService) Delete(ctx context.Context, actor domain.Actor, logID string) (int64, error) {
	var tracked int64
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		log, err := s.lockLog(ctx, repos, actor, logID)
		if err != nil {
			return err
		}
		if !log.Closed() {
			return apperrors.NewStateError("stop the timer before deleting it", map[string]any{"log_id": log.ID})
		}
		if err := repos.TimeLogs.Delete(ctx, log.ID); err != nil {
			return storeError(err)
		}
		if tracked, err = s.recompute(ctx, repos, log.WorkItemID); err != nil {
			return err
		}
		return s.audit(ctx, repos, actor, log.WorkItemID, domain.TimeLogEditedPayload{
			LogID:          log.ID,
			Deleted:        true,
			TrackedSeconds: tracked,
		}, s.now())
	})
	if err != nil {
		return 0, err
	}
	s.metrics.RecordTimer("delete")
	return tracked, nil
}

// ListByWorkItem returns the logs of a work item ordered by start time.
func (s *TimerService) ListByWorkItem(ctx context.Context, workItemID string) ([]domain.TimeLog, error) {
	return retryRead(ctx, s.logger, "time_logs.list", func(ctx context.Context) ([]domain.TimeLog, error) {
		if _, err := s.store.Repos().WorkItems.GetByID(ctx, workItemID); err != nil {
			return nil, lookupError(err, "work item", map[string]any{"work_item_id": workItemID})
		}
		logs, err := s.store.Repos().TimeLogs.ListByWorkItem(ctx, workItemID)
		return logs, storeError(err)
	})
}

func (s *TimerService) lockLog(ctx context.Context, repos repository.Repositories, actor domain.Actor, id string) (*domain.TimeLog, error) {
	log, err := repos.TimeLogs.GetForUpdate(ctx, id)
	if err != nil {
		return nil, lookupError(err, "time log", map[string]any{"log_id": id})
	}
	if !actor.ActsFor(log.UserID) {
		return nil, apperrors.NewForbidden("time log belongs to another user")
	}
	return log, nil
}

// recompute rebuilds tracked time from every closed log of the item.
func (s *TimerService) recompute(ctx context.Context, repos repository.Repositories, workItemID string) (int64, error) {
	total, err := repos.TimeLogs.SumClosedDurations(ctx, workItemID)
	if err != nil {
		return 0, storeError(err)
	}
	if err := repos.WorkItems.UpdateTrackedSeconds(ctx, workItemID, total); err != nil {
		return 0, lookupError(err, "work item", map[string]any{"work_item_id": workItemID})
	}
	return total, nil
}

func (s *TimerService) audit(ctx context.Context, repos repository.Repositories, actor domain.Actor, workItemID string, payload domain.AuditPayload, at time.Time) error {
	item, err := repos.WorkItems.GetByID(ctx, workItemID)
	if err != nil {
		return lookupError(err, "work item", map[string]any{"work_item_id": workItemID})
	}
	return storeError(repos.Audit.Append(ctx, newAuditEntry(item.Ref(), actor.ID, payload, at)))
}

func durationOf(log *domain.TimeLog) time.Duration {
	if log.DurationSeconds == nil {
		return 0
	}
	return time.Duration(*log.DurationSeconds) * time.Second
}
