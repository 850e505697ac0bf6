package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// WorkerService exposes worker capacity and load.
type WorkerService struct {
	store  repository.Store
	logger *zap.Logger
}

// NewWorkerService creates the service.
func NewWorkerService(store repository.Store, logger *zap.Logger) *WorkerService {
	return &WorkerService{store: store, logger: loggerOrNop(logger)}
}

// SetWIPLimit changes the WIP limit of a worker. A zero limit makes the
// worker unassignable.
func (s *WorkerService) SetWIPLimit(ctx context.Context, actor domain.Actor, workerID string, limit int) (*domain.Worker, error) {
	if !actor.CanConfigureWorkers() {
		return nil, apperrors.NewForbidden("role may not configure workers")
	}
	if limit < 0 {
		return nil, apperrors.NewValidationError("wip limit must not be negative", map[string]any{"wip_limit": limit})
	}

	var worker *domain.Worker
	err := s.store.WithTransaction(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if worker, err = repos.Workers.GetForUpdate(ctx, workerID); err != nil {
			return lookupError(err, "worker", map[string]any{"worker_id": workerID})
		}
		if err := repos.Workers.UpdateWIPLimit(ctx, worker.ID, limit); err != nil {
			return storeError(err)
		}
		worker.WIPLimit = limit
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("wip limit updated", zap.String("worker_id", worker.ID), zap.Int("wip_limit", limit), zap.String("actor_id", actor.ID))
	return worker, nil
}

// ListLoads returns the current load of every active worker of a team.
func (s *WorkerService) ListLoads(ctx context.Context, teamID string) ([]domain.WorkerLoad, error) {
	return retryRead(ctx, s.logger, "workers.loads", func(ctx context.Context) ([]domain.WorkerLoad, error) {
		repos := s.store.Repos()
		if _, err := repos.Teams.GetByID(ctx, teamID); err != nil {
			return nil, lookupError(err, "team", map[string]any{"team_id": teamID})
		}
		active := true
		workers, err := repos.Workers.List(ctx, repository.WorkerFilter{TeamID: &teamID, Active: &active})
		if err != nil {
			return nil, storeError(err)
		}
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
	})
}

// ListTeams returns active teams.
func (s *WorkerService) ListTeams(ctx context.Context) ([]domain.Team, error) {
	return retryRead(ctx, s.logger, "teams.list", func(ctx context.Context) ([]domain.Team, error) {
		teams, err := s.store.Repos().Teams.ListActive(ctx)
		return teams, storeError(err)
	})
}
