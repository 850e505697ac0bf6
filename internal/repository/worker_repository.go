package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/sla-service/internal/domain"
)

// WorkerRepository handles persistence for workers.
type WorkerRepository interface {
	Create(ctx context.Context, worker *domain.Worker) error
	GetByID(ctx context.Context, id string) (*domain.Worker, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Worker, error)
	List(ctx context.Context, filter WorkerFilter) ([]domain.Worker, error)
	UpdateWIPLimit(ctx context.Context, id string, limit int) error
}

// WorkerFilter defines query params for worker listing. Results are ordered
// by id so row locks are always taken in the same order.
type WorkerFilter struct {
	TeamID    *string
	Active    *bool
	ForUpdate bool
}

type workerRepository struct {
	db dbtx
}

const workerColumns = `id, name, email, role, team_id, wip_limit, active_flag, created_at, updated_at`

func (r *workerRepository) Create(ctx context.Context, worker *domain.Worker) error {
	const query = `
        INSERT INTO workers (id, name, email, role, team_id, wip_limit, active_flag, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)`
	_, err := r.db.Exec(ctx, query,
		worker.ID,
		worker.Name,
		worker.Email,
		worker.Role,
		worker.TeamID,
		worker.WIPLimit,
		worker.Active,
		worker.CreatedAt,
	)
	if err == nil {
		worker.UpdatedAt = worker.CreatedAt
	}
	return err
}

func (r *workerRepository) GetByID(ctx context.Context, id string) (*domain.Worker, error) {
	return r.fetchSingle(ctx, `SELECT `+workerColumns+` FROM workers WHERE id=$1`, id)
}

func (r *workerRepository) GetForUpdate(ctx context.Context, id string) (*domain.Worker, error) {
	return r.fetchSingle(ctx, `SELECT `+workerColumns+` FROM workers WHERE id=$1 FOR UPDATE`, id)
}

func (r *workerRepository) fetchSingle(ctx context.Context, query, id string) (*domain.Worker, error) {
	var worker domain.Worker
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&worker.ID,
		&worker.Name,
		&worker.Email,
		&worker.Role,
		&worker.TeamID,
		&worker.WIPLimit,
		&worker.Active,
		&worker.CreatedAt,
		&worker.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &worker, nil
}

func (r *workerRepository) List(ctx context.Context, filter WorkerFilter) ([]domain.Worker, error) {
	query := `SELECT ` + workerColumns + ` FROM workers`
	args := []any{}
	clauses := []string{}

	if filter.TeamID != nil {
		args = append(args, *filter.TeamID)
		clauses = append(clauses, fmt.Sprintf("team_id=$%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		clauses = append(clauses, fmt.Sprintf("active_flag=$%d", len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"
	if filter.ForUpdate {
		query += " FOR UPDATE"
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.Worker{}
	for rows.Next() {
		var worker domain.Worker
		if err := rows.Scan(
			&worker.ID,
			&worker.Name,
			&worker.Email,
			&worker.Role,
			&worker.TeamID,
			&worker.WIPLimit,
			&worker.Active,
			&worker.CreatedAt,
			&worker.UpdatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, worker)
	}
	return result, rows.Err()
}

func (r *workerRepository) UpdateWIPLimit(ctx context.Context, id string, limit int) error {
	return expectOne(r.db.Exec(ctx, `UPDATE workers SET wip_limit=$1, updated_at=NOW() WHERE id=$2`, limit, id))
}
