package repository

import (
	"context"

	"github.com/spec-kit/sla-service/internal/domain"
)

// TimeLogRepository persists timer entries.
type TimeLogRepository interface {
	Create(ctx context.Context, log *domain.TimeLog) error
	GetByID(ctx context.Context, id string) (*domain.TimeLog, error)
	GetForUpdate(ctx context.Context, id string) (*domain.TimeLog, error)
	Update(ctx context.Context, log *domain.TimeLog) error
	Delete(ctx context.Context, id string) error
	ListRunningByUser(ctx context.Context, userID string) ([]domain.TimeLog, error)
	ListByWorkItem(ctx context.Context, workItemID string) ([]domain.TimeLog, error)
	// SumClosedDurations totals the durations of stopped logs of a work item.
	SumClosedDurations(ctx context.Context, workItemID string) (int64, error)
	// LockUser serializes timer changes of one user within a transaction.
	LockUser(ctx context.Context, userID string) error
}

type timeLogRepository struct {
	db dbtx
}

const timeLogColumns = `id, work_item_id, user_id, start_time, end_time, duration_seconds,
       is_running, is_paused, paused_at, manual, created_at`

func (r *timeLogRepository) Create(ctx context.Context, log *domain.TimeLog) error {
	const query = `
        INSERT INTO time_logs (id, work_item_id, user_id, start_time, end_time, duration_seconds,
            is_running, is_paused, paused_at, manual, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.db.Exec(ctx, query,
		log.ID,
		log.WorkItemID,
		log.UserID,
		log.StartTime,
		log.EndTime,
		log.DurationSeconds,
		log.IsRunning,
		log.IsPaused,
		log.PausedAt,
		log.Manual,
		log.CreatedAt,
	)
	return err
}

func (r *timeLogRepository) GetByID(ctx context.Context, id string) (*domain.TimeLog, error) {
	return r.fetchSingle(ctx, `SELECT `+timeLogColumns+` FROM time_logs WHERE id=$1`, id)
}

func (r *timeLogRepository) GetForUpdate(ctx context.Context, id string) (*domain.TimeLog, error) {
	return r.fetchSingle(ctx, `SELECT `+timeLogColumns+` FROM time_logs WHERE id=$1 FOR UPDATE`, id)
}

func (r *timeLogRepository) fetchSingle(ctx context.Context, query, id string) (*domain.TimeLog, error) {
	log, err := scanTimeLog(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return log, nil
}

func (r *timeLogRepository) Update(ctx context.Context, log *domain.TimeLog) error {
	const query = `
        UPDATE time_logs SET end_time=$1, duration_seconds=$2, is_running=$3, is_paused=$4, paused_at=$5
        WHERE id=$6`
	return expectOne(r.db.Exec(ctx, query,
		log.EndTime,
		log.DurationSeconds,
		log.IsRunning,
		log.IsPaused,
		log.PausedAt,
		log.ID,
	))
}

func (r *timeLogRepository) Delete(ctx context.Context, id string) error {
	return expectOne(r.db.Exec(ctx, `DELETE FROM time_logs WHERE id=$1`, id))
}

func (r *timeLogRepository) ListRunningByUser(ctx context.Context, userID string) ([]domain.TimeLog, error) {
	return r.list(ctx, `SELECT `+timeLogColumns+` FROM time_logs WHERE user_id=$1 AND is_running ORDER BY start_time`, userID)
}

func (r *timeLogRepository) ListByWorkItem(ctx context.Context, workItemID string) ([]domain.TimeLog, error) {
	return r.list(ctx, `SELECT `+timeLogColumns+` FROM time_logs WHERE work_item_id=$1 ORDER BY start_time`, workItemID)
}

func (r *timeLogRepository) list(ctx context.Context, query, arg string) ([]domain.TimeLog, error) {
	rows, err := r.db.Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.TimeLog{}
	for rows.Next() {
		log, err := scanTimeLog(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *log)
	}
	return result, rows.Err()
}

func (r *timeLogRepository) SumClosedDurations(ctx context.Context, workItemID string) (int64, error) {
	const query = `
        SELECT COALESCE(SUM(duration_seconds), 0)::BIGINT FROM time_logs
        WHERE work_item_id=$1 AND end_time IS NOT NULL`
	var total int64
	err := r.db.QueryRow(ctx, query, workItemID).Scan(&total)
	return total, err
}

func (r *timeLogRepository) LockUser(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "timer:"+userID)
	return err
}

func scanTimeLog(row rowScanner) (*domain.TimeLog, error) {
	var log domain.TimeLog
	if err := row.Scan(
		&log.ID,
		&log.WorkItemID,
		&log.UserID,
		&log.StartTime,
		&log.EndTime,
		&log.DurationSeconds,
		&log.IsRunning,
		&log.IsPaused,
		&log.PausedAt,
		&log.Manual,
		&log.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &log, nil
}
