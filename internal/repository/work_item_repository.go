package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/sla-service/internal/domain"
)

// WorkItemFilter captures work item search parameters.
type WorkItemFilter struct {
	Kind        *domain.WorkItemKind
	TeamID      *string
	AssigneeID  *string
	Priorities  []domain.Priority
	ActiveOnly  bool
	WithSLA     bool
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	// Limit of 0 returns every match.
	Limit int
}

// WorkItemRepository encapsulates work item persistence.
type WorkItemRepository interface {
	Create(ctx context.Context, item *domain.WorkItem) error
	GetByID(ctx context.Context, id string) (*domain.WorkItem, error)
	// GetForUpdate locks the row until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id string) (*domain.WorkItem, error)
	Find(ctx context.Context, filter WorkItemFilter) ([]domain.WorkItem, error)
	UpdateSLA(ctx context.Context, id string, sla domain.SLAFields) error
	// CompareAndSetAssignee sets the assignee only while the current one equals
	// expected (nil meaning unassigned). It reports whether the row changed.
	CompareAndSetAssignee(ctx context.Context, id string, expected *string, assignee string) (bool, error)
	UpdateTrackedSeconds(ctx context.Context, id string, seconds int64) error
	// CountActiveByAssignee counts non-terminal items per assignee.
	CountActiveByAssignee(ctx context.Context, assigneeIDs []string) (map[string]int, error)
}

type workItemRepository struct {
	db dbtx
}

const workItemColumns = `id, kind, title, priority, status, team_id, created_by_id, assignee_id,
       sla_started_at, sla_deadline, sla_paused_at, sla_pause_reason, sla_total_paused_seconds,
       tracked_seconds, created_at, updated_at, completed_at`

func (r *workItemRepository) Create(ctx context.Context, item *domain.WorkItem) error {
	const query = `
        INSERT INTO work_items (id, kind, title, priority, status, team_id, created_by_id, assignee_id,
            sla_started_at, sla_deadline, sla_paused_at, sla_pause_reason, sla_total_paused_seconds,
            tracked_seconds, created_at, updated_at, completed_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$15,$16)`
	_, err := r.db.Exec(ctx, query,
		item.ID,
		item.Kind,
		item.Title,
		item.Priority,
		item.Status,
		item.TeamID,
		item.CreatedByID,
		item.AssigneeID,
		item.SLA.StartedAt,
		item.SLA.Deadline,
		item.SLA.PausedAt,
		item.SLA.PauseReason,
		item.SLA.TotalPausedSeconds,
		item.TrackedSeconds,
		item.CreatedAt,
		item.CompletedAt,
	)
	if err == nil {
		item.UpdatedAt = item.CreatedAt
	}
	return err
}

func (r *workItemRepository) GetByID(ctx context.Context, id string) (*domain.WorkItem, error) {
	return r.fetchSingle(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id=$1`, id)
}

func (r *workItemRepository) GetForUpdate(ctx context.Context, id string) (*domain.WorkItem, error) {
	return r.fetchSingle(ctx, `SELECT `+workItemColumns+` FROM work_items WHERE id=$1 FOR UPDATE`, id)
}

func (r *workItemRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.WorkItem, error) {
	item, err := scanWorkItem(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		return nil, translate(err)
	}
	return item, nil
}

func (r *workItemRepository) Find(ctx context.Context, filter WorkItemFilter) ([]domain.WorkItem, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Kind != nil {
		args = append(args, *filter.Kind)
		clauses = append(clauses, fmt.Sprintf("kind=$%d", len(args)))
	}
	if filter.TeamID != nil {
		args = append(args, *filter.TeamID)
		clauses = append(clauses, fmt.Sprintf("team_id=$%d", len(args)))
	}
	if filter.AssigneeID != nil {
		args = append(args, *filter.AssigneeID)
		clauses = append(clauses, fmt.Sprintf("assignee_id=$%d", len(args)))
	}
	if len(filter.Priorities) > 0 {
		clauses = append(clauses, fmt.Sprintf("priority IN (%s)", placeholders(&args, filter.Priorities)))
	}
	if filter.ActiveOnly {
		clauses = append(clauses, fmt.Sprintf("status NOT IN (%s)", placeholders(&args, domain.TerminalStatuses())))
	}
	if filter.WithSLA {
		clauses = append(clauses, "sla_deadline IS NOT NULL")
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT %s FROM work_items WHERE %s ORDER BY id`, workItemColumns, strings.Join(clauses, " AND "))
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.WorkItem{}
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *item)
	}
	return result, rows.Err()
}

func (r *workItemRepository) UpdateSLA(ctx context.Context, id string, sla domain.SLAFields) error {
	const query = `
        UPDATE work_items SET sla_started_at=$1, sla_deadline=$2, sla_paused_at=$3, sla_pause_reason=$4,
            sla_total_paused_seconds=$5, updated_at=NOW()
        WHERE id=$6`
	return expectOne(r.db.Exec(ctx, query,
		sla.StartedAt,
		sla.Deadline,
		sla.PausedAt,
		sla.PauseReason,
		sla.TotalPausedSeconds,
		id,
	))
}

func (r *workItemRepository) CompareAndSetAssignee(ctx context.Context, id string, expected *string, assignee string) (bool, error) {
	const query = `
        UPDATE work_items SET assignee_id=$1, updated_at=NOW()
        WHERE id=$2 AND assignee_id IS NOT DISTINCT FROM $3`
	cmd, err := r.db.Exec(ctx, query, assignee, id, expected)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *workItemRepository) UpdateTrackedSeconds(ctx context.Context, id string, seconds int64) error {
	return expectOne(r.db.Exec(ctx, `UPDATE work_items SET tracked_seconds=$1, updated_at=NOW() WHERE id=$2`, seconds, id))
}

func (r *workItemRepository) CountActiveByAssignee(ctx context.Context, assigneeIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(assigneeIDs))
	if len(assigneeIDs) == 0 {
		return counts, nil
	}
	args := []any{}
	ids := placeholders(&args, assigneeIDs)
	terminal := placeholders(&args, domain.TerminalStatuses())
	query := fmt.Sprintf(`
        SELECT assignee_id, COUNT(*) FROM work_items
        WHERE assignee_id IN (%s) AND status NOT IN (%s)
        GROUP BY assignee_id`, ids, terminal)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id    string
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		counts[id] = count
	}
	return counts, rows.Err()
}

func scanWorkItem(row pgx.Row) (*domain.WorkItem, error) {
	var item domain.WorkItem
	if err := row.Scan(
		&item.ID,
		&item.Kind,
		&item.Title,
		&item.Priority,
		&item.Status,
		&item.TeamID,
		&item.CreatedByID,
		&item.AssigneeID,
		&item.SLA.StartedAt,
		&item.SLA.Deadline,
		&item.SLA.PausedAt,
		&item.SLA.PauseReason,
		&item.SLA.TotalPausedSeconds,
		&item.TrackedSeconds,
		&item.CreatedAt,
		&item.UpdatedAt,
		&item.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &item, nil
}
