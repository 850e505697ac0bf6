package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/spec-kit/sla-service/internal/domain"
)

// EscalationFilter narrows escalation listings.
type EscalationFilter struct {
	Status    *domain.EscalationStatus
	RuleID    *domain.EscalationRuleID
	Recipient *string
	Entity    *domain.EntityRef
	Limit     int
	Offset    int
}

// EscalationRepository stores escalation logs. Logs are never deleted.
type EscalationRepository interface {
	Create(ctx context.Context, log *domain.EscalationLog) error
	GetByID(ctx context.Context, id string) (*domain.EscalationLog, error)
	GetForUpdate(ctx context.Context, id string) (*domain.EscalationLog, error)
	// FindOutstanding returns the non-resolved log of rule for entity, or
	// ErrNotFound.
	FindOutstanding(ctx context.Context, rule domain.EscalationRuleID, entity domain.EntityRef) (*domain.EscalationLog, error)
	Update(ctx context.Context, log *domain.EscalationLog) error
	List(ctx context.Context, filter EscalationFilter) ([]domain.EscalationLog, error)
}

type escalationRepository struct {
	db dbtx
}

const escalationColumns = `id, rule_id, status, reason, entity_kind, entity_id, recipient, triggered_by,
       created_at, acknowledged_at, acknowledged_by, resolved_at, resolved_by, resolution_notes`

func (r *escalationRepository) Create(ctx context.Context, log *domain.EscalationLog) error {
	const query = `
        INSERT INTO escalation_logs (id, rule_id, status, reason, entity_kind, entity_id, recipient, triggered_by, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.db.Exec(ctx, query,
		log.ID,
		log.RuleID,
		log.Status,
		log.Reason,
		log.Entity.Kind,
		log.Entity.ID,
		log.Recipient,
		log.TriggeredBy,
		log.CreatedAt,
	)
	return err
}

func (r *escalationRepository) GetByID(ctx context.Context, id string) (*domain.EscalationLog, error) {
	return r.fetchSingle(ctx, `SELECT `+escalationColumns+` FROM escalation_logs WHERE id=$1`, id)
}

func (r *escalationRepository) GetForUpdate(ctx context.Context, id string) (*domain.EscalationLog, error) {
	return r.fetchSingle(ctx, `SELECT `+escalationColumns+` FROM escalation_logs WHERE id=$1 FOR UPDATE`, id)
}

func (r *escalationRepository) FindOutstanding(ctx context.Context, rule domain.EscalationRuleID, entity domain.EntityRef) (*domain.EscalationLog, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalation_logs
        WHERE rule_id=$1 AND entity_kind=$2 AND entity_id=$3 AND status<>$4
        ORDER BY created_at DESC LIMIT 1`
	log, err := scanEscalation(r.db.QueryRow(ctx, query, rule, entity.Kind, entity.ID, domain.EscalationResolved))
	if err != nil {
		return nil, translate(err)
	}
	return log, nil
}

func (r *escalationRepository) fetchSingle(ctx context.Context, query, id string) (*domain.EscalationLog, error) {
	log, err := scanEscalation(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, translate(err)
	}
	return log, nil
}

func (r *escalationRepository) Update(ctx context.Context, log *domain.EscalationLog) error {
	const query = `
        UPDATE escalation_logs SET status=$1, acknowledged_at=$2, acknowledged_by=$3,
            resolved_at=$4, resolved_by=$5, resolution_notes=$6
        WHERE id=$7`
	return expectOne(r.db.Exec(ctx, query,
		log.Status,
		log.AcknowledgedAt,
		log.AcknowledgedBy,
		log.ResolvedAt,
		log.ResolvedBy,
		log.ResolutionNotes,
		log.ID,
	))
}

func (r *escalationRepository) List(ctx context.Context, filter EscalationFilter) ([]domain.EscalationLog, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.Status != nil {
		args = append(args, *filter.Status)
		clauses = append(clauses, fmt.Sprintf("status=$%d", len(args)))
	}
	if filter.RuleID != nil {
		args = append(args, *filter.RuleID)
		clauses = append(clauses, fmt.Sprintf("rule_id=$%d", len(args)))
	}
	if filter.Recipient != nil {
		args = append(args, *filter.Recipient)
		clauses = append(clauses, fmt.Sprintf("recipient=$%d", len(args)))
	}
	if filter.Entity != nil {
		args = append(args, filter.Entity.Kind, filter.Entity.ID)
		clauses = append(clauses, fmt.Sprintf("entity_kind=$%d AND entity_id=$%d", len(args)-1, len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM escalation_logs WHERE %s ORDER BY created_at DESC, id LIMIT %d OFFSET %d`,
		escalationColumns, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.EscalationLog{}
	for rows.Next() {
		log, err := scanEscalation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *log)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscalation(row rowScanner) (*domain.EscalationLog, error) {
	var log domain.EscalationLog
	if err := row.Scan(
		&log.ID,
		&log.RuleID,
		&log.Status,
		&log.Reason,
		&log.Entity.Kind,
		&log.Entity.ID,
		&log.Recipient,
		&log.TriggeredBy,
		&log.CreatedAt,
		&log.AcknowledgedAt,
		&log.AcknowledgedBy,
		&log.ResolvedAt,
		&log.ResolvedBy,
		&log.ResolutionNotes,
	); err != nil {
		return nil, err
	}
	return &log, nil
}
