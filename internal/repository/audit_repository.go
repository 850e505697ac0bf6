package repository

import (
	"context"
	"fmt"

	"github.com/spec-kit/sla-service/internal/domain"
)

// AuditRepository stores audit entries. Entries are append-only.
type AuditRepository interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	ListByEntity(ctx context.Context, ref domain.EntityRef, limit int) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	db dbtx
}

func (r *auditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	payload, err := domain.EncodeAuditPayload(entry.Payload)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO audit_entries (id, entity_kind, entity_id, actor_id, action, payload, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err = r.db.Exec(ctx, query,
		entry.ID,
		entry.Entity.Kind,
		entry.Entity.ID,
		entry.ActorID,
		entry.Action(),
		payload,
		entry.CreatedAt,
	)
	return err
}

func (r *auditRepository) ListByEntity(ctx context.Context, ref domain.EntityRef, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	query := fmt.Sprintf(`
        SELECT id, entity_kind, entity_id, actor_id, action, payload, created_at
        FROM audit_entries WHERE entity_kind=$1 AND entity_id=$2
        ORDER BY created_at ASC, id LIMIT %d`, limit)
	rows, err := r.db.Query(ctx, query, ref.Kind, ref.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.AuditEntry{}
	for rows.Next() {
		var (
			entry  domain.AuditEntry
			action domain.AuditAction
			raw    []byte
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.Entity.Kind,
			&entry.Entity.ID,
			&entry.ActorID,
			&action,
			&raw,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		if entry.Payload, err = domain.DecodeAuditPayload(action, raw); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
