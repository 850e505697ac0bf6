package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

const maxAuditPage = 500

// AuditService reads the audit trail of an entity.
type AuditService struct {
	store  repository.Store
	logger *zap.Logger
}

func NewAuditService(store repository.Store, logger *zap.Logger) *AuditService {
	return &AuditService{store: store, logger: loggerOrNop(logger)}
}

// List returns up to limit entries for ref in chronological order.
func (s *AuditService) List(ctx context.Context, ref domain.EntityRef, limit int) ([]domain.AuditEntry, error) {
	if !ref.Kind.IsValid() || ref.ID == "" {
		return nil, apperrors.NewValidationError("entity kind and id are required", map[string]any{"kind": ref.Kind})
	}
	if limit <= 0 || limit > maxAuditPage {
		limit = maxAuditPage
	}
	return retryRead(ctx, s.logger, "audit.list", func(ctx context.Context) ([]domain.AuditEntry, error) {
		entries, err := s.store.Repos().Audit.ListByEntity(ctx, ref, limit)
		return entries, storeError(err)
	})
}
