package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/service"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// AuditHandler serves the audit trail of work items.
type AuditHandler struct {
	service *service.AuditService
}

// NewAuditHandler constructs handler.
func NewAuditHandler(auditService *service.AuditService) *AuditHandler {
	return &AuditHandler{service: auditService}
}

// List GET /audit/:kind/:id.
func (h *AuditHandler) List(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	ref := domain.EntityRef{Kind: domain.WorkItemKind(strings.ToUpper(c.Params("kind"))), ID: c.Params("id")}
	entries, err := h.service.List(c.UserContext(), ref, limit)
	if err != nil {
		return err
	}
	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		raw, err := domain.EncodeAuditPayload(e.Payload)
		if err != nil {
			return apperrors.NewInternalError(err)
		}
		items = append(items, dto.AuditEntryResponse{
			ID:        e.ID,
			Entity:    e.Entity,
			ActorID:   e.ActorID,
			Action:    e.Action(),
			Payload:   raw,
			CreatedAt: e.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}
