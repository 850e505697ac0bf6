package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/repository"
	"github.com/spec-kit/sla-service/internal/service"
)

// EscalationsHandler manages escalation lifecycle endpoints.
type EscalationsHandler struct {
	service *service.EscalationService
}

// NewEscalationsHandler constructs handler.
func NewEscalationsHandler(escalationService *service.EscalationService) *EscalationsHandler {
	return &EscalationsHandler{service: escalationService}
}

// Trigger POST /escalations.
func (h *EscalationsHandler) Trigger(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.TriggerEscalationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	log, created, err := h.service.Trigger(c.UserContext(), actor, service.TriggerInput{
		RuleID:     req.RuleID,
		WorkItemID: req.WorkItemID,
		Reason:     req.Reason,
		Recipient:  req.Recipient,
	})
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.TriggerEscalationResponse{
		Created:    created,
		Escalation: escalationResponse(log),
	}})
}

// List GET /escalations.
func (h *EscalationsHandler) List(c *fiber.Ctx) error {
	limit, err := queryInt(c, "limit")
	if err != nil {
		return err
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		return err
	}
	filter := repository.EscalationFilter{Limit: limit, Offset: offset, Recipient: optional(c.Query("recipient"))}
	if v := c.Query("status"); v != "" {
		status := domain.EscalationStatus(v)
		filter.Status = &status
	}
	if v := c.Query("rule_id"); v != "" {
		rule := domain.EscalationRuleID(v)
		filter.RuleID = &rule
	}
	logs, err := h.service.List(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.EscalationResponse, 0, len(logs))
	for i := range logs {
		items = append(items, escalationResponse(&logs[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Get GET /escalations/:id.
func (h *EscalationsHandler) Get(c *fiber.Ctx) error {
	log, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalationResponse(log)})
}

// Acknowledge POST /escalations/:id/acknowledge.
func (h *EscalationsHandler) Acknowledge(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	log, err := h.service.Acknowledge(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalationResponse(log)})
}

// Resolve POST /escalations/:id/resolve.
func (h *EscalationsHandler) Resolve(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ResolveEscalationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	log, err := h.service.Resolve(c.UserContext(), actor, c.Params("id"), req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": escalationResponse(log)})
}

// Reassign POST /escalations/:id/reassign.
func (h *EscalationsHandler) Reassign(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ReassignEscalationRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	outcome, err := h.service.Reassign(c.UserContext(), actor, service.ReassignInput{
		EscalationID: c.Params("id"),
		WorkItemID:   req.WorkItemID,
		WorkerID:     req.WorkerID,
		Override:     req.Override,
	})
	if err != nil {
		return err
	}
	return writeAssignOutcome(c, outcome)
}

// Sweep POST /escalations/sweep.
func (h *EscalationsHandler) Sweep(c *fiber.Ctx) error {
	result, err := h.service.Sweep(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.SweepResponse{Breaches: result.Breaches, AtRisk: result.AtRisk}})
}
