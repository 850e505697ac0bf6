package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/service"
)

// AssignmentsHandler exposes automatic and manual assignment.
type AssignmentsHandler struct {
	service *service.AssignmentService
}

// NewAssignmentsHandler constructs handler.
func NewAssignmentsHandler(assignmentService *service.AssignmentService) *AssignmentsHandler {
	return &AssignmentsHandler{service: assignmentService}
}

// Auto POST /work-items/:id/assign/auto.
func (h *AssignmentsHandler) Auto(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	result, err := h.service.AutoAssign(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": assignmentResponse(result)})
}

// Manual POST /work-items/:id/assign.
func (h *AssignmentsHandler) Manual(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ManualAssignRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	outcome, err := h.service.ManualAssign(c.UserContext(), actor, service.ManualAssignInput{
		WorkItemID:         c.Params("id"),
		WorkerID:           req.WorkerID,
		Override:           req.Override,
		ExpectedAssigneeID: req.ExpectedAssigneeID,
	})
	if err != nil {
		return err
	}
	return writeAssignOutcome(c, outcome)
}

// writeAssignOutcome answers 409 with the warning body when an override is
// needed.
func writeAssignOutcome(c *fiber.Ctx, outcome *service.ManualAssignOutcome) error {
	if w := outcome.Warning; w != nil {
		return c.Status(fiber.StatusConflict).JSON(dto.WIPWarningResponse{
			Warning:     w.Warning,
			CanOverride: w.CanOverride,
			Error:       w.Error,
			Load:        workerLoadResponse(w.Load),
		})
	}
	return c.JSON(fiber.Map{"data": assignmentResponse(outcome.Result)})
}

func assignmentResponse(result *service.AssignResult) dto.AssignmentResponse {
	return dto.AssignmentResponse{
		WorkItem: workItemResponse(result.WorkItem),
		Load:     workerLoadResponse(result.Load),
		Override: result.Override,
	}
}
