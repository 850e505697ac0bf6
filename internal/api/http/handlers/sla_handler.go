package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/service"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// SLAHandler exposes the SLA clock of work items.
type SLAHandler struct {
	service *service.SLAService
}

// NewSLAHandler constructs handler.
func NewSLAHandler(slaService *service.SLAService) *SLAHandler {
	return &SLAHandler{service: slaService}
}

// Start POST /work-items/:id/sla/start.
func (h *SLAHandler) Start(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.StartSLARequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	var target *time.Duration
	if req.TargetMinutes != nil {
		d := time.Duration(*req.TargetMinutes) * time.Minute
		target = &d
	}
	item, started, err := h.service.StartClock(c.UserContext(), actor, c.Params("id"), target)
	if err != nil {
		return err
	}
	view, err := h.service.Status(c.UserContext(), item.ID)
	if err != nil {
		return err
	}
	status := fiber.StatusOK
	if started {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{"data": dto.StartSLAResponse{
		Started: started,
		Status:  slaStatusResponse(view.Item, view.Status),
	}})
}

// Pause POST /work-items/:id/sla/pause.
func (h *SLAHandler) Pause(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.PauseSLARequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if _, err := h.service.PauseClock(c.UserContext(), actor, c.Params("id"), req.Reason); err != nil {
		return err
	}
	return h.Status(c)
}

// Resume POST /work-items/:id/sla/resume.
func (h *SLAHandler) Resume(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if _, err := h.service.ResumeClock(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return h.Status(c)
}

// Status GET /work-items/:id/sla.
func (h *SLAHandler) Status(c *fiber.Ctx) error {
	view, err := h.service.Status(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": slaStatusResponse(view.Item, view.Status)})
}

// Remaining GET /work-items/:id/sla/remaining.
func (h *SLAHandler) Remaining(c *fiber.Ctx) error {
	remaining, err := h.service.Remaining(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.RemainingResponse{
		WorkItemID:       c.Params("id"),
		RemainingSeconds: seconds(remaining),
		RemainingHours:   remaining.Hours(),
	}})
}

// Classify GET /sla/severity?delay_hours=.
func (h *SLAHandler) Classify(c *fiber.Ctx) error {
	hours, err := strconv.ParseFloat(c.Query("delay_hours"), 64)
	if err != nil {
		return apperrors.NewValidationError("delay_hours must be a number", nil)
	}
	severity, err := h.service.ClassifySeverity(hours)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ClassifyResponse{DelayHours: hours, Severity: severity}})
}
