package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/service"
)

// TimersHandler manages time tracking endpoints.
type TimersHandler struct {
	service *service.TimerService
}

// NewTimersHandler constructs handler.
func NewTimersHandler(timerService *service.TimerService) *TimersHandler {
	return &TimersHandler{service: timerService}
}

// Start POST /work-items/:id/timers.
func (h *TimersHandler) Start(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.StartTimerRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.service.Start(c.UserContext(), actor, service.StartTimerInput{
		WorkItemID: c.Params("id"),
		UserID:     req.UserID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": dto.StartTimerResponse{
		Log:    timeLogResponse(result.Log),
		Parked: timeLogResponses(result.Parked),
	}})
}

// List GET /work-items/:id/timers.
func (h *TimersHandler) List(c *fiber.Ctx) error {
	logs, err := h.service.ListByWorkItem(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": timeLogResponses(logs)})
}

// AddManual POST /work-items/:id/timers/manual.
func (h *TimersHandler) AddManual(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.ManualTimeLogRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	result, err := h.service.AddManual(c.UserContext(), actor, service.ManualLogInput{
		WorkItemID: c.Params("id"),
		UserID:     req.UserID,
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": stopResponse(result)})
}

// Stop POST /timers/:id/stop.
func (h *TimersHandler) Stop(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	result, err := h.service.Stop(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stopResponse(result)})
}

// Pause POST /timers/:id/pause.
func (h *TimersHandler) Pause(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	log, err := h.service.Pause(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": timeLogResponse(log)})
}

// Resume POST /timers/:id/resume.
func (h *TimersHandler) Resume(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	log, err := h.service.Resume(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": timeLogResponse(log)})
}

// Delete DELETE /timers/:id.
func (h *TimersHandler) Delete(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	tracked, err := h.service.Delete(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TrackedTimeResponse{TrackedSeconds: tracked}})
}

func stopResponse(result *service.StopResult) dto.StopTimerResponse {
	return dto.StopTimerResponse{
		Log:             timeLogResponse(result.Log),
		DurationSeconds: seconds(result.Duration),
		TrackedSeconds:  result.TrackedSeconds,
	}
}
