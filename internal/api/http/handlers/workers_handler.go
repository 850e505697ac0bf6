package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/api/dto"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/service"
	apperrors "github.com/spec-kit/sla-service/pkg/util"
)

// WorkersHandler exposes worker capacity and team listings.
type WorkersHandler struct {
	service *service.WorkerService
}

// NewWorkersHandler constructs handler.
func NewWorkersHandler(workerService *service.WorkerService) *WorkersHandler {
	return &WorkersHandler{service: workerService}
}

// SetWIPLimit PUT /workers/:id/wip-limit.
func (h *WorkersHandler) SetWIPLimit(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.SetWIPLimitRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.WIPLimit == nil {
		return apperrors.NewValidationError("wip_limit required", nil)
	}
	worker, err := h.service.SetWIPLimit(c.UserContext(), actor, c.Params("id"), *req.WIPLimit)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": workerResponse(worker)})
}

// ListTeams GET /teams.
func (h *WorkersHandler) ListTeams(c *fiber.Ctx) error {
	teams, err := h.service.ListTeams(c.UserContext())
	if err != nil {
		return err
	}
	items := make([]dto.TeamResponse, 0, len(teams))
	for _, t := range teams {
		items = append(items, dto.TeamResponse{ID: t.ID, Name: t.Name, IsActive: t.IsActive})
	}
	return c.JSON(fiber.Map{"data": items})
}

// ListLoads GET /teams/:id/loads.
func (h *WorkersHandler) ListLoads(c *fiber.Ctx) error {
	loads, err := h.service.ListLoads(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.WorkerLoadResponse, 0, len(loads))
	for _, l := range loads {
		items = append(items, workerLoadResponse(l))
	}
	return c.JSON(fiber.Map{"data": items})
}

func workerResponse(w *domain.Worker) dto.WorkerResponse {
	return dto.WorkerResponse{
		ID:       w.ID,
		Name:     w.Name,
		Email:    w.Email,
		Role:     w.Role,
		TeamID:   w.TeamID,
		WIPLimit: w.WIPLimit,
		Active:   w.Active,
	}
}
