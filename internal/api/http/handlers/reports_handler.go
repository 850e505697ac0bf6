package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-service/internal/service"
)

// ReportsHandler serves violation and at-risk reports.
type ReportsHandler struct {
	service *service.ReportService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reportService *service.ReportService) *ReportsHandler {
	return &ReportsHandler{service: reportService}
}

// Violations GET /reports/violations.
func (h *ReportsHandler) Violations(c *fiber.Ctx) error {
	filter, err := parseReportFilter(c)
	if err != nil {
		return err
	}
	violations, err := h.service.ListViolations(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": violations})
}

// AtRisk GET /reports/at-risk.
func (h *ReportsHandler) AtRisk(c *fiber.Ctx) error {
	filter, err := parseReportFilter(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListAtRisk(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": items})
}

func parseReportFilter(c *fiber.Ctx) (service.ReportFilter, error) {
	from, err := parseTime(c.Query("from"))
	if err != nil {
		return service.ReportFilter{}, err
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		return service.ReportFilter{}, err
	}
	return service.ReportFilter{
		From:       from,
		To:         to,
		TeamID:     optional(c.Query("team_id")),
		Priorities: parsePriorities(c.Query("priority")),
	}, nil
}
