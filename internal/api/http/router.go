package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/sla-service/internal/api/http/handlers"
	"github.com/spec-kit/sla-service/internal/auth"
	"github.com/spec-kit/sla-service/internal/domain"
	"github.com/spec-kit/sla-service/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	SLA            *handlers.SLAHandler
	Reports        *handlers.ReportsHandler
	Escalations    *handlers.EscalationsHandler
	Assignments    *handlers.AssignmentsHandler
	Timers         *handlers.TimersHandler
	Workers        *handlers.WorkersHandler
	Audit          *handlers.AuditHandler
	Metrics        *observability.Metrics
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle)

	controlSLA := auth.RequireCapability(domain.Actor.CanControlSLA, "not allowed to control SLA clocks")
	manage := auth.RequireCapability(domain.Actor.CanManageEscalations, "not allowed to manage escalations")
	assign := auth.RequireCapability(domain.Actor.CanAssign, "not allowed to assign work")
	configure := auth.RequireCapability(domain.Actor.CanConfigureWorkers, "not allowed to configure workers")

	items := api.Group("/work-items/:id")
	items.Get("/sla", cfg.SLA.Status)
	items.Get("/sla/remaining", cfg.SLA.Remaining)
	items.Post("/sla/start", controlSLA, cfg.SLA.Start)
	items.Post("/sla/pause", controlSLA, cfg.SLA.Pause)
	items.Post("/sla/resume", controlSLA, cfg.SLA.Resume)
	items.Post("/assign/auto", assign, cfg.Assignments.Auto)
	items.Post("/assign", assign, cfg.Assignments.Manual)
	items.Get("/timers", cfg.Timers.List)
	items.Post("/timers", cfg.Timers.Start)
	items.Post("/timers/manual", cfg.Timers.AddManual)

	api.Get("/sla/severity", cfg.SLA.Classify)

	reports := api.Group("/reports")
	reports.Get("/violations", cfg.Reports.Violations)
	reports.Get("/at-risk", cfg.Reports.AtRisk)

	escalations := api.Group("/escalations")
	escalations.Get("", cfg.Escalations.List)
	escalations.Post("", cfg.Escalations.Trigger)
	escalations.Post("/sweep", manage, cfg.Escalations.Sweep)
	escalations.Get("/:id", cfg.Escalations.Get)
	escalations.Post("/:id/acknowledge", cfg.Escalations.Acknowledge)
	escalations.Post("/:id/resolve", cfg.Escalations.Resolve)
	escalations.Post("/:id/reassign", assign, cfg.Escalations.Reassign)

	timers := api.Group("/timers/:id")
	timers.Post("/stop", cfg.Timers.Stop)
	timers.Post("/pause", cfg.Timers.Pause)
	timers.Post("/resume", cfg.Timers.Resume)
	timers.Delete("", cfg.Timers.Delete)

	api.Get("/teams", cfg.Workers.ListTeams)
	api.Get("/teams/:id/loads", cfg.Workers.ListLoads)
	api.Put("/workers/:id/wip-limit", configure, cfg.Workers.SetWIPLimit)

	api.Get("/audit/:kind/:id", cfg.Audit.List)
}
