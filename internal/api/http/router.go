package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/crm-engine/internal/api/http/handlers"
	"github.com/spec-kit/crm-engine/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Tickets        *handlers.TicketsHandler
	Collection     *handlers.CollectionHandler
	Distribution   *handlers.DistributionHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireAgent())

	tickets := api.Group("/tickets")
	tickets.Post("", cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/assign", cfg.Tickets.AssignTicket)
	tickets.Post("/:id/status", cfg.Tickets.AdvanceStatus)
	tickets.Post("/:id/messages", cfg.Tickets.AddMessage)
	tickets.Get("/:id/sla", cfg.Tickets.GetSLAStatus)

	tickets.Post("/:id/collection/actions", cfg.Collection.RegisterAction)
	tickets.Post("/:id/collection/agreement", cfg.Collection.RegisterAgreement)
	tickets.Post("/:id/collection/effectivate", cfg.Collection.EffectivateAgreement)

	queues := api.Group("/queues")
	queues.Get("", cfg.Distribution.ListQueues)
	queues.Get("/:id/distribution-rule", cfg.Distribution.GetRule)
	queues.Put("/:id/distribution-rule", auth.RequireSupervisor(), cfg.Distribution.SaveRule)
}
