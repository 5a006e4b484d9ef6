package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/propagentic/maintenance-service/internal/api/http/handlers"
	"github.com/propagentic/maintenance-service/internal/auth"
	"github.com/propagentic/maintenance-service/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Users          *handlers.UsersHandler
	Tickets        *handlers.TicketsHandler
	Notifications  *handlers.NotificationsHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	tickets.Post("", auth.RequireRole(domain.UserRoleTenant, domain.UserRoleAdmin), cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Get("/:id/history", cfg.Tickets.GetHistory)
	tickets.Post("/:id/assign", auth.RequireRole(domain.UserRoleLandlord, domain.UserRoleAdmin), cfg.Tickets.AssignTicket)
	tickets.Post("/:id/accept", auth.RequireRole(domain.UserRoleContractor), cfg.Tickets.AcceptTicket)
	tickets.Post("/:id/reject", auth.RequireRole(domain.UserRoleContractor), cfg.Tickets.RejectTicket)
	tickets.Post("/:id/start", auth.RequireRole(domain.UserRoleContractor), cfg.Tickets.StartWork)
	tickets.Post("/:id/complete", auth.RequireRole(domain.UserRoleContractor), cfg.Tickets.CompleteTicket)
	tickets.Post("/:id/cancel", cfg.Tickets.CancelTicket)
	tickets.Post("/:id/escalate", auth.RequireRole(domain.UserRoleLandlord, domain.UserRoleAdmin), cfg.Tickets.EscalateTicket)

	protected := app.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	protected.Get("/notifications", cfg.Notifications.ListNotifications)
	protected.Post("/push-tokens", cfg.Notifications.RegisterPushToken)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireRole(domain.UserRoleAdmin))
	admin.Post("/escalation-sweep", cfg.Admin.TriggerSweep)
	admin.Get("/metrics", cfg.Admin.Metrics)
}
