package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-chat/internal/api/http/handlers"
	"github.com/spec-kit/support-chat/internal/auth"
	"github.com/spec-kit/support-chat/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health        *handlers.HealthHandler
	Conversations *handlers.ConversationsHandler
	Realtime      *handlers.RealtimeHandler
	Gateway       *auth.Gateway
}

// RegisterRoutes wires HTTP and websocket routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/debug/metrics", cfg.Health.Metrics)

	conversations := app.Group("/conversations", cfg.Gateway.Handle)
	conversations.Post("/", auth.RequireRole(domain.RoleCustomer), cfg.Conversations.Create)
	conversations.Post("/:id/accept", auth.RequireRole(domain.RoleAgent), cfg.Conversations.Accept)
	conversations.Post("/:id/close", auth.RequireRole(domain.RoleAgent), cfg.Conversations.Close)

	ws := app.Group("/ws", cfg.Gateway.Handle, cfg.Realtime.Upgrade)
	ws.Get("/chat/:conversation_id", cfg.Realtime.Conversation())
	ws.Get("/supervisor", cfg.Realtime.Supervisor())
	ws.Get("/agent/:agent_id", cfg.Realtime.Agent())
}
