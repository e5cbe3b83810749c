package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/it-helpdesk/internal/api/http/handlers"
	"github.com/spec-kit/it-helpdesk/internal/auth"
	"github.com/spec-kit/it-helpdesk/internal/functions"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Tickets        *handlers.TicketsHandler
	Admin          *handlers.AdminHandler
	Realtime       *handlers.RealtimeHandler
	Functions      *handlers.FunctionsHandler // nil when functions run elsewhere
	AuthMiddleware *auth.AuthMiddleware
	// RecoveryLimit throttles the unauthenticated password recovery routes.
	RecoveryLimit RateLimit
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	authGroup := app.Group("/auth")
	authGroup.Post("/signup", cfg.Auth.SignUp)
	authGroup.Post("/signin", cfg.Auth.SignIn)
	authGroup.Post("/signout", cfg.Auth.SignOut)

	recovery := rateLimiter(cfg.RecoveryLimit)
	authGroup.Post("/otp/verify", recovery, cfg.Auth.VerifyCode)
	authGroup.Post("/password/forgot", recovery, cfg.Auth.ForgotPassword)
	authGroup.Post("/password/reset", recovery, cfg.Auth.ResetPassword)

	protected := authGroup.Group("", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	protected.Get("/session", cfg.Auth.Session)
	protected.Post("/password/change", cfg.Auth.ChangePassword)

	tickets := app.Group("/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	tickets.Post("/", cfg.Tickets.SubmitTicket)
	tickets.Get("/", cfg.Tickets.ListTickets)
	tickets.Post("/profile", cfg.Tickets.EnsureProfile)
	tickets.Get("/:id/attachments", cfg.Tickets.ListAttachments)

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	admin.Get("/tickets", cfg.Admin.ListTickets)
	admin.Get("/tickets/export.csv", cfg.Admin.ExportTickets)
	admin.Get("/tickets/:id/history", cfg.Admin.History)
	admin.Post("/tickets/:id/:action", cfg.Admin.ApplyAction)
	admin.Get("/users", cfg.Admin.ListUsers)
	admin.Post("/users", cfg.Admin.CreateUser)
	admin.Get("/metrics", cfg.Health.Metrics)

	app.Get("/realtime/tickets", cfg.AuthMiddleware.Handle, auth.RequireAnyRole(), cfg.Realtime.Tickets)

	if cfg.Functions != nil {
		app.Post(functions.NotificationPath, cfg.Functions.RequireKey, cfg.Functions.SendNotification)
		app.Post(functions.CreateUserPath, cfg.Functions.RequireKey, cfg.Functions.CreateUser)
	}
}
