package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-booking-service/internal/api/http/handlers"
	"github.com/spec-kit/queue-booking-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Auth           *handlers.AuthHandler
	Users          *handlers.UsersHandler
	Bookings       *handlers.BookingsHandler
	Queue          *handlers.QueueHandler
	Windows        *handlers.WindowsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	authenticated := cfg.AuthMiddleware.Handle
	admin := auth.RequireAdmin()

	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", authenticated, admin, cfg.Health.Metrics)

	api := app.Group("/api")

	api.Post("/auth/login", cfg.Auth.Login)
	api.Get("/auth/me", authenticated, cfg.Auth.Me)
	api.Post("/setup/create-admin", cfg.Auth.CreateAdmin)

	users := api.Group("/users", authenticated, admin)
	users.Get("/", cfg.Users.List)
	users.Post("/", cfg.Users.Create)
	users.Get("/:id", cfg.Users.Get)
	users.Put("/:id", cfg.Users.Update)
	users.Delete("/:id", cfg.Users.Delete)

	api.Post("/bookings", cfg.Bookings.Create)
	bookings := api.Group("/bookings", authenticated)
	bookings.Get("/", cfg.Bookings.List)
	bookings.Get("/dashboard", cfg.Bookings.Dashboard)
	bookings.Post("/next-waiting", cfg.Bookings.NextWaiting)
	bookings.Get("/:id", cfg.Bookings.Get)
	bookings.Post("/:id/start", cfg.Bookings.Start)
	bookings.Post("/:id/complete", cfg.Bookings.Complete)
	bookings.Post("/:id/cancel", cfg.Bookings.Cancel)
	bookings.Post("/:id/reset", cfg.Bookings.Reset)
	bookings.Put("/:id/window", cfg.Bookings.UpdateWindow)
	bookings.Put("/:id/notes", cfg.Bookings.UpdateNotes)

	queue := api.Group("/queue")
	queue.Get("/status", cfg.Queue.Status)
	queue.Post("/update-serving", authenticated, cfg.Queue.UpdateServing)
	queue.Get("/ws", cfg.Queue.Upgrade, cfg.Queue.Stream())

	windows := api.Group("/windows", authenticated)
	windows.Get("/", cfg.Windows.List)
	windows.Post("/", admin, cfg.Windows.Create)
	windows.Post("/assign", cfg.Windows.Assign)
	windows.Post("/release", cfg.Windows.Release)
	windows.Get("/user/:userId", cfg.Windows.ForUser)
	windows.Put("/:id", admin, cfg.Windows.Update)
	windows.Get("/:id/staff", cfg.Windows.Staff)
}
