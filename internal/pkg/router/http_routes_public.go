package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuelReschke/CourseFox/internal/pkg/middleware"
)

func (h HttpRouter) registerOperatorRoutes(app *fiber.App) {
	if h.deps.MetricsUser == "" || h.deps.MetricsPassword == "" {
		return
	}
	auth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			h.deps.MetricsUser: h.deps.MetricsPassword,
		},
	})

	app.Get("/metrics", auth, adaptor.HTTPHandler(promhttp.Handler()))
	app.Get("/monitor", auth, monitor.New())
	if h.deps.Queue != nil {
		app.Get("/jobs/stats", auth, h.deps.Queue.HandleQueueStats)
	}
}

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Auth
	app.Get("/login", h.deps.Auth.HandleLogin)
	app.Post("/logout", middleware.RequireAuth, h.deps.Auth.HandleLogout)

	// Social OAuth
	app.Get("/auth/:provider", h.deps.BeginAuth)
	app.Get("/auth/:provider/callback", h.deps.Auth.HandleOAuthCallback)

	// Post-checkout return from the provider
	app.Get("/billing/success", middleware.RequireAuth, h.deps.Billing.HandleCheckoutSuccess)
}
