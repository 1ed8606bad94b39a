package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"

	"github.com/ManuelReschke/CourseFox/app/controllers"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the handlers and settings the routes need.
type Dependencies struct {
	SessionStore *session.Store
	Billing      *controllers.BillingController
	Auth         *controllers.AuthController
	Queue        *controllers.QueueController
	// BeginAuth starts an OAuth flow (gothfiber.BeginAuthHandler).
	BeginAuth    fiber.Handler

	MetricsUser     string
	MetricsPassword string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// HttpRouter installs the UserContext middleware the API routes rely on,
	// so it goes first.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
