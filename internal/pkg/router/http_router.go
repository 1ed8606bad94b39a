package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CourseFox/internal/pkg/middleware"
)

type HttpRouter struct {
	deps Dependencies
}

func NewHttpRouter(deps Dependencies) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Provider webhooks carry no session; the signature is verified in the controller.
	app.Post("/webhooks/stripe", h.deps.Billing.HandleWebhook)

	h.registerOperatorRoutes(app)

	// Apply UserContext middleware to everything below
	app.Use(middleware.UserContext(h.deps.SessionStore))

	h.registerPublicRoutes(app)
}
