package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/CourseFox/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Dependencies
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1", middleware.RequireAPISessionAuth)

	billing := v1.Group("/billing")
	billing.Get("/status", h.deps.Billing.HandleStatus)
	billing.Post("/resync", h.deps.Billing.HandleResync)
	billing.Post("/checkout", h.deps.Billing.HandleCheckout)
	billing.Post("/subscriptions/:id/cancel", h.deps.Billing.HandleCancelSubscription)
	billing.Post("/subscriptions/:id/resume", h.deps.Billing.HandleResumeSubscription)
}
