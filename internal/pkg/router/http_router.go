package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HttpRouter serves the unauthenticated routes: provider webhooks, health,
// metrics and the plan catalog.
type HttpRouter struct {
	deps Deps
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", h.deps.Health.HandleHealth)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{})))

	// Provider webhooks, signature-verified in the controller
	app.Post("/webhooks/billing", h.deps.Webhooks.HandleBillingWebhook)

	app.Get("/plans", h.deps.Subscriptions.HandlePlans)
}

func NewHttpRouter(deps Deps) *HttpRouter {
	return &HttpRouter{deps: deps}
}
