package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Abdullah2434/backend/app/controllers"
	"github.com/Abdullah2434/backend/internal/pkg/config"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps are the handlers and settings the routers need.
type Deps struct {
	Webhooks      *controllers.WebhookController
	Subscriptions *controllers.SubscriptionController
	Health        *controllers.HealthController
	Gatherer      prometheus.Gatherer
	Auth          config.Auth
	// LimiterStorage backs the rate limiter; nil keeps counters in memory.
	LimiterStorage fiber.Storage
}

func InstallRouter(app *fiber.App, deps Deps) {
	// Public routes first so the webhook never passes the API limiter.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
