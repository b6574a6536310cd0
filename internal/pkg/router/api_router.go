package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/Abdullah2434/backend/internal/pkg/middleware"
	"github.com/Abdullah2434/backend/internal/pkg/usercontext"
)

// ApiRouter serves the owner facing subscription API and the internal quota
// hook.
type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	subs := h.deps.Subscriptions

	limit := limiter.New(limiter.Config{
		Max:        60,
		Expiration: time.Minute,
		Storage:    h.deps.LimiterStorage,
		KeyGenerator: func(c *fiber.Ctx) string {
			if owner := usercontext.OwnerID(c); owner != "" {
				return "owner:" + owner
			}
			return c.IP()
		},
	})

	api := app.Group("/subscriptions", middleware.JWTAuth([]byte(h.deps.Auth.JWTSecret)), middleware.RequireOwner, limit)
	api.Get("/current", subs.HandleCurrent)
	api.Post("/", subs.HandleCreate)
	api.Post("/cancel", subs.HandleCancel)
	api.Post("/change-plan", subs.HandleChangePlan)
	api.Get("/usage", subs.HandleUsage)
	api.Get("/billing-records", subs.HandleBillingRecords)

	internal := app.Group("/internal", middleware.InternalAPIKey(h.deps.Auth.InternalAPIKey))
	internal.Post("/usage/videos", middleware.OwnerFromBody, subs.HandleConsumeVideo)
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}
