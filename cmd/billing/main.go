package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/fx"

	"github.com/Abdullah2434/backend/docs"
	"github.com/Abdullah2434/backend/internal/pkg/config"
	"github.com/Abdullah2434/backend/internal/pkg/env"
	"github.com/Abdullah2434/backend/internal/pkg/router"
)

func main() {
	fx.New(
		fx.Provide(provideConfig),
		infraModule,
		billingModule,
		jobsModule,
		httpModule,
		fx.Invoke(startServer),
	).Run()
}

func provideConfig() (*config.Config, error) {
	if err := env.SetupEnvFile(); err != nil {
		if !errors.Is(err, env.ErrNoEnvFile) {
			return nil, err
		}
		log.Info("[App] No .env file, using process environment")
	}
	return config.Load()
}

// NewApplication builds the fiber app with the global middleware, the API
// docs and all routes.
func NewApplication(deps router.Deps) (*fiber.App, error) {
	if _, err := docs.Load(context.Background()); err != nil {
		return nil, err
	}

	app := fiber.New(fiber.Config{
		AppName:   "billing",
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath:    "/docs/api/",
		FileContent: docs.Spec,
		Path:        "v1",
		Title:       "Billing API",
	}))

	// ROUTER
	router.InstallRouter(app, deps)

	return app, nil
}

func startServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	addr := fmt.Sprintf("%s:%s", cfg.App.Host, cfg.App.Port)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Infof("[App] Listening on %s", addr)
				if err := app.Listen(addr); err != nil {
					log.Fatalf("[App] Server stopped: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("[App] Shutting down HTTP server")
			return app.ShutdownWithContext(ctx)
		},
	})
}
