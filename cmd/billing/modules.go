package main

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"

	"github.com/Abdullah2434/backend/app/controllers"
	"github.com/Abdullah2434/backend/internal/pkg/billing"
	"github.com/Abdullah2434/backend/internal/pkg/cache"
	"github.com/Abdullah2434/backend/internal/pkg/config"
	"github.com/Abdullah2434/backend/internal/pkg/database"
	"github.com/Abdullah2434/backend/internal/pkg/jobqueue"
	"github.com/Abdullah2434/backend/internal/pkg/router"
)

var infraModule = fx.Module("infra",
	fx.Provide(
		provideDB,
		provideCache,
		provideRegistry,
	),
)

var billingModule = fx.Module("billing",
	fx.Provide(
		provideLocker,
		provideStore,
		provideCatalog,
		provideProvider,
		provideMetrics,
		billing.NewLedger,
		billing.NewQuota,
		billing.NewFallback,
		billing.NewEngine,
		billing.NewService,
	),
)

var jobsModule = fx.Module("jobs",
	fx.Provide(provideSweeper),
	fx.Invoke(startJobs),
)

var httpModule = fx.Module("http",
	fx.Provide(
		func(cfg *config.Config) config.Billing { return cfg.Billing },
		controllers.NewWebhookController,
		controllers.NewSubscriptionController,
		provideHealth,
		provideRouterDeps,
		NewApplication,
	),
)

// provideDB returns nil when the store is kept in memory.
func provideDB(lc fx.Lifecycle, cfg *config.Config) (*gorm.DB, error) {
	if cfg.Store.Backend == "memory" {
		return nil, nil
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.StopHook(func() error {
		return database.Close(db)
	}))
	return db, nil
}

// provideCache returns nil when nothing uses the cache server.
func provideCache(lc fx.Lifecycle, cfg *config.Config) *redis.Client {
	if cfg.Lock.Backend != "redis" {
		return nil
	}
	client := cache.NewClient(context.Background(), cfg.Cache)
	lc.Append(fx.StopHook(client.Close))
	return client
}

func provideRegistry() (*prometheus.Registry, prometheus.Gatherer) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, reg
}

func provideMetrics(reg *prometheus.Registry) *billing.Metrics {
	return billing.NewMetrics(reg)
}

func provideLocker(cfg *config.Config, client *redis.Client) billing.Locker {
	if client == nil {
		log.Warn("[Billing] Using in-process locks; run a single instance only")
		return billing.NewInMemoryLocker()
	}
	return billing.NewRedisLocker(client, cfg.Lock.TTL)
}

func provideStore(db *gorm.DB) billing.Store {
	if db == nil {
		log.Warn("[Billing] Using in-memory store; state is lost on restart")
		return billing.NewMemoryStore()
	}
	return billing.NewGormStore(db)
}

func provideCatalog(cfg *config.Config) (*billing.Catalog, error) {
	plans := billing.DefaultPlans()
	if cfg.Billing.PlansFile != "" {
		loaded, err := billing.LoadPlansFile(cfg.Billing.PlansFile)
		if err != nil {
			return nil, err
		}
		plans = loaded
	}
	plans = billing.WithPrices(plans, cfg.Billing.PlanPrices)
	for _, p := range plans {
		if p.PriceID == "" {
			log.Warnf("[Billing] Plan %s has no provider price id; it cannot be purchased", p.ID)
		}
	}
	return billing.NewCatalog(plans)
}

func provideProvider(cfg *config.Config) billing.Provider {
	return billing.NewStripeProvider(cfg.Billing.StripeSecretKey)
}

func provideSweeper(cfg *config.Config, store billing.Store, engine *billing.Engine) *billing.Sweeper {
	return billing.NewSweeper(store, engine, cfg.Billing.SweepGrace, cfg.Billing.SweepBatch)
}

func startJobs(lc fx.Lifecycle, cfg *config.Config, sweeper *billing.Sweeper) {
	manager := jobqueue.NewManager(jobqueue.Task{
		Name:     "subscription sweep",
		Interval: cfg.Billing.SweepInterval,
		Run: func(ctx context.Context) error {
			changed, err := sweeper.Sweep(ctx)
			if changed > 0 {
				log.Infof("[Sweep] %d subscriptions resynced", changed)
			}
			return err
		},
	})
	lc.Append(fx.StartStopHook(manager.Start, manager.Stop))
}

func provideHealth(db *gorm.DB, client *redis.Client) *controllers.HealthController {
	checks := map[string]controllers.Pinger{}
	if db != nil {
		checks["database"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}
	}
	if client != nil {
		checks["cache"] = func(ctx context.Context) error {
			return cache.Healthy(ctx, client)
		}
	}
	return controllers.NewHealthController(checks)
}

func provideRouterDeps(
	cfg *config.Config,
	webhooks *controllers.WebhookController,
	subs *controllers.SubscriptionController,
	health *controllers.HealthController,
	gatherer prometheus.Gatherer,
	client *redis.Client,
) (router.Deps, error) {
	deps := router.Deps{
		Webhooks:      webhooks,
		Subscriptions: subs,
		Health:        health,
		Gatherer:      gatherer,
		Auth:          cfg.Auth,
	}
	if client != nil {
		storage, err := router.NewLimiterStorage(cfg.Cache)
		if err != nil {
			return router.Deps{}, err
		}
		deps.LimiterStorage = storage
	}
	return deps, nil
}
