package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/coupon-groups/internal/cache"
	"github.com/fairyhunter13/coupon-groups/internal/config"
	"github.com/fairyhunter13/coupon-groups/internal/events"
	"github.com/fairyhunter13/coupon-groups/internal/handler"
	"github.com/fairyhunter13/coupon-groups/internal/metrics"
	"github.com/fairyhunter13/coupon-groups/internal/renewal"
	"github.com/fairyhunter13/coupon-groups/internal/repository"
	"github.com/fairyhunter13/coupon-groups/internal/service"
	"github.com/fairyhunter13/coupon-groups/internal/tracing"
	"github.com/fairyhunter13/coupon-groups/internal/validator"
	"github.com/fairyhunter13/coupon-groups/pkg/database"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	initLogger(cfg)

	ctx := context.Background()

	if cfg.Tracing.JaegerEndpoint != "" {
		tp, err := tracing.InitTracerProvider(cfg.Tracing.ServiceName, cfg.Tracing.JaegerEndpoint, cfg.Tracing.SampleRatio)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize tracing")
		}
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to flush traces")
			}
		}()
	}

	// Redemptions and the renewal journal use separate pools so journal
	// writes commit even while every main connection holds a row lock.
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	journalPool, err := database.NewPool(ctx, cfg.DB.JournalDSN(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect journal pool")
	}

	if cfg.DB.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
	}

	m := metrics.New()

	// Repositories
	groupRepo := repository.NewGroupRepository(pool)
	itemRepo := repository.NewItemRepository(pool)
	usageRepo := repository.NewUsageRepository(pool)
	keyRepo := repository.NewKeyRepository(pool)
	journalRepo := repository.NewJournalRepository(journalPool)

	var statsCache service.StatsCache
	if cfg.Redis.Addr != "" {
		rdb := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer func() {
			_ = rdb.Close()
		}()
		statsCache = cache.NewStatsCache(rdb, cfg.Redis.StatsTTL)
	}

	opts := []service.RedemptionOption{
		service.WithLockTimeout(cfg.DB.LockTimeout()),
		service.WithMetrics(m),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close event publisher")
			}
		}()
		opts = append(opts, service.WithPublisher(publisher))
	}

	// Services
	reporting := service.NewReportingService(itemRepo, usageRepo, statsCache)
	catalog := service.NewCatalogService(groupRepo, itemRepo, reporting, cfg.Coupon.GroupsPerPage, cfg.Coupon.ItemsPerPage)
	issuance := service.NewIssuanceService(catalog, nil, m)
	redemption := service.NewRedemptionService(service.RedemptionDeps{
		Pool:    pool,
		Groups:  groupRepo,
		Items:   itemRepo,
		Usages:  usageRepo,
		Ledger:  repository.NewBalanceRepository(),
		Keys:    keyRepo,
		Renewer: renewal.NewClient(cfg.Renewal.BaseURL, cfg.Renewal.Timeout, cfg.Renewal.MaxRetries),
		Journal: journalRepo,
	}, opts...)

	reconcileCtx, stopReconciler := context.WithCancel(ctx)
	reconcilerDone := make(chan struct{})
	go func() {
		defer close(reconcilerDone)
		redemption.RunReconciler(reconcileCtx, cfg.Coupon.ReconcileInterval, cfg.Coupon.ReconcileAfter)
	}()

	app := fiber.New(fiber.Config{
		AppName:      "Coupon Groups",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New())

	validate := validator.New()
	groupHandler := handler.NewGroupHandler(catalog, issuance, reporting, validate)
	redemptionHandler := handler.NewRedemptionHandler(redemption, validate)
	healthHandler := handler.NewHealthHandler(map[string]handler.Pinger{
		"database": pool,
		"journal":  journalPool,
	})

	app.Get("/health", healthHandler.Check)
	app.Get("/metrics", m.Handler())

	api := app.Group("/api")
	api.Post("/groups", groupHandler.CreateGroup)
	api.Get("/groups", groupHandler.ListGroups)
	api.Get("/groups/:id", groupHandler.GetGroup)
	api.Delete("/groups/:id", groupHandler.DeleteGroup)
	api.Post("/groups/:id/items", groupHandler.AddItem)
	api.Post("/groups/:id/issue", groupHandler.IssueItems)
	api.Get("/groups/:id/stats", groupHandler.GetStats)
	api.Post("/redemptions/inspect", redemptionHandler.Inspect)
	api.Post("/redemptions", redemptionHandler.Redeem)

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	stopReconciler()
	select {
	case <-reconcilerDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("reconciler did not stop before shutdown timeout")
	}

	// Close pools after the server and reconciler are done with them
	log.Info().Msg("closing database connections...")
	pool.Close()
	journalPool.Close()
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
