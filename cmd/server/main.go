// Command server runs the discovery and gamification engine API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/givehub/discovery-engine/internal/api/discovery"
	"github.com/givehub/discovery-engine/internal/cache"
	"github.com/givehub/discovery-engine/internal/config"
	"github.com/givehub/discovery-engine/internal/events"
	"github.com/givehub/discovery-engine/internal/repository"
	"github.com/givehub/discovery-engine/internal/service/badges"
	"github.com/givehub/discovery-engine/internal/service/leaderboard"
	"github.com/givehub/discovery-engine/internal/service/points"
	"github.com/givehub/discovery-engine/internal/service/preferences"
	"github.com/givehub/discovery-engine/internal/service/recommend"
	"github.com/givehub/discovery-engine/internal/service/scheduler"
	"github.com/givehub/discovery-engine/internal/service/trending"
	"github.com/givehub/discovery-engine/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	log := logger.Get()

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("Server exited with error")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Storage
	db, err := repository.NewDB(&cfg.Database.Postgres, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := db.AutoMigrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	redisCache, err := cache.NewRedisCache(&cfg.Database.Redis, log)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer func() { _ = redisCache.Close() }()

	// Repositories
	txRepo := repository.NewTransactionRepository(db)
	aggRepo := repository.NewAggregateRepository(db)
	badgeRepo := repository.NewBadgeRepository(db)
	itemRepo := repository.NewItemRepository(db)
	userRepo := repository.NewUserRepository(db)

	if cfg.Badges.CatalogPath != "" {
		catalog, err := badges.LoadCatalog(cfg.Badges.CatalogPath)
		if err != nil {
			return fmt.Errorf("failed to load badge catalog: %w", err)
		}
		if err := badgeRepo.SeedCatalog(catalog); err != nil {
			return fmt.Errorf("failed to seed badge catalog: %w", err)
		}
		log.Info().Int("badges", len(catalog)).Str("path", cfg.Badges.CatalogPath).Msg("Badge catalog seeded")
	}

	// Events and services
	bus := events.NewBus(log.Component("events"))
	defer func() { _ = bus.Close() }()

	pointsService := points.NewService(txRepo, aggRepo, bus, cfg.Leveling, log.Component("points"))
	badgeService := badges.NewService(badgeRepo, txRepo, pointsService, log.Component("badges"))
	if err := badgeService.Subscribe(ctx, bus); err != nil {
		return fmt.Errorf("failed to subscribe badge service: %w", err)
	}

	leaderboardService := leaderboard.NewService(aggRepo, txRepo, userRepo, badgeRepo, log.Component("leaderboard"))
	trendingService := trending.NewService(
		itemRepo,
		txRepo,
		userRepo,
		redisCache,
		nil,
		time.Duration(cfg.Trending.CacheTTL)*time.Second,
		log.Component("trending"),
	)
	preferenceService := preferences.NewService(txRepo, itemRepo, userRepo, log.Component("preferences"))
	recommendationService := recommend.NewService(
		itemRepo,
		txRepo,
		userRepo,
		aggRepo,
		preferenceService,
		trendingService,
		log.Component("recommend"),
	)

	reconciliation, err := scheduler.New(cfg.Scheduler, pointsService, log.Component("scheduler"))
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}
	reconciliation.Start()
	defer reconciliation.Stop()

	// HTTP server
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := discovery.NewHandler(
		leaderboardService,
		trendingService,
		recommendationService,
		preferenceService,
		badgeService,
		pointsService,
		log.Component("api"),
	)
	handler.RegisterRoutes(router)

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}
	router.GET("/health", func(c *gin.Context) {
		if err := db.Health(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": err.Error()})
			return
		}
		if err := redisCache.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("environment", cfg.Server.Environment).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	log.Info().Msg("Server stopped")
	return nil
}
