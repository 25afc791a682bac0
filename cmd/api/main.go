package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/KianaMei/genqueue/internal/adapter/repo"
	"github.com/KianaMei/genqueue/internal/db"
	"github.com/KianaMei/genqueue/internal/events"
	"github.com/KianaMei/genqueue/internal/http/handlers"
	"github.com/KianaMei/genqueue/internal/http/httpapi"
	"github.com/KianaMei/genqueue/internal/infra"
	"github.com/KianaMei/genqueue/internal/infra/geoip"
	"github.com/KianaMei/genqueue/internal/middleware"
	"github.com/KianaMei/genqueue/internal/orchestrator"
	"github.com/KianaMei/genqueue/internal/persist"
	"github.com/KianaMei/genqueue/internal/provider"
	"github.com/KianaMei/genqueue/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}

	generations := repo.NewGenerationRepository(pool)
	outputs := repo.NewOutputRepository(pool)
	credentials := repo.NewCredentialRepository(pool)

	registry := provider.NewRegistry(
		[]provider.Config{
			{ID: "fal", Type: provider.TypeQueue, Enabled: cfg.FalEnabled, Endpoint: cfg.FalEndpoint, APIKey: cfg.FalAPIKey},
			{ID: "openai", Type: provider.TypePlaceholder, Enabled: true},
		},
		map[provider.Type]provider.Adapter{
			provider.TypeQueue:       provider.NewQueueAdapter(provider.QueueOptions{Endpoint: cfg.FalEndpoint, Logger: &logger}),
			provider.TypePlaceholder: provider.NewPlaceholderAdapter(),
		},
		credentials,
	)

	broadcaster := events.NewBroadcaster(logger)
	persister := persist.NewPersister(persist.Options{
		HTTPClient:  &http.Client{Timeout: cfg.DownloadTimeout},
		Store:       fileStore,
		Outputs:     outputs,
		Broadcaster: broadcaster,
		Logger:      logger,
	})

	orch := orchestrator.New(orchestrator.Options{
		Registry:     registry,
		Generations:  generations,
		Outputs:      outputs,
		Persister:    persister,
		Broadcaster:  broadcaster,
		Store:        fileStore,
		Logger:       logger,
		PollInterval: cfg.PollInterval,
	})
	if err := orch.Reconcile(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to reconcile orphaned generations")
	}

	var countryLookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		countryLookup = resolver.CountryCode
	}

	app := handlers.NewApp(orch, credentials, broadcaster, logger)
	router := httpapi.NewRouter(app, cfg, logger, countryLookup)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
