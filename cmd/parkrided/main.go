package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"parkride-insights-backend/config"
	"parkride-insights-backend/internal/aggregate"
	"parkride-insights-backend/internal/api"
	"parkride-insights-backend/internal/collector"
	"parkride-insights-backend/internal/db"
	"parkride-insights-backend/internal/insights"
	"parkride-insights-backend/internal/model"
	"parkride-insights-backend/internal/notification"
	"parkride-insights-backend/internal/store"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	if lvl, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}
	log.Info().Str("path", configPath).Msg("configuration loaded")

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize database")
	}
	if err := db.SyncFacilities(gormDB, cfg.Facilities); err != nil {
		log.Fatal().Err(err).Msg("failed to sync facility reference data")
	}

	sampleStore, err := store.NewCSVStore(cfg.Storage.DataDir, cfg.Storage.Rollover)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.Storage.DataDir).Msg("failed to open sample store")
	}

	var webpushOptions *webpush.Options
	var workerPool *notification.WorkerPool
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			log.Fatal().Msg("push is enabled but VAPID keys are not configured")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		workerPool = notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	collectorSvc, err := collector.NewService(cfg, sampleStore, workerPool)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize collector")
	}
	go collectorSvc.Run(ctx)

	loc, err := cfg.Collector.Location()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load timezone")
	}

	facilities := make([]model.Facility, 0, len(cfg.Facilities))
	for _, f := range cfg.Facilities {
		facilities = append(facilities, model.Facility{
			ID:     f.ID,
			Name:   f.Name,
			Spots:  f.Spots,
			Suburb: f.Suburb,
		})
	}

	insightsWriter := insights.NewWriter(cfg.Aggregation.InsightsPath)
	aggregator := aggregate.New(sampleStore, cfg, loc)
	runner := aggregate.NewRunner(aggregator, insightsWriter, facilities,
		cfg.Aggregation.Interval, cfg.Aggregation.RunOnStart)
	go runner.Run(ctx)

	handler := api.NewHandler(gormDB, sampleStore, insightsWriter, webpushOptions, loc)
	router := api.NewRouter(&cfg.Server, handler)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutdown signal received, stopping services")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("HTTP server shutdown failed")
	}
	log.Info().Msg("server gracefully stopped")
}
