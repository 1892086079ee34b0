// Package main provides the entrypoint for the fieldtour event worker. It
// consumes stop transition events from Pub/Sub and reports tour outcomes.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/fieldtour/fieldtour/internal/api/response"
	"github.com/fieldtour/fieldtour/internal/config"
	"github.com/fieldtour/fieldtour/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", "fieldtour-worker").
		Str("version", Version).
		Logger()

	log.Info().Str("build_time", BuildTime).Msg("starting fieldtour worker")

	if err := config.LoadDotEnv(); err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if !cfg.PublishingEnabled() {
		log.Fatal().Msg("PUBSUB_PROJECT_ID is required for the worker")
	}

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reporter := worker.NewReporter(log)
	consumer, err := worker.NewEventConsumer(ctx, worker.ConsumerConfig{
		ProjectID:        cfg.PubSubProjectID,
		SubscriptionName: cfg.PubSubSubscription,
		Handler:          reporter,
		Settings:         worker.DefaultConsumerSettings(),
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event consumer")
	}
	defer func() { _ = consumer.Close() }()

	// Worker also exposes health endpoint for Cloud Run
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]any{
			"status":  "healthy",
			"version": Version,
			"stats":   reporter.Stats(),
		})
	})
	r.Get("/tallies", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, reporter.Tallies())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Start health check server
	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	// Start consumer
	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("event consumer stopped")
			cancel()
		}
	}()

	// Wait for interrupt signal or consumer failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down worker")
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	stats := reporter.Stats()
	log.Info().
		Int("tours", stats.Tours).
		Int("completed", stats.Completed).
		Int("events", stats.Events).
		Msg("worker stopped")
}
