// Package main provides the entry point for the citation exploration HTTP server.
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

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/citegraph"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/config"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/engine"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/gemini"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/negcache"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/observability"
	httpserver "github.com/Robs-Git-Hub/citation-compass-discover/internal/server/http"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/store"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/topics"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().Msg("citation-compass-discover server starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(cfg.Metrics.Namespace)

	// Open the negative-result cache and drop entries past their TTL.
	cache, err := negcache.Open(negcache.Config{
		Path:           cfg.Cache.Path,
		InMemory:       cfg.Cache.InMemory,
		ExpirationDays: cfg.Cache.ExpirationDays,
	}, logger, metrics)
	if err != nil {
		return fmt.Errorf("open negative cache: %w", err)
	}
	defer func() {
		if closeErr := cache.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close negative cache")
		}
	}()

	if swept, err := cache.SweepExpired(ctx); err != nil {
		logger.Warn().Err(err).Msg("negative cache sweep failed")
	} else if swept > 0 {
		logger.Info().Int("swept", swept).Msg("expired negative cache entries removed")
	}

	// Citation graph API client.
	graphClient := citegraph.NewClient(citegraph.Config{
		BaseURL:            cfg.GraphAPI.BaseURL,
		APIKey:             cfg.GraphAPI.APIKey,
		Timeout:            cfg.GraphAPI.Timeout,
		MinInterval:        cfg.GraphAPI.MinInterval,
		MaxRetries:         cfg.GraphAPI.MaxRetries,
		PageSize:           cfg.GraphAPI.PageSize,
		SearchRetryCeiling: cfg.GraphAPI.SearchRetryCeiling,
		SearchMaxDelay:     cfg.GraphAPI.SearchMaxDelay,
	}, logger, metrics)

	// Enrichment API client. The credential is not configured here; each
	// request carries its own key and nothing is retained between calls.
	geminiClient := gemini.NewClient(gemini.Config{
		BaseURL:       cfg.Enrichment.BaseURL,
		AbstractModel: cfg.Enrichment.AbstractModel,
		TopicsModel:   cfg.Enrichment.TopicsModel,
		Timeout:       cfg.Enrichment.Timeout,
		MaxRetries:    cfg.Enrichment.MaxRetries,
		RetryMinDelay: cfg.Enrichment.RetryMinDelay,
		RetryMaxDelay: cfg.Enrichment.RetryMaxDelay,
	}, logger)

	st := store.New()

	eng := engine.New(engine.Config{
		FirstDegreeLimit:  cfg.GraphAPI.FirstDegreeLimit,
		SecondDegreeLimit: cfg.GraphAPI.SecondDegreeLimit,
		EnrichDelay:       cfg.Enrichment.TaskDelay,
	}, graphClient, geminiClient, cache, st, logger, metrics)
	defer eng.Close()

	topicsSvc := topics.New(geminiClient, st, logger)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * time.Minute,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Metrics: httpserver.MetricsConfig{
			Enabled: cfg.Metrics.Enabled,
			Path:    cfg.Metrics.Path,
		},
	}
	httpSrv := httpserver.NewServer(httpCfg, graphClient, eng, topicsSvc, st, logger)

	// Channel to collect server errors.
	errCh := make(chan error, 1)

	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	logger.Info().
		Str("http_address", httpCfg.Address).
		Msg("citation-compass-discover is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
		return err
	}

	logger.Info().Msg("citation-compass-discover stopped")
	return nil
}
