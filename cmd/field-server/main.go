// Command field-server runs the HTTP field extraction service.
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

	"github.com/joho/godotenv"

	"github.com/docufield/field-extractor/internal/api"
	"github.com/docufield/field-extractor/internal/config"
	"github.com/docufield/field-extractor/internal/extract"
	"github.com/docufield/field-extractor/internal/llm"
	"github.com/docufield/field-extractor/internal/observability"
	"github.com/docufield/field-extractor/internal/pdf"
	"github.com/docufield/field-extractor/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to YAML configuration file")
	flag.Parse()

	// Ignore error if .env doesn't exist.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		ServiceName: "field-server",
	})

	if cfg.Extraction.APIKey == "" {
		logger.Warn().Msg("OPENAI_API_KEY not set, extraction calls will degrade to empty results")
	}

	docStore, err := store.Open(cfg.Database.Path, cfg.Database.JournalMode, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open document store")
	}
	defer docStore.Close()

	renderer := pdf.NewRenderer(cfg.Render.Scale)
	client := llm.NewClient(cfg.Extraction, logger)
	svc := extract.NewService(renderer, client, docStore, logger)
	server := api.NewServer(cfg, svc, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info().Str("addr", addr).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
}
