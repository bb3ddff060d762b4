// Package main provides the entry point for the research digest bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ironzo/arxiveparser/internal/access"
	"github.com/ironzo/arxiveparser/internal/bot"
	"github.com/ironzo/arxiveparser/internal/config"
	"github.com/ironzo/arxiveparser/internal/database"
	"github.com/ironzo/arxiveparser/internal/ledger"
	"github.com/ironzo/arxiveparser/internal/llm"
	"github.com/ironzo/arxiveparser/internal/observability"
	"github.com/ironzo/arxiveparser/internal/papersources/arxiv"
	"github.com/ironzo/arxiveparser/internal/pipeline"
	"github.com/ironzo/arxiveparser/internal/planner"
	"github.com/ironzo/arxiveparser/internal/repository"
	httpserver "github.com/ironzo/arxiveparser/internal/server/http"
	"github.com/ironzo/arxiveparser/internal/session"
	"github.com/ironzo/arxiveparser/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "bot").Logger()
	logger.Info().Msg("research digest bot starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("arxivbot")

	// Optional PostgreSQL archive.
	var (
		db      *database.DB
		archive pipeline.Archive
		reader  httpserver.ArchiveReader
		pinger  httpserver.Pinger
	)
	if cfg.Database.Enabled {
		db, err = database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()

		if cfg.Database.MigrationAutoRun {
			migrator, err := database.NewMigrator(db, cfg.Database.MigrationPath, logger)
			if err != nil {
				return fmt.Errorf("create migrator: %w", err)
			}
			defer func() {
				if closeErr := migrator.Close(); closeErr != nil {
					logger.Error().Err(closeErr).Msg("failed to close migrator")
				}
			}()
			if err := migrator.Up(); err != nil {
				return fmt.Errorf("run migrations: %w", err)
			}
		}

		archive = repository.NewRunArchive(db)
		reader = repository.NewPgArchive(db.Pool())
		pinger = db
	}

	// Processed-paper ledger.
	paperLedger, err := ledger.Open(cfg.Storage.LedgerPath, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if closeErr := paperLedger.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close ledger")
		}
	}()

	// Allow-list access controller.
	accessController, err := access.NewController(cfg.Telegram.AdminID, cfg.Storage.AllowlistPath, logger)
	if err != nil {
		return fmt.Errorf("load allow-list: %w", err)
	}

	// Text-generation client.
	generator, err := llm.NewClient(llm.FactoryConfig{
		Provider:    cfg.LLM.Provider,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
		MaxRetries:  cfg.LLM.MaxRetries,
		OpenAI: llm.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAI.APIKey,
			Model:   cfg.LLM.OpenAI.Model,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
		},
		Anthropic: llm.AnthropicConfig{
			APIKey:  cfg.LLM.Anthropic.APIKey,
			Model:   cfg.LLM.Anthropic.Model,
			BaseURL: cfg.LLM.Anthropic.BaseURL,
		},
	})
	if err != nil {
		return fmt.Errorf("create generation client: %w", err)
	}
	logger.Info().
		Str("provider", generator.Provider()).
		Str("model", generator.Model()).
		Msg("generation client initialized")

	// arXiv search and full-text client.
	arxivClient := arxiv.New(arxiv.Config{
		BaseURL:         cfg.ArXiv.BaseURL,
		FullTextBaseURL: cfg.ArXiv.HTMLBaseURL,
		Timeout:         cfg.ArXiv.Timeout,
		RateLimit:       cfg.ArXiv.RateLimit,
		MaxResults:      cfg.ArXiv.MaxResults,
	}, logger, metrics)

	// Paper pipeline with a process-wide concurrency gate.
	gate := pipeline.NewGate(int64(cfg.Pipeline.Concurrency))
	digestPipeline := pipeline.New(arxivClient, arxivClient, generator, paperLedger, archive, gate, logger, metrics)
	queryPlanner := planner.New(generator, logger, metrics)

	// Telegram transport.
	telegramClient := telegram.NewClient(telegram.Config{
		Token:          cfg.Telegram.Token,
		BaseURL:        cfg.Telegram.BaseURL,
		PollTimeout:    cfg.Telegram.PollTimeout,
		RequestTimeout: cfg.Telegram.RequestTimeout,
		SendRateLimit:  cfg.Telegram.SendRateLimit,
	}, logger, metrics)

	// Per-user sessions. Runs are anchored to the process context so a
	// finished digest can still be delivered after its triggering update
	// handler returns.
	factory := func(userID, chatID int64) *session.Session {
		return session.New(ctx, userID, chatID, queryPlanner, digestPipeline, telegramClient, accessController, logger, metrics)
	}
	dispatcher := bot.NewDispatcher(factory, accessController, telegramClient, logger, metrics)
	poller := bot.NewPoller(telegramClient, dispatcher, logger)

	// Operational HTTP server.
	opsServer := httpserver.NewServer(httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, pinger, reader, logger)

	errCh := make(chan error, 2)

	go func() {
		if err := opsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	go func() {
		logger.Info().Msg("polling for updates")
		if err := poller.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("poller error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := opsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	logger.Info().Msg("research digest bot stopped")
	return nil
}
