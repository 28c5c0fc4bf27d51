package main

// Package main is the entry point for the insight service.
//
// Responsibilities:
//   - Load and validate configuration from YAML and environment variables
//   - Open the SQLite store and run schema migrations
//   - Wire the LLM client, conversation memory, analytics and chat services
//   - Start the REST API, WebSocket handler, and Prometheus metrics endpoint
//   - Implement graceful shutdown with context cancellation

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/analyticsai/insight-service/internal/analytics"
	"github.com/analyticsai/insight-service/internal/cache"
	"github.com/analyticsai/insight-service/internal/chat"
	"github.com/analyticsai/insight-service/internal/config"
	"github.com/analyticsai/insight-service/internal/insight"
	"github.com/analyticsai/insight-service/internal/llm"
	"github.com/analyticsai/insight-service/internal/logging"
	"github.com/analyticsai/insight-service/internal/memory"
	"github.com/analyticsai/insight-service/internal/server"
	"github.com/analyticsai/insight-service/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx := context.Background()

	manager := config.NewManager(configPath)
	if err := manager.Load(ctx); err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := manager.Validate(ctx); err != nil {
		return err
	}
	cfg := manager.Get(ctx)

	logger, err := logging.New(cfg)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer logger.Sync()

	// Config file edits are picked up for observability; wired components
	// keep the settings they started with.
	go func() {
		for updated := range manager.Watch(ctx) {
			logger.Info("configuration file changed",
				zap.String("log_level", updated.Logging.Level),
				zap.String("llm_model", updated.LLM.Model))
		}
	}()

	st, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	kv := cache.NewLRU(cfg.Memory.CacheSize, time.Duration(cfg.Memory.CacheTTLSeconds)*time.Second)
	mem := memory.NewStore(cfg.Memory.Window, kv, logger)

	gen := llm.NewClient(llm.ClientConfig{
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: float32(cfg.LLM.Temperature),
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}, logger)

	llmTimeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second
	composer := insight.NewComposer(gen, logger, llmTimeout, cfg.Analytics.ForecastHorizonDays)
	analyticsSvc := analytics.NewService(st, composer, logger, cfg.Analytics.QueryLimit)
	sessions := chat.NewSessionManager(st, mem, logger)
	classifier := chat.NewQueryClassifier(gen, logger, llmTimeout)
	chatSvc := chat.NewService(st, mem, sessions, classifier, analyticsSvc, composer, gen, logger, llmTimeout)

	srv := server.New(cfg, analyticsSvc, chatSvc, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case sig := <-sigCh:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}
