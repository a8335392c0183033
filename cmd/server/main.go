package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/taxgest/internal/api"
	"github.com/dgallion1/taxgest/internal/config"
	"github.com/dgallion1/taxgest/internal/extract"
	"github.com/dgallion1/taxgest/internal/pdfsplit"
	"github.com/dgallion1/taxgest/internal/pipeline"
	"github.com/dgallion1/taxgest/internal/store"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		slog.Error("invalid arguments", "error", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	level, _ := config.ParseLevel(cfg.LogLevel)
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	st, err := store.Open(cfg.StorePath, log)
	if err != nil {
		log.Error("open record store", "path", cfg.StorePath, "error", err)
		os.Exit(1)
	}
	claude := extract.NewClaudeClient(extract.ClaudeConfig{
		APIKey:          cfg.AnthropicAPIKey,
		Model:           cfg.AnthropicModel,
		BaseURL:         cfg.AnthropicBaseURL,
		MaxTokens:       cfg.AnthropicMaxTokens,
		Timeout:         cfg.LLMTimeout,
		RatePerMinute:   cfg.LLMRatePerMinute,
		BreakerFailures: cfg.LLMBreakerFailures,
	}, log)

	// Initialize pipeline.
	extractor := pipeline.NewExtractor(pipeline.ExtractorConfig{
		Capability:        claude,
		Splitter:          pdfsplit.New(log),
		ClassifyThreshold: cfg.ClassifyThreshold,
		MaxPagesPerCall:   cfg.MaxPagesPerCall,
	}, log)
	orch := pipeline.NewOrchestrator(cfg, extractor, st, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, claude, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		orch.Stop()
		claude.Close()
	}()

	log.Info("starting taxgest",
		"port", cfg.Port,
		"model", cfg.AnthropicModel,
		"workers", cfg.WorkerCount,
		"store", cfg.StorePath,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-stopped
	log.Info("stopped")
}
