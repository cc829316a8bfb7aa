package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pageshot-ai/pageshot/api"
	"github.com/pageshot-ai/pageshot/cache"
	"github.com/pageshot-ai/pageshot/capture"
	"github.com/pageshot-ai/pageshot/config"
	"github.com/pageshot-ai/pageshot/engine"
	"github.com/pageshot-ai/pageshot/pipeline"
	"github.com/pageshot-ai/pageshot/prompt"
	"github.com/pageshot-ai/pageshot/record"
	"github.com/pageshot-ai/pageshot/storage"
	"github.com/pageshot-ai/pageshot/vlm"
)

func main() {
	cfg := config.Load()

	initLogger(cfg.Log)
	slog.Info("pageshot starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"engines", cfg.Capture.Engines,
		"provider", cfg.VLM.Provider,
	)

	// Browser engines, in fallback order.
	engines, err := engine.Build(cfg.Capture.Engines, cfg.Browser)
	if err != nil {
		slog.Error("failed to initialise engines", "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, e := range engines {
			e.Close()
		}
	}()
	engineNames := make([]string, len(engines))
	for i, e := range engines {
		engineNames[i] = e.Name()
	}

	memory := engine.NewMemory(cfg.Capture.EngineMemoryTTL)
	defer memory.Stop()

	// Vision inference client.
	client, err := vlm.New(cfg.VLM, nil)
	if err != nil {
		slog.Error("failed to initialise inference client", "error", err)
		os.Exit(1)
	}

	// Persistence.
	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		slog.Error("failed to initialise storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Pipeline wiring.
	stage := capture.NewStage(engines, memory, cfg.Capture)
	prompts := prompt.NewRegistry(cfg.VLM.DefaultKind)
	validator := record.NewValidator()
	extractor := pipeline.NewExtractor(client, prompts, cfg.VLM.Timeout)
	p := pipeline.New(stage, extractor, validator, store, cfg.Capture.PipelineRetry)
	orchestrator := pipeline.NewOrchestrator(p, cfg.Batch.Concurrency)

	cc := cache.New(cfg.Cache.MaxEntries)

	startTime := time.Now()
	router := api.NewRouter(p, orchestrator, validator, cfg, cc, engineNames, startTime)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	slog.Info("pageshot stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
