package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nugget/helloclaw/internal/api"
	"github.com/nugget/helloclaw/internal/buildinfo"
	"github.com/nugget/helloclaw/internal/connwatch"
)

// shutdownTimeout bounds how long in-flight requests may drain.
const shutdownTimeout = 15 * time.Second

// runServe handles the "helloclaw serve" subcommand. It wires the agent,
// starts the API server and blocks until SIGINT or SIGTERM, then drains
// in-flight requests before returning.
func runServe(ctx context.Context, stdout io.Writer, opts options) error {
	cfg, cfgPath, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, cfg)
	logger.Info("starting HelloClaw", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)
	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.LLM.DefaultModel,
		"workspace", cfg.Workspace.Path,
	)

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, a.agent, logger)
	server.SetEventBus(a.bus)
	server.SetSummarizer(a.summarizer)
	if a.usage != nil {
		server.SetUsageStore(a.usage)
	}

	// NotifyContext wraps the parent context so that SIGINT/SIGTERM
	// cancellation flows through the same ctx used by all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	watch := connwatch.NewManager(a.bus, logger)
	for name, client := range a.providers {
		watch.Watch(ctx, name, client.Ping, connwatch.DefaultSchedule())
	}
	defer watch.Stop()
	server.SetProviderWatch(watch)

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
	}()

	// Start blocks until the server is shut down or fails.
	if err := server.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}

	logger.Info("HelloClaw stopped")
	return nil
}
