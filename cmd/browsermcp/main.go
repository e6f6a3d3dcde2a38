package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"browser-mcp/internal/di"
	"browser-mcp/internal/infrastructure/config"
	"browser-mcp/internal/infrastructure/env"
	"browser-mcp/internal/infrastructure/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "browser-mcp: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envService := env.NewEnvService()
	cfg, warnings := config.Load(envService)

	log, err := logger.NewLoggerAdapter(cfg.Logger)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	log.Info("Environment loaded", "app_env", envService.AppEnv(), "files", envService.Loaded())
	for _, w := range warnings {
		log.Warn("Invalid configuration value", "detail", w)
	}

	container, err := di.NewContainer(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Server starting",
		"browser", cfg.Browser.Type,
		"headless", cfg.Browser.Headless,
		"timeout", cfg.Browser.DefaultTimeout.String(),
	)
	serveErr := container.Server.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := container.Close(shutdownCtx); err != nil {
		log.Error("Browser shutdown failed", "error", err)
	}

	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		log.Error("Server stopped with error", "error", serveErr)
		return serveErr
	}
	log.Info("Server stopped")
	return nil
}
