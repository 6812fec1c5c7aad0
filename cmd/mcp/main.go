package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/toolrank-io/toolrank/internal/adapters/mcp"
	"github.com/toolrank-io/toolrank/internal/bootstrap"
	"github.com/toolrank-io/toolrank/internal/config"
	"github.com/toolrank-io/toolrank/internal/observability/logging"
)

var version = "dev"

func main() {
	cfg := config.Load()
	// Stdout carries the MCP protocol; all logging goes to stderr.
	logger := logging.NewStderrLogger("mcp", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tunables, err := config.LoadTunables(cfg.TunablesPath)
	if err != nil {
		logger.Error("load tunables", "error", err)
		os.Exit(1)
	}

	app, err := bootstrap.New(ctx, cfg, tunables, logger)
	if err != nil {
		logger.Error("bootstrap", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	srv := mcpadapter.NewServer(
		version,
		app.SearchUC,
		app.CatalogUC,
		cfg.SearchDefaultLimit,
		time.Duration(cfg.SearchTimeoutSeconds)*time.Second,
	)

	logger.Info("mcp server listening on stdio", "version", version)
	stdio := server.NewStdioServer(srv)
	if err := stdio.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server", "error", err)
		app.Close()
		os.Exit(1)
	}
}
