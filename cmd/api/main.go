package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/toolrank-io/toolrank/internal/adapters/http"
	"github.com/toolrank-io/toolrank/internal/bootstrap"
	"github.com/toolrank-io/toolrank/internal/config"
	"github.com/toolrank-io/toolrank/internal/observability/logging"
	"github.com/toolrank-io/toolrank/internal/observability/metrics"
)

func main() {
	cfg := config.Load()
	logger := logging.NewLogger("api", cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := httpadapter.ValidateOpenAPISpec(ctx); err != nil {
		logger.Error("openapi contract invalid", "error", err)
		os.Exit(1)
	}

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

	httpMetrics := metrics.NewAPIMetrics("api")
	router := httpadapter.NewRouter(cfg, logger, httpMetrics, app.SearchUC, app.CatalogUC, app.CatalogUC, app.CatalogUC)

	server := &http.Server{
		Handler:      router.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		logger.Error("listen", "port", cfg.APIPort, "error", err)
		app.Close()
		os.Exit(1)
	}
	if cfg.APIMaxConnections > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConnections)
	}

	go func() {
		logger.Info("api listening", "addr", listener.Addr().String())
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api shutdown", "error", err)
	}
}
