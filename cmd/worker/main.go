package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toolrank-io/toolrank/internal/bootstrap"
	"github.com/toolrank-io/toolrank/internal/config"
	"github.com/toolrank-io/toolrank/internal/core/domain"
	"github.com/toolrank-io/toolrank/internal/observability/logging"
	"github.com/toolrank-io/toolrank/internal/observability/metrics"
)

const taskTimeout = 5 * time.Minute

func main() {
	cfg := config.Load()
	logger := logging.NewLogger("worker", cfg.LogLevel, cfg.LogFormat)

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

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", workerMetrics.Handler())
	metricsServer := &http.Server{
		Addr:        ":" + cfg.WorkerMetricsPort,
		Handler:     metricsMux,
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("worker metrics listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	if cfg.WorkerReindexOnStart {
		ids, err := app.ToolRepo.ListForReindex(ctx)
		if err != nil {
			logger.Error("list tools for reindex", "error", err)
		} else {
			enqueued := app.WorkerUC.ReindexAll(ctx, ids)
			logger.Info("startup reindex enqueued", "tools", len(ids), "enqueued", enqueued)
		}
	}

	handle := func(handlerCtx context.Context, task domain.SyncTask) error {
		taskType := string(task.Type)
		workerMetrics.StartTask(taskType)
		workerMetrics.ObserveQueueLag(taskType, time.Since(task.CreatedAt))

		processCtx, cancel := context.WithTimeout(handlerCtx, taskTimeout)
		defer cancel()

		started := time.Now()
		err := app.WorkerUC.Handle(processCtx, task)
		workerMetrics.FinishTask(taskType, time.Since(started), err)
		return err
	}

	logger.Info("worker subscribed", "subject", cfg.NATSSubject)
	subscribeErr := app.Queue.SubscribeSyncTasks(ctx, handle)

	logger.Info("worker stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)

	if subscribeErr != nil {
		logger.Error("subscribe sync tasks", "error", subscribeErr)
		app.Close()
		os.Exit(1)
	}
}
