package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/claim-intake/internal/bootstrap"
	"github.com/kirillkom/claim-intake/internal/config"
	"github.com/kirillkom/claim-intake/internal/core/domain"
	"github.com/kirillkom/claim-intake/internal/observability/logging"
)

const serviceName = "claim-journal-worker"

func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker, err := bootstrap.NewWorker(ctx, cfg, serviceName, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer worker.Close()

	if cfg.WorkerMetricsPort != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", worker.Metrics.Handler())
		metricsServer := &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("worker_metrics_server_failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject+".>")
	err = worker.Events.SubscribeIntakeEvents(ctx, func(handlerCtx context.Context, event domain.IntakeEvent) error {
		recordCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()

		done := worker.Metrics.TrackEvent(event, time.Now())
		err := worker.Journal.Record(recordCtx, event)
		done(err)
		if err == nil {
			logger.Info("claim_recorded", "claim_id", event.ClaimID, "event", event.Type)
		}
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
