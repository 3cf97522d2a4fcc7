package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/claim-intake/internal/config"
	"github.com/kirillkom/claim-intake/internal/core/domain"
	"github.com/kirillkom/claim-intake/internal/core/ports"
	"github.com/kirillkom/claim-intake/internal/core/usecase"
	"github.com/kirillkom/claim-intake/internal/infrastructure/claimsapi"
	"github.com/kirillkom/claim-intake/internal/infrastructure/imagefile"
	"github.com/kirillkom/claim-intake/internal/infrastructure/queue/nats"
	"github.com/kirillkom/claim-intake/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/claim-intake/internal/infrastructure/resilience"
	"github.com/kirillkom/claim-intake/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/claim-intake/internal/infrastructure/textstream"
	"github.com/kirillkom/claim-intake/internal/observability/metrics"
)

// App is the intake side shared by the HTTP API and the CLI.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.HTTPServerMetrics

	Intake  *usecase.IntakeUseCase
	Samples ports.SampleCatalog

	closeFn func()
}

func New(cfg config.Config, service string, logger *slog.Logger, intakeOpts ...usecase.IntakeOption) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	httpMetrics := metrics.NewHTTPServerMetrics(service)
	intakeMetrics := metrics.NewIntakeMetrics(service, httpMetrics.Registerer())

	resCfg := resilienceConfig(cfg)
	executorOpts := []resilience.Option{
		resilience.WithLogger(logger),
		resilience.WithStateObserver(intakeMetrics.ObserveBreakerTransition),
	}
	galleryCfg := resCfg
	galleryCfg.RetryMaxAttempts = cfg.SamplesRetryMaxAttempts

	client := claimsapi.New(claimsapi.Options{
		DescriptionURL:     cfg.DescriptionURL,
		DescriptionModelID: cfg.DescriptionModelID,
		DescriptionPrompt:  cfg.DescriptionPrompt,
		TriageURL:          cfg.TriageURL,
		SamplesURL:         cfg.SamplesURL,
		SampleImageBaseURL: cfg.SampleImageBaseURL,
		Timeout:            time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
		MaxImageBytes:      cfg.MaxImageBytes,
		SubmitExecutor:     resilience.NewExecutor(resilience.SingleAttempt(resCfg), executorOpts...),
		GalleryExecutor:    resilience.NewExecutor(galleryCfg, executorOpts...),
	})

	evidence, err := localfs.New(cfg.EvidencePath)
	if err != nil {
		return nil, fmt.Errorf("init evidence storage: %w", err)
	}

	opts := []usecase.IntakeOption{
		usecase.WithLogger(logger),
		usecase.WithRecorder(intakeMetrics),
		usecase.WithEvidenceStore(evidence),
	}
	closeFn := func() {}
	if cfg.EventsEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(resCfg, executorOpts...),
			Logger:             logger,
		})
		if err != nil {
			return nil, fmt.Errorf("init event publisher: %w", err)
		}
		opts = append(opts, usecase.WithEventPublisher(queue))
		closeFn = queue.Close
	}
	opts = append(opts, intakeOpts...)

	intake := usecase.NewIntakeUseCase(
		claimsapi.NewDescriber(client),
		textstream.Splitter{BufferSize: cfg.StreamBufferBytes},
		claimsapi.NewTriageAgent(client),
		usecase.NewNotificationScheduler(notificationSpecs(cfg)),
		opts...,
	)

	return &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: httpMetrics,

		Intake:  intake,
		Samples: claimsapi.NewSampleGallery(client),

		closeFn: closeFn,
	}, nil
}

// LoadImage reads a local file as an uploaded claim image.
func (a *App) LoadImage(path string) (domain.SourceImage, error) {
	return imagefile.Load(path, a.Config.MaxImageBytes)
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

// Worker is the claim journal: it consumes intake events and persists them.
type Worker struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.WorkerMetrics

	Events  ports.IntakeEventSubscriber
	Journal ports.ClaimJournal

	closeFn func()
}

func NewWorker(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewClaimRecordRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{Logger: logger})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	return &Worker{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.NewWorkerMetrics(service),

		Events:  queue,
		Journal: usecase.NewClaimJournalUseCase(repo),

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (w *Worker) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.BreakerEnabled = cfg.BreakerEnabled
	if cfg.BreakerMinRequests > 0 {
		out.BreakerMinRequests = uint32(cfg.BreakerMinRequests)
	}
	if cfg.BreakerFailureRatio > 0 {
		out.BreakerFailureRatio = cfg.BreakerFailureRatio
	}
	if cfg.BreakerOpenTimeout > 0 {
		out.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	}
	if cfg.BreakerHalfOpenMaxCalls > 0 {
		out.BreakerHalfOpenMaxCalls = uint32(cfg.BreakerHalfOpenMaxCalls)
	}
	return out
}

func notificationSpecs(cfg config.Config) []usecase.NotificationSpec {
	specs := usecase.DefaultNotificationSpecs()
	delays := []time.Duration{cfg.NotifyReviewDelay, cfg.NotifyPanelDelay, cfg.NotifyDismissDelay}
	for i := range specs {
		if i < len(delays) && delays[i] > 0 {
			specs[i].Delay = delays[i]
		}
	}
	return specs
}
