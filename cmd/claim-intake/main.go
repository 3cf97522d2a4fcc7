package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kirillkom/claim-intake/internal/adapters/cli"
	"github.com/kirillkom/claim-intake/internal/bootstrap"
	"github.com/kirillkom/claim-intake/internal/config"
	"github.com/kirillkom/claim-intake/internal/core/domain"
	"github.com/kirillkom/claim-intake/internal/core/usecase"
	"github.com/kirillkom/claim-intake/internal/observability/logging"
)

const serviceName = "claim-intake-cli"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cli.NewRootCommand(newRuntime)
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRuntime(_ context.Context, listener func(domain.ClaimView)) (*cli.Runtime, error) {
	cfg := config.Load()
	// stdout carries the rendered claim; logs go to stderr.
	logger := logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel)

	var opts []usecase.IntakeOption
	if listener != nil {
		opts = append(opts, usecase.WithViewListener(listener))
	}
	app, err := bootstrap.New(cfg, serviceName, logger, opts...)
	if err != nil {
		return nil, err
	}
	return &cli.Runtime{
		Intake:    app.Intake,
		Samples:   app.Samples,
		LoadImage: app.LoadImage,
		Close:     app.Close,
	}, nil
}
