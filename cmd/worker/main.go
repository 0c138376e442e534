package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/k11v/genbuild/internal/app"
	"github.com/k11v/genbuild/internal/telemetry"
)

func main() {
	run := func() int {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg, err := parseConfig(os.Environ())
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}

		logger := app.NewLogger(os.Stderr, cfg.Development)

		shutdownTracer, err := telemetry.Setup(&cfg.Tracing, "genbuild-worker", os.Stdout)
		if err != nil {
			logger.Error("didn't set up tracing", "error", err)
			return 1
		}
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error("didn't shut down tracing", "error", err)
			}
		}()

		services, err := app.NewServices(ctx, &cfg.Config, logger)
		if err != nil {
			logger.Error("didn't create services", "error", err)
			return 1
		}
		defer services.Close()

		worker := &Worker{
			Broker: services.Broker,
			Runner: services.Build,
			Logger: logger.With("component", "worker"),
		}

		logger.Info("starting worker", "broker", cfg.Broker)
		if err = worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("didn't run worker", "error", err)
			return 1
		}

		logger.Info("stopped worker")
		return 0
	}
	os.Exit(run())
}
