package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/k11v/genbuild/internal/app"
	"github.com/k11v/genbuild/internal/metrics"
	"github.com/k11v/genbuild/internal/server"
	"github.com/k11v/genbuild/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

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

		shutdownTracer, err := telemetry.Setup(&cfg.Tracing, "genbuild-server", os.Stdout)
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

		srv := server.New(&cfg.Server, logger, services.Build, services, metrics.HTTPHandler(services.Registry))

		serveErr := make(chan error, 1)
		go func() {
			logger.Info("starting server", "addr", srv.Addr)
			serveErr <- srv.ListenAndServe()
		}()

		select {
		case err = <-serveErr:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("didn't serve", "error", err)
				return 1
			}
			return 0
		case <-ctx.Done():
		}

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err = srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("didn't shut down server", "error", err)
			return 1
		}

		return 0
	}
	os.Exit(run())
}
