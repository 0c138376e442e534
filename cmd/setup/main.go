package main

import (
	"context"
	"fmt"
	"os"

	"github.com/k11v/genbuild/internal/app"
)

func main() {
	ctx := context.Background()

	var cfg app.Config
	if err := app.ParseEnv(&cfg, os.Environ(), ".env"); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(os.Stderr, cfg.Development)

	if err := app.Setup(ctx, &cfg); err != nil {
		logger.Error("didn't set up", "error", err)
		os.Exit(1)
	}

	logger.Info("set up postgres and s3")
	os.Exit(0)
}
