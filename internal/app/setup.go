package app

import (
	"context"
	"fmt"

	"github.com/k11v/genbuild/internal/postgresprovision"
	"github.com/k11v/genbuild/internal/s3util"
)

// Setup migrates the database and creates the bucket.
// It can be run repeatedly.
func Setup(ctx context.Context, cfg *Config) error {
	if err := postgresprovision.Setup(cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("setup: postgres: %w", err)
	}

	if err := s3util.Setup(ctx, s3util.NewClient(cfg.S3.ConnectionString)); err != nil {
		return fmt.Errorf("setup: s3: %w", err)
	}

	return nil
}
