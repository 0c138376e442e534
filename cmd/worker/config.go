package main

import (
	"github.com/k11v/genbuild/internal/app"
)

// config holds the application configuration.
type config struct {
	app.Config
}

// parseConfig parses the application configuration from the environment variables
// and the optional .env file.
func parseConfig(environ []string) (*config, error) {
	var cfg config

	if err := app.ParseEnv(&cfg, environ, ".env"); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}
