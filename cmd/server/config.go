package main

import (
	"github.com/k11v/genbuild/internal/app"
	"github.com/k11v/genbuild/internal/server"
)

// config holds the application configuration.
type config struct {
	app.Config
	Server server.Config `envPrefix:"SERVER_"`
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
	cfg.Server.Development = cfg.Development

	return &cfg, nil
}
