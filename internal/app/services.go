package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/k11v/genbuild/internal/action"
	actionpg "github.com/k11v/genbuild/internal/action/pg"
	"github.com/k11v/genbuild/internal/build/operation"
	operationamqp "github.com/k11v/genbuild/internal/build/operation/amqp"
	operationpg "github.com/k11v/genbuild/internal/build/operation/pg"
	operationredis "github.com/k11v/genbuild/internal/build/operation/redis"
	operations3 "github.com/k11v/genbuild/internal/build/operation/s3"
	entitypg "github.com/k11v/genbuild/internal/entity/pg"
	"github.com/k11v/genbuild/internal/generate"
	"github.com/k11v/genbuild/internal/metrics"
	"github.com/k11v/genbuild/internal/postgresutil"
	"github.com/k11v/genbuild/internal/redisutil"
)

// Services holds the long-lived dependencies of a binary.
type Services struct {
	Build    *operation.Service
	Actions  *action.Service
	Broker   operation.Broker
	Registry *prometheus.Registry

	pool    *pgxpool.Pool
	closers []func()
}

// NewServices connects to Postgres and the configured broker and builds the build service.
// Close must be called when the services are no longer needed.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new services: %w", err)
	}

	s := &Services{}

	pool, err := postgresutil.NewPool(ctx, cfg.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("new services: %w", err)
	}
	s.pool = pool
	s.closers = append(s.closers, pool.Close)

	broker, err := s.newBroker(ctx, cfg, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("new services: %w", err)
	}
	s.Broker = broker

	s.Registry = prometheus.NewRegistry()
	s.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	entities := entitypg.NewDatabase(pool)
	s.Actions = action.NewService(actionpg.NewDatabase(pool), logger)
	s.Build = &operation.Service{
		Database:  operationpg.NewDatabase(pool),
		Storage:   operations3.NewStorage(cfg.S3.ConnectionString),
		Broker:    broker,
		Actions:   s.Actions,
		Entities:  entities,
		AppRoles:  entities,
		Generator: generate.NewGenerator(),
		Recorder:  metrics.NewPrometheusRecorder(s.Registry),
		Logger:    logger,
	}

	return s, nil
}

func (s *Services) newBroker(ctx context.Context, cfg *Config, logger *slog.Logger) (operation.Broker, error) {
	switch cfg.Broker {
	case BrokerRedis:
		client, err := redisutil.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		return operationredis.NewBroker(client, logger), nil
	default:
		return operationamqp.NewBroker(cfg.AMQP.ConnectionString, logger), nil
	}
}

// Ping checks that Postgres is reachable.
func (s *Services) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connections in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}
