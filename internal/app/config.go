// Package app wires the genbuild components together for the binaries in cmd.
package app

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/k11v/genbuild/internal/amqputil"
	"github.com/k11v/genbuild/internal/postgresutil"
	"github.com/k11v/genbuild/internal/redisutil"
	"github.com/k11v/genbuild/internal/s3util"
	"github.com/k11v/genbuild/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by genbuild.
const EnvPrefix = "GENBUILD_"

const (
	BrokerAMQP  = "amqp"
	BrokerRedis = "redis"
)

var ErrUnknownBroker = errors.New("unknown broker")

// Config holds the configuration shared by the binaries.
// It is usually embedded into a binary's own config struct.
type Config struct {
	Development bool   `env:"DEVELOPMENT"`
	Broker      string `env:"BROKER" envDefault:"amqp"` // amqp or redis

	Postgres postgresutil.Config `envPrefix:"POSTGRES_"`
	S3       s3util.Config       `envPrefix:"S3_"`
	AMQP     amqputil.Config     `envPrefix:"AMQP_"`
	Redis    redisutil.Config    `envPrefix:"REDIS_"`
	Tracing  telemetry.Config    `envPrefix:"TRACING_"`
}

// Validate checks the settings that depend on each other.
func (c *Config) Validate() error {
	switch c.Broker {
	case BrokerAMQP:
		if c.AMQP.ConnectionString == "" {
			return fmt.Errorf("missing %sAMQP_CONNECTION_STRING for broker %q", EnvPrefix, c.Broker)
		}
	case BrokerRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("missing %sREDIS_URL for broker %q", EnvPrefix, c.Broker)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBroker, c.Broker)
	}
	return nil
}

// ParseEnv parses cfg from environ.
// Variables from the dotenv files fill in what environ lacks; missing files are skipped.
// Names are prefixed with EnvPrefix.
func ParseEnv(cfg any, environ []string, dotenvFiles ...string) error {
	m := env.ToMap(environ)

	for _, name := range dotenvFiles {
		fileEnv, err := godotenv.Read(name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return fmt.Errorf("parse env: %w", err)
		}
		for k, v := range fileEnv {
			if _, ok := m[k]; !ok {
				m[k] = v
			}
		}
	}

	err := env.ParseWithOptions(cfg, env.Options{
		Environment: m,
		Prefix:      EnvPrefix,
	})
	if err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	return nil
}
