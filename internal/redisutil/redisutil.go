package redisutil

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Config holds the connection settings read from GENBUILD_REDIS_* variables.
type Config struct {
	URL string `env:"URL"`
}

// NewClient connects to the Redis server at url, like redis://localhost:6379/0,
// and checks the connection.
func NewClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("new client: %w", err)
	}

	client := redis.NewClient(opt)
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("new client: %w", err)
	}

	return client, nil
}
