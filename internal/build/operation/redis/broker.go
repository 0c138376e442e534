// Package redis dispatches jobs through Redis lists.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/k11v/genbuild/internal/build/operation"
)

var _ operation.Broker = (*Broker)(nil)

// popTimeout bounds a single blocking pop so Consume notices a done context.
const popTimeout = 5 * time.Second

type Broker struct {
	client *redis.Client // required
	logger *slog.Logger  // required
}

func NewBroker(client *redis.Client, logger *slog.Logger) *Broker {
	return &Broker{
		client: client,
		logger: logger.With("component", "redis_broker"),
	}
}

// QueueKey maps a job name like "/generated-apps/" to a list key like "queue:generated-apps".
func QueueKey(name string) string {
	return "queue:" + strings.Trim(name, "/")
}

// FailedQueueKey is where messages go when their handler fails.
func FailedQueueKey(name string) string {
	return QueueKey(name) + ":failed"
}

// Queue implements operation.Broker.
func (b *Broker) Queue(ctx context.Context, name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}

	if err = b.client.RPush(ctx, QueueKey(name), data).Err(); err != nil {
		return fmt.Errorf("queue: %w", err)
	}

	return nil
}

// Consume implements operation.Broker.
// It handles messages one at a time until ctx is done.
// A message whose handler fails is moved to FailedQueueKey.
func (b *Broker) Consume(ctx context.Context, name string, handle operation.BrokerHandleFunc) error {
	key := QueueKey(name)

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("consume: %w", err)
		}

		result, err := b.client.BLPop(ctx, popTimeout, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		} else if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("consume: %w", ctxErr)
			}
			return fmt.Errorf("consume: %w", err)
		}

		// result is [key, value].
		data := result[1]
		if err = handle(ctx, json.RawMessage(data)); err != nil {
			b.logger.Error("didn't handle message", "queue", key, "error", err)
			pushCtx := context.WithoutCancel(ctx)
			if pushErr := b.client.RPush(pushCtx, FailedQueueKey(name), data).Err(); pushErr != nil {
				b.logger.Error("didn't move message to failed queue", "queue", key, "error", pushErr)
			}
		}
	}
}
