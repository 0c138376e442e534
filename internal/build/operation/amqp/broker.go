package amqp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rabbitmq/amqp091-go"

	"github.com/k11v/genbuild/internal/amqputil"
	"github.com/k11v/genbuild/internal/build/operation"
)

var _ operation.Broker = (*Broker)(nil)

type Broker struct {
	client *amqputil.Client // required
	logger *slog.Logger     // required
}

func NewBroker(connectionString string, logger *slog.Logger) *Broker {
	return &Broker{
		client: amqputil.NewClient(connectionString),
		logger: logger.With("component", "amqp_broker"),
	}
}

// QueueName maps a job name like "/generated-apps/" to a queue name like "generated-apps".
func QueueName(name string) string {
	return strings.Trim(name, "/")
}

// Queue implements operation.Broker.
// Messages are persistent JSON.
func (b *Broker) Queue(ctx context.Context, name string, payload any) error {
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(payload); err != nil {
		return fmt.Errorf("queue: %w", err)
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Body:         body.Bytes(),
	}
	if err := b.client.Publish(ctx, amqputil.DurableQueue(QueueName(name)), msg); err != nil {
		return fmt.Errorf("queue: %w", err)
	}

	return nil
}

// Consume implements operation.Broker.
// A delivery is acknowledged when handle succeeds.
// Otherwise it is rejected without requeueing so a poison message can't loop.
func (b *Broker) Consume(ctx context.Context, name string, handle operation.BrokerHandleFunc) error {
	queue := amqputil.DurableQueue(QueueName(name))

	err := b.client.Consume(ctx, queue, func(d amqp091.Delivery) {
		if err := handle(ctx, json.RawMessage(d.Body)); err != nil {
			b.logger.Error("didn't handle message", "queue", queue.Name, "error", err)
			if nackErr := d.Nack(false, false); nackErr != nil {
				b.logger.Error("didn't nack message", "queue", queue.Name, "error", nackErr)
			}
			return
		}
		if ackErr := d.Ack(false); ackErr != nil {
			b.logger.Error("didn't ack message", "queue", queue.Name, "error", ackErr)
		}
	})
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	return nil
}
