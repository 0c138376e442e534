package amqputil

import (
	"context"
	"errors"

	"github.com/rabbitmq/amqp091-go"
)

// ErrDeliveryChannelClosed is returned by Consume when the broker closed the channel.
var ErrDeliveryChannelClosed = errors.New("delivery channel is closed")

// Config holds the connection settings read from GENBUILD_AMQP_* variables.
type Config struct {
	ConnectionString string `env:"CONNECTION_STRING"`
}

type QueueDeclareParams struct {
	Name       string
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
	Args       amqp091.Table
}

// DurableQueue returns the parameters of a durable queue that survives broker restarts.
func DurableQueue(name string) *QueueDeclareParams {
	return &QueueDeclareParams{Name: name, Durable: true}
}

type Client struct {
	connectionString string
}

func NewClient(connectionString string) *Client {
	return &Client{connectionString: connectionString}
}

// Publish declares the queue and proxies [amqp091.Channel.PublishWithContext]
// to the default exchange with the queue name as routing key.
func (cli *Client) Publish(ctx context.Context, queue *QueueDeclareParams, msg amqp091.Publishing) error {
	conn, err := amqp091.Dial(cli.connectionString)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := declareQueue(ch, queue)
	if err != nil {
		return err
	}

	return ch.PublishWithContext(ctx,
		"",     // exchange
		q.Name, // routing key
		false,  // mandatory
		false,  // immediate
		msg,    // message
	)
}

// Consume declares the queue and calls handle for each delivery, one at a time.
// handle must acknowledge or reject the delivery.
// Consume returns when ctx is done or the connection is lost.
func (cli *Client) Consume(ctx context.Context, queue *QueueDeclareParams, handle func(d amqp091.Delivery)) error {
	conn, err := amqp091.Dial(cli.connectionString)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	q, err := declareQueue(ch, queue)
	if err != nil {
		return err
	}

	if err = ch.Qos(1, 0, false); err != nil {
		return err
	}

	deliveries, err := ch.ConsumeWithContext(ctx,
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return err
	}

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				return ErrDeliveryChannelClosed
			}
			handle(d)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func declareQueue(ch *amqp091.Channel, params *QueueDeclareParams) (amqp091.Queue, error) {
	return ch.QueueDeclare(
		params.Name,
		params.Durable,
		params.AutoDelete,
		params.Exclusive,
		params.NoWait,
		params.Args,
	)
}
