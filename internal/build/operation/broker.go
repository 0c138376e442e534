package operation

import (
	"context"
	"encoding/json"
)

// Broker dispatches jobs to workers.
// Queue returns once the broker accepted the message and never waits for the job.
type Broker interface {
	Queue(ctx context.Context, name string, payload any) error
	Consume(ctx context.Context, name string, handle BrokerHandleFunc) error
}

// BrokerHandleFunc handles the raw payload of a job.
// Returning an error makes the message eligible for redelivery or dead-lettering,
// depending on the broker.
type BrokerHandleFunc func(ctx context.Context, payload json.RawMessage) error
