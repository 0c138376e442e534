package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/k11v/genbuild/internal/build/operation"
)

type Worker struct {
	Broker operation.Broker // required
	Runner Runner           // required
	Logger *slog.Logger     // required

	retries int
}

// Run consumes generation jobs until ctx is done.
// A lost broker connection is retried with a growing wait.
func (w *Worker) Run(ctx context.Context) error {
	handler := &Handler{Runner: w.Runner, Logger: w.Logger}

	for {
		w.Logger.Info("starting consuming")
		consumeErr := w.Broker.Consume(ctx, operation.CreateGeneratedAppPath, func(ctx context.Context, payload json.RawMessage) error {
			w.Logger.Info("received message")
			err := handler.Handle(ctx, payload)
			w.Logger.Info("handled message")
			if w.retries > 0 {
				w.Logger.Info("recovered", "retries", w.retries)
				w.retries = 0
			}
			return err
		})
		if err := ctx.Err(); err != nil {
			return err
		}
		w.Logger.Error("didn't consume", "error", consumeErr)

		w.retries++
		select {
		case <-time.After(retryWaitDuration(w.retries - 1)):
		case <-ctx.Done():
			return ctx.Err()
		}
		w.Logger.Info("retrying", "retries", w.retries)
	}
}

// retryWaitDuration calculates the wait duration for a retry.
// It is calculated using exponential backoff with jitter.
// It grows with each retry and stops growing after thirteenth retry
// where it is chosen from the the interval (32.4s, 97.4s).
// The first retry number is 0, the thirteenth is 12.
func retryWaitDuration(retry int) time.Duration {
	n := min(retry, 12)
	second := int(time.Second)

	// start with 0.5s
	duration := second / 2

	// multiply by 1.5 to the power of n
	for i := 0; i < n; i++ {
		duration /= 2
		duration *= 3
	}

	// add or subtract up to 50%
	jitter := rand.IntN(duration) - duration/2
	duration += jitter

	return time.Duration(duration)
}
