package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/k11v/genbuild/internal/build/operation"
)

// ErrInvalidMessage is returned by Handle for a payload it can't decode.
var ErrInvalidMessage = errors.New("invalid message")

type Runner interface {
	RunBuild(ctx context.Context, params *operation.RunBuildParams) error
}

var _ Runner = (*operation.Service)(nil)

type Handler struct {
	Runner Runner       // required
	Logger *slog.Logger // required
}

// Handle runs the build named by a CreateGeneratedAppMessage payload.
// A build that was already started is skipped without an error so the job is acknowledged.
func (h *Handler) Handle(ctx context.Context, payload json.RawMessage) error {
	var msg operation.CreateGeneratedAppMessage
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&msg); err != nil {
		return fmt.Errorf("%w: invalid body: %w", ErrInvalidMessage, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: invalid body: multiple top-level values", ErrInvalidMessage)
	}

	// Body field buildId.
	if msg.BuildID == uuid.Nil {
		return fmt.Errorf("%w: missing %s body field", ErrInvalidMessage, "buildId")
	}

	err := h.Runner.RunBuild(ctx, &operation.RunBuildParams{ID: msg.BuildID})
	if errors.Is(err, operation.ErrBuildAlreadyStarted) {
		h.Logger.Info("skipped started build", "build_id", msg.BuildID)
		return nil
	} else if err != nil {
		return fmt.Errorf("handle: %w", err)
	}

	return nil
}
