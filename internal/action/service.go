package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// StepFunc does the work of a step. Returning an error fails the step.
type StepFunc func(ctx context.Context, step *Step) error

type Service struct {
	database Database     // required
	logger   *slog.Logger // required
	now      func() time.Time
}

func NewService(database Database, logger *slog.Logger) *Service {
	return &Service{
		database: database,
		logger:   logger.With("component", "action"),
		now:      time.Now,
	}
}

// Run adds a running step with message to the action and calls f.
// The step is completed as successful when f returns nil.
// Otherwise the error is logged to the step, the step is completed as failed
// and the error of f is returned.
func (s *Service) Run(ctx context.Context, actionID uuid.UUID, message string, f StepFunc) error {
	step, err := s.database.CreateStep(ctx, &DatabaseCreateStepParams{
		ActionID: actionID,
		Message:  message,
		Status:   StepStatusRunning,
	})
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	if stepErr := f(ctx, step); stepErr != nil {
		// The step error is what the caller needs.
		// Bookkeeping errors are only logged.
		if err = s.Log(ctx, step, LevelError, stepErr.Error(), nil); err != nil {
			s.logger.Error("didn't log step error", "step_id", step.ID, "error", err)
		}
		if err = s.Complete(ctx, step, StepStatusFailed); err != nil {
			s.logger.Error("didn't complete step", "step_id", step.ID, "error", err)
		}
		return stepErr
	}

	if err = s.Complete(ctx, step, StepStatusSuccess); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	return nil
}

func (s *Service) LogInfo(ctx context.Context, step *Step, message string) error {
	return s.Log(ctx, step, LevelInfo, message, nil)
}

func (s *Service) Log(ctx context.Context, step *Step, level Level, message string, meta map[string]any) error {
	if meta == nil {
		meta = map[string]any{}
	}
	l, err := s.database.CreateLog(ctx, &DatabaseCreateLogParams{
		StepID:  step.ID,
		Level:   level,
		Message: message,
		Meta:    meta,
	})
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}
	step.Logs = append(step.Logs, l)
	return nil
}

var ErrStepAlreadyCompleted = errors.New("step already completed")

// Complete sets the final status of a running step.
func (s *Service) Complete(ctx context.Context, step *Step, status StepStatus) error {
	if step.Status != StepStatusRunning {
		return fmt.Errorf("complete: %w", ErrStepAlreadyCompleted)
	}
	updated, err := s.database.UpdateStep(ctx, &DatabaseUpdateStepParams{
		ID:          step.ID,
		Status:      status,
		CompletedAt: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("complete: %w", err)
	}
	step.Status = updated.Status
	step.CompletedAt = updated.CompletedAt
	return nil
}

// GetAction returns the action with its steps and logs.
func (s *Service) GetAction(ctx context.Context, id uuid.UUID) (*Action, error) {
	a, err := s.database.GetAction(ctx, &DatabaseGetActionParams{ID: id})
	if err != nil {
		return nil, fmt.Errorf("get action: %w", err)
	}
	return a, nil
}
