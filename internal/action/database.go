package action

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type Database interface {
	CreateStep(ctx context.Context, params *DatabaseCreateStepParams) (*Step, error)
	UpdateStep(ctx context.Context, params *DatabaseUpdateStepParams) (*Step, error)
	CreateLog(ctx context.Context, params *DatabaseCreateLogParams) (*Log, error)
	GetAction(ctx context.Context, params *DatabaseGetActionParams) (*Action, error)
}

type DatabaseCreateStepParams struct {
	ActionID uuid.UUID
	Message  string
	Status   StepStatus
}

type DatabaseUpdateStepParams struct {
	ID          uuid.UUID
	Status      StepStatus
	CompletedAt time.Time
}

type DatabaseCreateLogParams struct {
	StepID  uuid.UUID
	Level   Level
	Message string
	Meta    map[string]any
}

type DatabaseGetActionParams struct {
	ID uuid.UUID
}
