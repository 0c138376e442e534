package action

import (
	"time"

	"github.com/google/uuid"
)

// Action is a logged unit of work with ordered steps.
type Action struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Steps     []*Step
}

type Step struct {
	ID          uuid.UUID
	ActionID    uuid.UUID
	CreatedAt   time.Time
	Message     string
	Status      StepStatus
	CompletedAt *time.Time
	Logs        []*Log
}

type Log struct {
	ID        uuid.UUID
	StepID    uuid.UUID
	CreatedAt time.Time
	Level     Level
	Message   string
	Meta      map[string]any
}

// StepStatus represents the step status as a string.
type StepStatus string

const (
	StepStatusRunning StepStatus = "running"
	StepStatusSuccess StepStatus = "success"
	StepStatusFailed  StepStatus = "failed"
)

var stepStatuses = map[StepStatus]struct{}{
	StepStatusRunning: {},
	StepStatusSuccess: {},
	StepStatusFailed:  {},
}

// StepStatusFromString converts a string to a StepStatus and checks if it is known.
func StepStatusFromString(s string) (status StepStatus, known bool) {
	status = StepStatus(s)
	_, known = stepStatuses[status]
	return status, known
}

// Level is the severity of a Log.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

var levels = map[Level]struct{}{
	LevelDebug:   {},
	LevelInfo:    {},
	LevelWarning: {},
	LevelError:   {},
}

// LevelFromString converts a string to a Level and checks if it is known.
func LevelFromString(s string) (level Level, known bool) {
	level = Level(s)
	_, known = levels[level]
	return level, known
}
