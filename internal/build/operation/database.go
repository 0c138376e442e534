package operation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/k11v/genbuild/internal/action"
	"github.com/k11v/genbuild/internal/build"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a build doesn't have the status a write expects.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Database is the only writer of build records.
type Database interface {
	CreateBuild(ctx context.Context, params *DatabaseCreateBuildParams) (*build.Build, error)
	GetBuild(ctx context.Context, params *DatabaseGetBuildParams) (*build.Build, error)
	ListBuilds(ctx context.Context, params *DatabaseListBuildsParams) (*DatabaseListBuildsResult, error)
	UpdateBuild(ctx context.Context, params *DatabaseUpdateBuildParams) (*build.Build, error)
}

// DatabaseCreateBuildParams describes a build and the action created with it.
// The action, its steps and their logs are stored together with the build.
type DatabaseCreateBuildParams struct {
	CreatedAt time.Time
	UserID    uuid.UUID
	AppID     uuid.UUID
	Version   string
	Message   string
	Status    build.Status

	EntityVersionIDs []uuid.UUID
	BlockVersionIDs  []uuid.UUID

	ActionSteps []*DatabaseCreateBuildActionStep
}

type DatabaseCreateBuildActionStep struct {
	Message     string
	Status      action.StepStatus
	CompletedAt *time.Time
	Logs        []*DatabaseCreateBuildActionLog
}

type DatabaseCreateBuildActionLog struct {
	Level   action.Level
	Message string
	Meta    map[string]any
}

type DatabaseGetBuildParams struct {
	ID uuid.UUID
}

// DatabaseListBuildsParams filters builds by app and user.
// A nil filter matches every build.
type DatabaseListBuildsParams struct {
	AppID      *uuid.UUID
	UserID     *uuid.UUID
	PageLimit  int
	PageOffset int
}

type DatabaseListBuildsResult struct {
	Builds         []*build.Build
	NextPageOffset *int // zero value (nil) means no more pages
	TotalSize      int
}

// DatabaseUpdateBuildParams sets Status only while the build still has FromStatus.
type DatabaseUpdateBuildParams struct {
	ID         uuid.UUID
	Status     build.Status
	FromStatus build.Status // required
}
