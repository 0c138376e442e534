package operation

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/k11v/genbuild/internal/action"
	"github.com/k11v/genbuild/internal/entity"
)

// CreateGeneratedAppPath is the name of the job that generates the app of a build.
const CreateGeneratedAppPath = "/generated-apps/"

// ActionMessage is the message of the action step that runs the generation.
const ActionMessage = "Generating Application"

// EntitiesInclude is what the generation reads alongside the build entities.
var EntitiesInclude = entity.Include{
	Fields: true,
	Permissions: &entity.PermissionsInclude{
		Roles:  true,
		Fields: true,
	},
}

// CreateGeneratedAppMessage is the payload of the CreateGeneratedAppPath job.
type CreateGeneratedAppMessage struct {
	BuildID uuid.UUID `json:"buildId"`
}

// InitialStep returns the step every build action starts with.
// It is created already completed because it records the queueing, not the generation.
func InitialStep(version, message string, now time.Time) *DatabaseCreateBuildActionStep {
	return &DatabaseCreateBuildActionStep{
		Message:     "Adding task to queue",
		Status:      action.StepStatusSuccess,
		CompletedAt: &now,
		Logs: []*DatabaseCreateBuildActionLog{
			{Level: action.LevelInfo, Message: "create build generation task", Meta: map[string]any{}},
			{Level: action.LevelInfo, Message: fmt.Sprintf("Build Version: %s", version), Meta: map[string]any{}},
			{Level: action.LevelInfo, Message: fmt.Sprintf("Build message: %s", message), Meta: map[string]any{}},
		},
	}
}
