package build

import (
	"time"

	"github.com/google/uuid"
)

// Build is a single generation run for an application version.
type Build struct {
	ID        uuid.UUID
	Status    Status
	CreatedAt time.Time

	UserID uuid.UUID
	AppID  uuid.UUID

	Version string
	Message string

	ActionID uuid.UUID

	EntityVersionIDs []uuid.UUID
	BlockVersionIDs  []uuid.UUID
}

// ArtifactKey returns the object storage key of the archive generated for the build.
// It depends only on the build ID so it can be derived without a lookup.
func ArtifactKey(id uuid.UUID) string {
	return id.String() + ".zip"
}
