package operation

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/k11v/genbuild/internal/action"
	"github.com/k11v/genbuild/internal/build"
	"github.com/k11v/genbuild/internal/entity"
)

// ActionService records the progress of a build under its action.
type ActionService interface {
	Run(ctx context.Context, actionID uuid.UUID, message string, f action.StepFunc) error
	LogInfo(ctx context.Context, step *action.Step, message string) error
}

type EntityService interface {
	GetLatestVersions(ctx context.Context, params *entity.GetLatestVersionsParams) ([]*entity.Version, error)
	GetEntitiesByVersions(ctx context.Context, params *entity.GetEntitiesByVersionsParams) ([]*entity.Entity, error)
}

type AppRoleService interface {
	GetAppRoles(ctx context.Context, params *entity.GetAppRolesParams) ([]*entity.AppRole, error)
}

// Generator writes the archive of a build to w.
type Generator interface {
	Generate(ctx context.Context, w io.Writer, params *GenerateParams) error
}

type GenerateParams struct {
	Build    *build.Build
	Entities []*entity.Entity
	Roles    []*entity.AppRole
}
