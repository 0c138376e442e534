// Package pg reads entities and app roles from Postgres.
package pg

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/k11v/genbuild/internal/entity"
	"github.com/k11v/genbuild/internal/postgresutil"
)

type Database struct {
	db postgresutil.Querier // required
}

func NewDatabase(db postgresutil.Querier) *Database {
	return &Database{db: db}
}

// GetLatestVersions returns the highest-numbered version of every entity of the app.
func (d *Database) GetLatestVersions(ctx context.Context, params *entity.GetLatestVersionsParams) ([]*entity.Version, error) {
	query := `
		SELECT DISTINCT ON (v.entity_id) v.id, v.entity_id, v.version_number
		FROM entity_versions v
		JOIN entities e ON e.id = v.entity_id
		WHERE e.app_id = $1
		ORDER BY v.entity_id ASC, v.version_number DESC
	`
	args := []any{params.AppID}

	rows, _ := d.db.Query(ctx, query, args...)
	versions, err := pgx.CollectRows(rows, rowToVersion)
	if err != nil {
		return nil, fmt.Errorf("get latest versions: %w", err)
	}

	return versions, nil
}

// GetEntitiesByVersions returns the entity versions linked to the build
// with the relations selected by params.Include.
func (d *Database) GetEntitiesByVersions(ctx context.Context, params *entity.GetEntitiesByVersionsParams) ([]*entity.Entity, error) {
	query := `
		SELECT v.id, v.entity_id, e.app_id, v.version_number, v.name, v.display_name, v.plural_name
		FROM entity_versions v
		JOIN entities e ON e.id = v.entity_id
		JOIN build_entity_versions bv ON bv.entity_version_id = v.id
		WHERE bv.build_id = $1
		ORDER BY v.name ASC, v.id ASC
	`
	args := []any{params.BuildID}

	rows, _ := d.db.Query(ctx, query, args...)
	entities, err := pgx.CollectRows(rows, rowToEntity)
	if err != nil {
		return nil, fmt.Errorf("get entities by versions: %w", err)
	}

	versionIDs := make([]uuid.UUID, len(entities))
	entityByVersionID := make(map[uuid.UUID]*entity.Entity, len(entities))
	for i, e := range entities {
		versionIDs[i] = e.ID
		entityByVersionID[e.ID] = e
	}

	if params.Include.Fields {
		if err = d.includeFields(ctx, versionIDs, entityByVersionID); err != nil {
			return nil, fmt.Errorf("get entities by versions: %w", err)
		}
	}
	if params.Include.Permissions != nil {
		if err = d.includePermissions(ctx, versionIDs, entityByVersionID, params.Include.Permissions); err != nil {
			return nil, fmt.Errorf("get entities by versions: %w", err)
		}
	}

	return entities, nil
}

func (d *Database) includeFields(ctx context.Context, versionIDs []uuid.UUID, entityByVersionID map[uuid.UUID]*entity.Entity) error {
	for _, e := range entityByVersionID {
		e.Fields = []*entity.Field{}
	}

	query := `
		SELECT id, entity_version_id, name, display_name, data_type, required, searchable
		FROM entity_fields
		WHERE entity_version_id = ANY($1)
		ORDER BY entity_version_id ASC, position ASC
	`
	args := []any{versionIDs}

	rows, _ := d.db.Query(ctx, query, args...)
	fields, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[fieldRow])
	if err != nil {
		return fmt.Errorf("include fields: %w", err)
	}

	for _, f := range fields {
		e := entityByVersionID[f.EntityVersionID]
		e.Fields = append(e.Fields, f.toField())
	}
	return nil
}

func (d *Database) includePermissions(ctx context.Context, versionIDs []uuid.UUID, entityByVersionID map[uuid.UUID]*entity.Entity, include *entity.PermissionsInclude) error {
	for _, e := range entityByVersionID {
		e.Permissions = []*entity.Permission{}
	}

	query := `
		SELECT id, entity_version_id, action, type
		FROM entity_permissions
		WHERE entity_version_id = ANY($1)
		ORDER BY entity_version_id ASC, action ASC
	`
	args := []any{versionIDs}

	rows, _ := d.db.Query(ctx, query, args...)
	permissions, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[permissionRow])
	if err != nil {
		return fmt.Errorf("include permissions: %w", err)
	}

	permissionIDs := make([]uuid.UUID, len(permissions))
	permissionByID := make(map[uuid.UUID]*entity.Permission, len(permissions))
	for i, p := range permissions {
		permission := p.toPermission()
		if include.Roles {
			permission.Roles = []*entity.AppRole{}
		}
		if include.Fields {
			permission.Fields = []string{}
		}

		permissionIDs[i] = p.ID
		permissionByID[p.ID] = permission
		e := entityByVersionID[p.EntityVersionID]
		e.Permissions = append(e.Permissions, permission)
	}

	if include.Roles {
		query = `
			SELECT pr.entity_permission_id, r.id, r.app_id, r.name, r.display_name
			FROM entity_permission_roles pr
			JOIN app_roles r ON r.id = pr.app_role_id
			WHERE pr.entity_permission_id = ANY($1)
			ORDER BY pr.entity_permission_id ASC, r.name ASC
		`
		rows, _ = d.db.Query(ctx, query, permissionIDs)
		roles, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[permissionRoleRow])
		if err != nil {
			return fmt.Errorf("include permissions: %w", err)
		}
		for _, r := range roles {
			p := permissionByID[r.EntityPermissionID]
			p.Roles = append(p.Roles, r.toAppRole())
		}
	}

	if include.Fields {
		query = `
			SELECT entity_permission_id, field_name
			FROM entity_permission_fields
			WHERE entity_permission_id = ANY($1)
			ORDER BY entity_permission_id ASC, field_name ASC
		`
		rows, _ = d.db.Query(ctx, query, permissionIDs)
		fields, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[permissionFieldRow])
		if err != nil {
			return fmt.Errorf("include permissions: %w", err)
		}
		for _, f := range fields {
			p := permissionByID[f.EntityPermissionID]
			p.Fields = append(p.Fields, f.FieldName)
		}
	}

	return nil
}

// GetAppRoles returns the roles of the app ordered by name.
func (d *Database) GetAppRoles(ctx context.Context, params *entity.GetAppRolesParams) ([]*entity.AppRole, error) {
	query := `
		SELECT id, app_id, name, display_name
		FROM app_roles
		WHERE app_id = $1
		ORDER BY name ASC
	`
	args := []any{params.AppID}

	rows, _ := d.db.Query(ctx, query, args...)
	roles, err := pgx.CollectRows(rows, rowToAppRole)
	if err != nil {
		return nil, fmt.Errorf("get app roles: %w", err)
	}

	return roles, nil
}
