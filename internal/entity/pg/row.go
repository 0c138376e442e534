package pg

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/k11v/genbuild/internal/entity"
)

type versionRow struct {
	ID            uuid.UUID `db:"id"`
	EntityID      uuid.UUID `db:"entity_id"`
	VersionNumber int       `db:"version_number"`
}

func rowToVersion(collectableRow pgx.CollectableRow) (*entity.Version, error) {
	collectedRow, err := pgx.RowToStructByName[versionRow](collectableRow)
	if err != nil {
		return nil, fmt.Errorf("row to version: %w", err)
	}

	v := &entity.Version{
		ID:            collectedRow.ID,
		EntityID:      collectedRow.EntityID,
		VersionNumber: collectedRow.VersionNumber,
	}
	return v, nil
}

type entityRow struct {
	ID            uuid.UUID `db:"id"`
	EntityID      uuid.UUID `db:"entity_id"`
	AppID         uuid.UUID `db:"app_id"`
	VersionNumber int       `db:"version_number"`
	Name          string    `db:"name"`
	DisplayName   string    `db:"display_name"`
	PluralName    string    `db:"plural_name"`
}

func rowToEntity(collectableRow pgx.CollectableRow) (*entity.Entity, error) {
	collectedRow, err := pgx.RowToStructByName[entityRow](collectableRow)
	if err != nil {
		return nil, fmt.Errorf("row to entity: %w", err)
	}

	e := &entity.Entity{
		ID:            collectedRow.ID,
		EntityID:      collectedRow.EntityID,
		AppID:         collectedRow.AppID,
		VersionNumber: collectedRow.VersionNumber,
		Name:          collectedRow.Name,
		DisplayName:   collectedRow.DisplayName,
		PluralName:    collectedRow.PluralName,
	}
	return e, nil
}

type fieldRow struct {
	ID              uuid.UUID `db:"id"`
	EntityVersionID uuid.UUID `db:"entity_version_id"`
	Name            string    `db:"name"`
	DisplayName     string    `db:"display_name"`
	DataType        string    `db:"data_type"`
	Required        bool      `db:"required"`
	Searchable      bool      `db:"searchable"`
}

func (r *fieldRow) toField() *entity.Field {
	return &entity.Field{
		ID:          r.ID,
		Name:        r.Name,
		DisplayName: r.DisplayName,
		DataType:    r.DataType,
		Required:    r.Required,
		Searchable:  r.Searchable,
	}
}

type permissionRow struct {
	ID              uuid.UUID `db:"id"`
	EntityVersionID uuid.UUID `db:"entity_version_id"`
	Action          string    `db:"action"`
	Type            string    `db:"type"`
}

func (r *permissionRow) toPermission() *entity.Permission {
	return &entity.Permission{
		ID:     r.ID,
		Action: r.Action,
		Type:   r.Type,
	}
}

type permissionRoleRow struct {
	EntityPermissionID uuid.UUID `db:"entity_permission_id"`
	ID                 uuid.UUID `db:"id"`
	AppID              uuid.UUID `db:"app_id"`
	Name               string    `db:"name"`
	DisplayName        string    `db:"display_name"`
}

func (r *permissionRoleRow) toAppRole() *entity.AppRole {
	return &entity.AppRole{
		ID:          r.ID,
		AppID:       r.AppID,
		Name:        r.Name,
		DisplayName: r.DisplayName,
	}
}

type permissionFieldRow struct {
	EntityPermissionID uuid.UUID `db:"entity_permission_id"`
	FieldName          string    `db:"field_name"`
}

type appRoleRow struct {
	ID          uuid.UUID `db:"id"`
	AppID       uuid.UUID `db:"app_id"`
	Name        string    `db:"name"`
	DisplayName string    `db:"display_name"`
}

func rowToAppRole(collectableRow pgx.CollectableRow) (*entity.AppRole, error) {
	collectedRow, err := pgx.RowToStructByName[appRoleRow](collectableRow)
	if err != nil {
		return nil, fmt.Errorf("row to app role: %w", err)
	}

	r := &entity.AppRole{
		ID:          collectedRow.ID,
		AppID:       collectedRow.AppID,
		Name:        collectedRow.Name,
		DisplayName: collectedRow.DisplayName,
	}
	return r, nil
}
