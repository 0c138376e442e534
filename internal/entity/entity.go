// Package entity holds read-only projections of the application data model
// that a build generates code from.
package entity

import (
	"github.com/google/uuid"
)

// Version is a snapshot of an entity at a version number.
type Version struct {
	ID            uuid.UUID
	EntityID      uuid.UUID
	VersionNumber int
}

// Entity is an entity version with the related records requested by an Include.
type Entity struct {
	ID            uuid.UUID // entity version ID
	EntityID      uuid.UUID
	AppID         uuid.UUID
	VersionNumber int
	Name          string
	DisplayName   string
	PluralName    string

	Fields      []*Field      // nil unless Include.Fields
	Permissions []*Permission // nil unless Include.Permissions is set
}

type Field struct {
	ID          uuid.UUID
	Name        string
	DisplayName string
	DataType    string
	Required    bool
	Searchable  bool
}

// Permission grants an action on an entity.
type Permission struct {
	ID     uuid.UUID
	Action string // create, view, update, delete, search
	Type   string // allUsers, granular, disabled

	Roles  []*AppRole // nil unless PermissionsInclude.Roles
	Fields []string   // field names, nil unless PermissionsInclude.Fields
}

type AppRole struct {
	ID          uuid.UUID
	AppID       uuid.UUID
	Name        string
	DisplayName string
}

// Include selects which relations are fetched alongside entities.
type Include struct {
	Fields      bool
	Permissions *PermissionsInclude
}

type PermissionsInclude struct {
	Roles  bool
	Fields bool
}

type GetLatestVersionsParams struct {
	AppID uuid.UUID
}

// GetEntitiesByVersionsParams selects the entity versions linked to a build.
type GetEntitiesByVersionsParams struct {
	BuildID uuid.UUID
	Include Include
}

type GetAppRolesParams struct {
	AppID uuid.UUID
}
