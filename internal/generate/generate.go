// Package generate writes the archive of a build.
//
// The archive is a zip of YAML manifests describing the app data model
// captured by the build: app.yaml, roles.yaml and entities/<name>.yaml.
package generate

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/k11v/genbuild/internal/build/operation"
	"github.com/k11v/genbuild/internal/entity"
)

var _ operation.Generator = (*Generator)(nil)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

type appManifest struct {
	BuildID   string    `yaml:"buildId"`
	AppID     string    `yaml:"appId"`
	Version   string    `yaml:"version"`
	Message   string    `yaml:"message,omitempty"`
	CreatedAt time.Time `yaml:"createdAt"`
	Entities  []string  `yaml:"entities"`
}

type roleManifest struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"displayName"`
}

type entityManifest struct {
	Name          string               `yaml:"name"`
	DisplayName   string               `yaml:"displayName"`
	PluralName    string               `yaml:"pluralName"`
	VersionNumber int                  `yaml:"versionNumber"`
	Fields        []fieldManifest      `yaml:"fields"`
	Permissions   []permissionManifest `yaml:"permissions"`
}

type fieldManifest struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"displayName"`
	DataType    string `yaml:"dataType"`
	Required    bool   `yaml:"required"`
	Searchable  bool   `yaml:"searchable"`
}

type permissionManifest struct {
	Action string   `yaml:"action"`
	Type   string   `yaml:"type"`
	Roles  []string `yaml:"roles,omitempty"`
	Fields []string `yaml:"fields,omitempty"`
}

// Generate implements operation.Generator.
// Files are written in a fixed order and stamped with the build creation time,
// so the same input always produces the same archive.
func (g *Generator) Generate(ctx context.Context, w io.Writer, params *operation.GenerateParams) error {
	b := params.Build
	zw := zip.NewWriter(w)

	entityNames := make([]string, 0, len(params.Entities))
	for _, e := range params.Entities {
		entityNames = append(entityNames, e.Name)
	}

	files := []struct {
		name string
		v    any
	}{
		{name: "app.yaml", v: &appManifest{
			BuildID:   b.ID.String(),
			AppID:     b.AppID.String(),
			Version:   b.Version,
			Message:   b.Message,
			CreatedAt: b.CreatedAt.UTC(),
			Entities:  entityNames,
		}},
		{name: "roles.yaml", v: roleManifests(params.Roles)},
	}
	for _, e := range params.Entities {
		files = append(files, struct {
			name string
			v    any
		}{name: path.Join("entities", e.Name+".yaml"), v: newEntityManifest(e)})
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		if err := writeYAML(zw, f.name, b.CreatedAt, f.v); err != nil {
			return fmt.Errorf("generate: %s: %w", f.name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("generate: %w", err)
	}

	return nil
}

func writeYAML(zw *zip.Writer, name string, modified time.Time, v any) error {
	fw, err := zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: modified.UTC(),
	})
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(fw)
	enc.SetIndent(2)
	if err = enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func roleManifests(roles []*entity.AppRole) []roleManifest {
	m := make([]roleManifest, 0, len(roles))
	for _, r := range roles {
		m = append(m, roleManifest{Name: r.Name, DisplayName: r.DisplayName})
	}
	return m
}

func newEntityManifest(e *entity.Entity) *entityManifest {
	m := &entityManifest{
		Name:          e.Name,
		DisplayName:   e.DisplayName,
		PluralName:    e.PluralName,
		VersionNumber: e.VersionNumber,
		Fields:        make([]fieldManifest, 0, len(e.Fields)),
		Permissions:   make([]permissionManifest, 0, len(e.Permissions)),
	}

	for _, f := range e.Fields {
		m.Fields = append(m.Fields, fieldManifest{
			Name:        f.Name,
			DisplayName: f.DisplayName,
			DataType:    f.DataType,
			Required:    f.Required,
			Searchable:  f.Searchable,
		})
	}

	for _, p := range e.Permissions {
		pm := permissionManifest{Action: p.Action, Type: p.Type, Fields: p.Fields}
		for _, r := range p.Roles {
			pm.Roles = append(pm.Roles, r.Name)
		}
		m.Permissions = append(m.Permissions, pm)
	}

	return m
}
