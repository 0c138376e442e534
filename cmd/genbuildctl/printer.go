package main

import (
	"encoding/json"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/k11v/genbuild/internal/action"
	"github.com/k11v/genbuild/internal/build"
	"github.com/k11v/genbuild/internal/build/operation"
)

type printer struct {
	W      io.Writer
	Format string // yaml or json
}

type buildView struct {
	ID        string    `json:"id" yaml:"id"`
	Status    string    `json:"status" yaml:"status"`
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	UserID    string    `json:"userId" yaml:"userId"`
	AppID     string    `json:"appId" yaml:"appId"`
	Version   string    `json:"version" yaml:"version"`
	Message   string    `json:"message" yaml:"message"`
	ActionID  string    `json:"actionId" yaml:"actionId"`
}

type listView struct {
	Builds        []*buildView `json:"builds" yaml:"builds"`
	NextPageToken string       `json:"nextPageToken,omitempty" yaml:"nextPageToken,omitempty"`
	TotalSize     int          `json:"totalSize" yaml:"totalSize"`
}

type stepView struct {
	Message     string     `json:"message" yaml:"message"`
	Status      string     `json:"status" yaml:"status"`
	CreatedAt   time.Time  `json:"createdAt" yaml:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
	Logs        []*logView `json:"logs" yaml:"logs"`
}

type logView struct {
	CreatedAt time.Time `json:"createdAt" yaml:"createdAt"`
	Level     string    `json:"level" yaml:"level"`
	Message   string    `json:"message" yaml:"message"`
}

func newBuildView(b *build.Build) *buildView {
	return &buildView{
		ID:        b.ID.String(),
		Status:    string(b.Status),
		CreatedAt: b.CreatedAt,
		UserID:    b.UserID.String(),
		AppID:     b.AppID.String(),
		Version:   b.Version,
		Message:   b.Message,
		ActionID:  b.ActionID.String(),
	}
}

func (p *printer) PrintBuild(b *build.Build) error {
	return p.print(newBuildView(b))
}

func (p *printer) PrintList(result *operation.ListBuildsResult) error {
	v := &listView{
		Builds:        make([]*buildView, 0, len(result.Builds)),
		NextPageToken: result.NextPageToken,
		TotalSize:     result.TotalSize,
	}
	for _, b := range result.Builds {
		v.Builds = append(v.Builds, newBuildView(b))
	}
	return p.print(v)
}

func (p *printer) PrintAction(a *action.Action) error {
	steps := make([]*stepView, 0, len(a.Steps))
	for _, st := range a.Steps {
		v := &stepView{
			Message:     st.Message,
			Status:      string(st.Status),
			CreatedAt:   st.CreatedAt,
			CompletedAt: st.CompletedAt,
			Logs:        make([]*logView, 0, len(st.Logs)),
		}
		for _, l := range st.Logs {
			v.Logs = append(v.Logs, &logView{CreatedAt: l.CreatedAt, Level: string(l.Level), Message: l.Message})
		}
		steps = append(steps, v)
	}
	return p.print(steps)
}

func (p *printer) print(v any) error {
	if p.Format == "json" {
		enc := json.NewEncoder(p.W)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	enc := yaml.NewEncoder(p.W)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
