package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/k11v/genbuild/internal/action"
	"github.com/k11v/genbuild/internal/build"
	"github.com/k11v/genbuild/internal/build/operation"
)

// BuildService is the part of operation.Service the commands use.
type BuildService interface {
	CreateBuild(ctx context.Context, params *operation.CreateBuildParams) (*build.Build, error)
	GetBuild(ctx context.Context, params *operation.GetBuildParams) (*build.Build, error)
	ListBuilds(ctx context.Context, params *operation.ListBuildsParams) (*operation.ListBuildsResult, error)
	DownloadBuild(ctx context.Context, params *operation.DownloadBuildParams) (io.ReadCloser, error)
	RunBuild(ctx context.Context, params *operation.RunBuildParams) error
}

var _ BuildService = (*operation.Service)(nil)

type ActionReader interface {
	GetAction(ctx context.Context, id uuid.UUID) (*action.Action, error)
}

var _ ActionReader = (*action.Service)(nil)

type globals struct {
	Context context.Context
	Builds  BuildService
	Actions ActionReader
	Printer *printer
}

type createCmd struct {
	User    uuid.UUID `required:"" help:"ID of the user creating the build."`
	App     uuid.UUID `required:"" help:"ID of the app to build."`
	Version string    `required:"" help:"Semantic version of the build."`
	Message string    `short:"m" help:"Build message."`
}

func (c *createCmd) Run(g *globals) error {
	b, err := g.Builds.CreateBuild(g.Context, &operation.CreateBuildParams{
		UserID:  c.User,
		AppID:   c.App,
		Version: c.Version,
		Message: c.Message,
	})
	if err != nil {
		return err
	}
	return g.Printer.PrintBuild(b)
}

type listCmd struct {
	App       *uuid.UUID `help:"Only builds of this app."`
	User      *uuid.UUID `help:"Only builds of this user."`
	PageSize  int        `help:"Maximum number of builds." default:"50"`
	PageToken string     `help:"Token returned by a previous list."`
}

func (c *listCmd) Run(g *globals) error {
	result, err := g.Builds.ListBuilds(g.Context, &operation.ListBuildsParams{
		AppID:     c.App,
		UserID:    c.User,
		PageSize:  c.PageSize,
		PageToken: c.PageToken,
	})
	if err != nil {
		return err
	}
	return g.Printer.PrintList(result)
}

type getCmd struct {
	ID uuid.UUID `arg:"" help:"Build ID."`
}

func (c *getCmd) Run(g *globals) error {
	b, err := g.Builds.GetBuild(g.Context, &operation.GetBuildParams{ID: c.ID})
	if err != nil {
		return err
	}
	if b == nil {
		return operation.ErrBuildNotFound
	}
	return g.Printer.PrintBuild(b)
}

type runCmd struct {
	ID uuid.UUID `arg:"" help:"Build ID."`
}

func (c *runCmd) Run(g *globals) error {
	if err := g.Builds.RunBuild(g.Context, &operation.RunBuildParams{ID: c.ID}); err != nil {
		return err
	}

	b, err := g.Builds.GetBuild(g.Context, &operation.GetBuildParams{ID: c.ID})
	if err != nil {
		return err
	}
	if b == nil {
		return operation.ErrBuildNotFound
	}
	return g.Printer.PrintBuild(b)
}

type downloadCmd struct {
	ID     uuid.UUID `arg:"" help:"Build ID."`
	Output string    `name:"file" short:"f" help:"Destination file, <id>.zip by default." type:"path"`
	Force  bool      `help:"Overwrite an existing file."`
}

func (c *downloadCmd) Run(g *globals) error {
	rc, err := g.Builds.DownloadBuild(g.Context, &operation.DownloadBuildParams{ID: c.ID})
	if err != nil {
		return err
	}
	defer func() {
		_ = rc.Close()
	}()

	name := c.Output
	if name == "" {
		name = build.ArtifactKey(c.ID)
	}

	flag := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if c.Force {
		flag = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(name, flag, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%s already exists, use --force to overwrite", name)
	} else if err != nil {
		return err
	}

	n, err := io.Copy(f, rc)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(g.Printer.W, "wrote %d bytes to %s\n", n, name)
	return err
}

type logsCmd struct {
	ID uuid.UUID `arg:"" help:"Build ID."`
}

func (c *logsCmd) Run(g *globals) error {
	b, err := g.Builds.GetBuild(g.Context, &operation.GetBuildParams{ID: c.ID})
	if err != nil {
		return err
	}
	if b == nil {
		return operation.ErrBuildNotFound
	}

	a, err := g.Actions.GetAction(g.Context, b.ActionID)
	if err != nil {
		return err
	}
	return g.Printer.PrintAction(a)
}
