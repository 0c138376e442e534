// Command genbuildctl manages builds from the command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/k11v/genbuild/internal/app"
)

type cli struct {
	EnvFile string `name:"env-file" help:"Dotenv file read before the environment." default:".env" type:"path"`
	Output  string `short:"o" help:"Output format." enum:"yaml,json" default:"yaml"`

	Create   createCmd   `cmd:"" help:"Create a build and queue its generation."`
	List     listCmd     `cmd:"" help:"List builds, newest first."`
	Get      getCmd      `cmd:"" help:"Show a build."`
	Run      runCmd      `cmd:"" help:"Generate a waiting build in the foreground."`
	Download downloadCmd `cmd:"" help:"Download the archive of a completed build."`
	Logs     logsCmd     `cmd:"" help:"Show the action steps and logs of a build."`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("genbuildctl"),
		kong.Description("Manage genbuild builds."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cfg app.Config
	if err := app.ParseEnv(&cfg, os.Environ(), c.EnvFile); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(os.Stderr, cfg.Development)

	services, err := app.NewServices(ctx, &cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	err = kctx.Run(&globals{
		Context: ctx,
		Builds:  services.Build,
		Actions: services.Actions,
		Printer: &printer{W: os.Stdout, Format: c.Output},
	})
	services.Close()
	kctx.FatalIfErrorf(err)
}
