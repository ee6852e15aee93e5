package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/davidmdm/x/xcontext"

	"github.com/lsst-dm/imgdeploy/internal"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		if internal.IsWarning(err) {
			return
		}
		os.Exit(1)
	}
}

//go:embed cmd_help.txt
var rootHelp string

func init() {
	rootHelp = strings.TrimSpace(internal.Colorize(rootHelp))
}

func run() error {
	ctx, done := xcontext.WithSignalCancelation(context.Background(), syscall.SIGINT)
	defer done()

	settings, err := GetEnvironmentSettings()
	if err != nil {
		return fmt.Errorf("invalid environment: %w", err)
	}

	RegisterGlobalFlags(flag.CommandLine, &settings)

	flag.Usage = func() {
		fmt.Fprintln(flag.CommandLine.Output(), rootHelp)
		flag.PrintDefaults()
		fmt.Fprintln(os.Stderr)
	}

	flag.Parse()

	if len(flag.Args()) == 0 {
		flag.Usage()
		return fmt.Errorf("no command provided")
	}

	subcmdArgs := flag.Args()[1:]

	switch cmd := flag.Arg(0); cmd {
	case "validate", "lint":
		{
			params, err := GetValidateParams(settings, subcmdArgs)
			if err != nil {
				return err
			}
			return Validate(ctx, *params)
		}
	case "render", "fmt":
		{
			params, err := GetRenderParams(settings, subcmdArgs)
			if err != nil {
				return err
			}
			return Render(ctx, *params)
		}
	case "generate", "gen":
		{
			params, err := GetGenerateParams(settings, subcmdArgs)
			if err != nil {
				return err
			}
			return Generate(ctx, *params)
		}
	case "diff":
		{
			params, err := GetDiffParams(settings, subcmdArgs)
			if err != nil {
				return err
			}
			return Diff(ctx, *params)
		}
	case "check", "dry-run":
		{
			params, err := GetCheckParams(settings, subcmdArgs)
			if err != nil {
				return err
			}
			return Check(ctx, *params)
		}
	case "status":
		{
			params, err := GetStatusParams(settings, subcmdArgs)
			if err != nil {
				return err
			}
			return Status(ctx, *params)
		}
	case "version":
		{
			return Version(ctx)
		}
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}
