package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"strings"

	"github.com/lsst-dm/imgdeploy/internal"
	"github.com/lsst-dm/imgdeploy/internal/text"
	"github.com/lsst-dm/imgdeploy/pkg/descriptor"
)

type RenderParams struct {
	GlobalSettings
	Path    string
	Out     string
	Format  string
	Check   bool
	Context int
}

//go:embed cmd_render_help.txt
var renderHelp string

func init() {
	renderHelp = strings.TrimSpace(internal.Colorize(renderHelp))
}

func GetRenderParams(settings GlobalSettings, args []string) (*RenderParams, error) {
	flagset := flag.NewFlagSet("render", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), renderHelp)
		flagset.PrintDefaults()
	}

	params := RenderParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)
	flagset.StringVar(&params.Out, "out", "", "file to write the rendered descriptor to; stdout when empty")
	flagset.StringVar(&params.Format, "format", "yaml", "output format: yaml or json")
	flagset.BoolVar(&params.Check, "check", false, "report the difference to the canonical form instead of rendering")
	flagset.IntVar(&params.Context, "context", 4, "number of lines of context in the diff")

	flagset.Parse(args)

	if flagset.NArg() > 1 {
		return nil, fmt.Errorf("render accepts at most one descriptor")
	}

	params.Path = flagset.Arg(0)

	return &params, nil
}

func Render(ctx context.Context, params RenderParams) error {
	ctx = internal.WithDebugFlag(ctx, &params.Debug)

	if params.Check {
		return CheckCanonical(ctx, params)
	}

	deployment, _, err := ReadDeployment(ctx, params.Path)
	if err != nil {
		return err
	}

	output, err := Encode(deployment, params.Format)
	if err != nil {
		return err
	}

	return Write(ctx, params.Out, output)
}

// CheckCanonical prints the diff between a descriptor and its canonical rendering.
func CheckCanonical(ctx context.Context, params RenderParams) error {
	var paths []string
	if params.Path != "" {
		paths = []string{params.Path}
	}

	sources, err := ReadSources(ctx, paths)
	if err != nil {
		return err
	}
	source := sources[0]

	if _, err := ParseSingle(source); err != nil {
		return err
	}

	canonical, rendered, err := descriptor.IsCanonical(source.Data)
	if err != nil {
		return fmt.Errorf("invalid descriptor %s: %w", source.Name, err)
	}
	if canonical {
		return nil
	}

	stdout := internal.Stdout(ctx)

	diff := text.Differ(internal.IsTerminal(stdout))(
		text.File{Name: source.Name, Content: string(source.Data)},
		text.File{Name: "canonical", Content: string(rendered)},
		params.Context,
	)

	fmt.Fprint(stdout, diff)

	return fmt.Errorf("%s is not in canonical form", source.Name)
}
