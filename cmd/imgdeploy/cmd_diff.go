package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/lsst-dm/imgdeploy/internal"
	"github.com/lsst-dm/imgdeploy/internal/k8s"
	"github.com/lsst-dm/imgdeploy/internal/text"
	"github.com/lsst-dm/imgdeploy/pkg/descriptor"
)

type DiffParams struct {
	GlobalSettings
	Path    string
	Against string
	Context int
	Color   bool
}

//go:embed cmd_diff_help.txt
var diffHelp string

func init() {
	diffHelp = strings.TrimSpace(internal.Colorize(diffHelp))
}

func GetDiffParams(settings GlobalSettings, args []string) (*DiffParams, error) {
	flagset := flag.NewFlagSet("diff", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), diffHelp)
		flagset.PrintDefaults()
	}

	params := DiffParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)
	flagset.StringVar(&params.Against, "against", "", "descriptor file to compare with instead of the live deployment")
	flagset.IntVar(&params.Context, "context", 4, "number of lines of context in the diff")
	flagset.BoolVar(&params.Color, "color", internal.IsTerminal(os.Stdout), "colorize the diff")

	flagset.Parse(args)

	if flagset.NArg() > 1 {
		return nil, fmt.Errorf("diff accepts at most one descriptor")
	}

	params.Path = flagset.Arg(0)

	if params.Path == "" && params.Against == "-" {
		return nil, fmt.Errorf("stdin cannot be both sides of the diff")
	}

	return &params, nil
}

func Diff(ctx context.Context, params DiffParams) error {
	ctx = internal.WithDebugFlag(ctx, &params.Debug)

	local, source, err := ReadDeployment(ctx, params.Path)
	if err != nil {
		return err
	}

	other, otherName, err := func() (*descriptor.Deployment, string, error) {
		if params.Against != "" {
			deployment, source, err := ReadDeployment(ctx, params.Against)
			return deployment, source.Name, err
		}

		client, err := k8s.NewClientFromKubeConfig(params.KubeConfigPath)
		if err != nil {
			return nil, "", fmt.Errorf("failed to instantiate k8 client: %w", err)
		}

		namespace := k8s.Namespace(local, params.Namespace)

		live, err := client.GetDeployment(ctx, namespace, local.Metadata.Name)
		if err != nil {
			return nil, "", fmt.Errorf("failed to get live deployment: %w", err)
		}

		return live, fmt.Sprintf("live:%s/%s", namespace, local.Metadata.Name), nil
	}()
	if err != nil {
		return err
	}

	diff, err := DiffDeployments(
		local, source.Name,
		other, otherName,
		text.Differ(params.Color),
		params.Context,
	)
	if err != nil {
		return err
	}

	if diff == "" {
		return internal.Warning("no differences found")
	}

	_, err = fmt.Fprint(internal.Stdout(ctx), diff)
	return err
}

// DiffDeployments diffs the canonical renderings of two deployments.
func DiffDeployments(a *descriptor.Deployment, aName string, b *descriptor.Deployment, bName string, differ text.DiffFunc, context int) (string, error) {
	left, err := descriptor.Render(a)
	if err != nil {
		return "", err
	}
	right, err := descriptor.Render(b)
	if err != nil {
		return "", err
	}
	return differ(
		text.File{Name: aName, Content: string(left)},
		text.File{Name: bName, Content: string(right)},
		context,
	), nil
}
