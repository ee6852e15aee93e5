package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"strings"

	kerrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/lsst-dm/imgdeploy/internal"
	"github.com/lsst-dm/imgdeploy/internal/k8s"
	"github.com/lsst-dm/imgdeploy/internal/text"
	"github.com/lsst-dm/imgdeploy/pkg/descriptor"
)

type CheckParams struct {
	GlobalSettings
	Path           string
	ForceConflicts bool
	Diff           bool
	Context        int
}

//go:embed cmd_check_help.txt
var checkHelp string

func init() {
	checkHelp = strings.TrimSpace(internal.Colorize(checkHelp))
}

func GetCheckParams(settings GlobalSettings, args []string) (*CheckParams, error) {
	flagset := flag.NewFlagSet("check", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), checkHelp)
		flagset.PrintDefaults()
	}

	params := CheckParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)
	flagset.BoolVar(&params.ForceConflicts, "force-conflicts", false, "take ownership of fields managed by other field managers")
	flagset.BoolVar(&params.Diff, "diff", false, "print the changes the apply would make to the live deployment")
	flagset.IntVar(&params.Context, "context", 4, "number of lines of context in the diff")

	flagset.Parse(args)

	if flagset.NArg() > 1 {
		return nil, fmt.Errorf("check accepts at most one descriptor")
	}

	params.Path = flagset.Arg(0)

	return &params, nil
}

func Check(ctx context.Context, params CheckParams) error {
	ctx = internal.WithDebugFlag(ctx, &params.Debug)

	deployment, _, err := ReadDeployment(ctx, params.Path)
	if err != nil {
		return err
	}

	client, err := k8s.NewClientFromKubeConfig(params.KubeConfigPath)
	if err != nil {
		return fmt.Errorf("failed to instantiate k8 client: %w", err)
	}

	return CheckDeployment(ctx, client, deployment, params)
}

func CheckDeployment(ctx context.Context, client *k8s.Client, deployment *descriptor.Deployment, params CheckParams) error {
	namespace := k8s.Namespace(deployment, params.Namespace)
	target := namespace + "/" + deployment.Metadata.Name

	live, err := client.GetDeployment(ctx, namespace, deployment.Metadata.Name)
	if err != nil && !kerrors.IsNotFound(err) {
		return fmt.Errorf("failed to get live deployment: %w", err)
	}

	result, err := client.DryRun(ctx, deployment, k8s.DryRunOpts{
		Namespace:      params.Namespace,
		ForceConflicts: params.ForceConflicts,
	})
	if err != nil {
		return fmt.Errorf("server rejected %s: %w", target, err)
	}

	stdout := internal.Stdout(ctx)

	if live == nil {
		fmt.Fprintf(stdout, "%s: would be created\n", target)
		return nil
	}

	diff, err := DiffDeployments(live, "live:"+target, result, "applied:"+target, text.Differ(internal.IsTerminal(stdout)), params.Context)
	if err != nil {
		return err
	}

	if diff == "" {
		fmt.Fprintf(stdout, "%s: unchanged\n", target)
		return nil
	}

	fmt.Fprintf(stdout, "%s: would be updated\n", target)
	if params.Diff {
		fmt.Fprint(stdout, diff)
	}

	return nil
}
