package main

import (
	"bytes"
	"context"
	_ "embed"
	"flag"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/lsst-dm/imgdeploy/internal"
	"github.com/lsst-dm/imgdeploy/internal/k8s"
	"github.com/lsst-dm/imgdeploy/pkg/descriptor"
)

type StatusParams struct {
	GlobalSettings
	Paths        []string
	RequireReady bool
}

//go:embed cmd_status_help.txt
var statusHelp string

func init() {
	statusHelp = strings.TrimSpace(internal.Colorize(statusHelp))
}

func GetStatusParams(settings GlobalSettings, args []string) (*StatusParams, error) {
	flagset := flag.NewFlagSet("status", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), statusHelp)
		flagset.PrintDefaults()
	}

	params := StatusParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)
	flagset.BoolVar(&params.RequireReady, "require-ready", false, "fail unless every deployment has completed its rollout")

	flagset.Parse(args)

	params.Paths = flagset.Args()

	return &params, nil
}

func Status(ctx context.Context, params StatusParams) error {
	ctx = internal.WithDebugFlag(ctx, &params.Debug)

	sources, err := ReadSources(ctx, params.Paths)
	if err != nil {
		return err
	}

	var deployments []*descriptor.Deployment
	for _, source := range sources {
		results, err := descriptor.ParseAll(bytes.NewReader(source.Data))
		if err != nil {
			return fmt.Errorf("%s: %w", source.Name, err)
		}
		for _, result := range results {
			if err := result.Errors.Err(); err != nil {
				return fmt.Errorf("invalid descriptor %s#%d: %w", source.Name, result.Index, err)
			}
			deployments = append(deployments, result.Deployment)
		}
	}

	client, err := k8s.NewClientFromKubeConfig(params.KubeConfigPath)
	if err != nil {
		return fmt.Errorf("failed to instantiate k8 client: %w", err)
	}

	return ReportStatus(ctx, client, deployments, params)
}

func ReportStatus(ctx context.Context, client *k8s.Client, deployments []*descriptor.Deployment, params StatusParams) error {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleRounded)
	tbl.AppendHeader(table.Row{"namespace", "name", "desired", "replicas", "updated", "ready", "available", "status"})

	var pending []string

	for _, deployment := range deployments {
		namespace := k8s.Namespace(deployment, params.Namespace)

		status, err := client.Status(ctx, namespace, deployment.Metadata.Name)
		if err != nil {
			return fmt.Errorf("failed to get status of %s/%s: %w", namespace, deployment.Metadata.Name, err)
		}

		state := internal.Green.Sprint("ready")
		switch {
		case status.Ready() && status.Replicas != deployment.Spec.Replicas:
			state = internal.Red.Sprint("drifted")
			pending = append(pending, namespace+"/"+deployment.Metadata.Name)
		case !status.Ready():
			state = internal.Red.Sprint("progressing")
			pending = append(pending, namespace+"/"+deployment.Metadata.Name)
		}

		tbl.AppendRow(table.Row{
			namespace,
			deployment.Metadata.Name,
			deployment.Spec.Replicas,
			status.Replicas,
			status.UpdatedReplicas,
			status.ReadyReplicas,
			status.AvailableReplicas,
			state,
		})
	}

	fmt.Fprintln(internal.Stdout(ctx), tbl.Render())

	if params.RequireReady && len(pending) > 0 {
		return fmt.Errorf("not ready: %s", strings.Join(pending, ", "))
	}

	return nil
}
