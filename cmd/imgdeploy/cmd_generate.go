package main

import (
	"context"
	_ "embed"
	"flag"
	"fmt"
	"math"
	"strings"

	"k8s.io/utils/ptr"

	"github.com/lsst-dm/imgdeploy/internal"
	"github.com/lsst-dm/imgdeploy/pkg/descriptor"
)

type GenerateParams struct {
	GlobalSettings
	Options descriptor.ImgservOptions
	Out     string
	Format  string
}

//go:embed cmd_generate_help.txt
var generateHelp string

func init() {
	generateHelp = strings.TrimSpace(internal.Colorize(generateHelp))
}

func GetGenerateParams(settings GlobalSettings, args []string) (*GenerateParams, error) {
	flagset := flag.NewFlagSet("generate", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), generateHelp)
		flagset.PrintDefaults()
	}

	params := GenerateParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)

	opts := &params.Options

	var replicas, port int
	flagset.StringVar(&opts.Name, "name", descriptor.ImgservName, "name of the deployment, its container and its app label")
	flagset.StringVar(&opts.Namespace, "target-namespace", "", "namespace written into the descriptor metadata")
	flagset.StringVar(&opts.Image, "image", descriptor.ImgservImage, "container image in repository:tag form")
	flagset.IntVar(&replicas, "replicas", 1, "number of replicas")
	flagset.IntVar(&port, "port", descriptor.ImgservPort, "container port the image server listens on")
	flagset.StringVar(&opts.ConfigSecret, "config-secret", descriptor.ImgservConfigSecret, "secret holding the server configuration")
	flagset.StringVar(&opts.DatasetClaim, "dataset-claim", descriptor.ImgservDatasetClaim, "persistent volume claim holding the datasets")
	flagset.StringVar(&opts.ConfigDir, "config-dir", descriptor.ImgservConfigDir, "mount path of the configuration volume")
	flagset.StringVar(&opts.DatasetDir, "dataset-dir", descriptor.ImgservDatasetDir, "mount path of the dataset volume")
	flagset.Var(envFlag{&opts.Env}, "env", "extra environment variable as NAME=VALUE; may be repeated")
	flagset.StringVar(&params.Out, "out", "", "file to write the descriptor to; stdout when empty")
	flagset.StringVar(&params.Format, "format", "yaml", "output format: yaml or json")

	flagset.Parse(args)

	if flagset.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(flagset.Args(), " "))
	}

	if replicas < 0 || replicas > math.MaxInt32 {
		return nil, fmt.Errorf("replicas out of range: %d", replicas)
	}
	if port < 0 || port > math.MaxInt32 {
		return nil, fmt.Errorf("port out of range: %d", port)
	}
	opts.Replicas = int32(replicas)
	opts.Port = int32(port)

	return &params, nil
}

func Generate(ctx context.Context, params GenerateParams) error {
	ctx = internal.WithDebugFlag(ctx, &params.Debug)

	deployment := descriptor.Imgserv(params.Options)

	if err := descriptor.Validate(deployment).Err(); err != nil {
		return fmt.Errorf("generated descriptor is invalid: %w", err)
	}

	output, err := Encode(deployment, params.Format)
	if err != nil {
		return err
	}

	internal.Debug(ctx).Printf("generated %s with %d replica(s)\n", deployment.Metadata.Name, deployment.Spec.Replicas)

	return Write(ctx, params.Out, output)
}

type envFlag struct {
	env *[]descriptor.EnvVar
}

func (value envFlag) String() string {
	if value.env == nil {
		return ""
	}
	pairs := make([]string, len(*value.env))
	for i, env := range *value.env {
		pairs[i] = env.Name + "=" + ptr.Deref(env.Value, "")
	}
	return strings.Join(pairs, ",")
}

func (value envFlag) Set(raw string) error {
	name, val, ok := strings.Cut(raw, "=")
	if !ok || name == "" {
		return fmt.Errorf("expected NAME=VALUE but got %q", raw)
	}
	*value.env = append(*value.env, descriptor.EnvVar{Name: name, Value: ptr.To(val)})
	return nil
}
