package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/davidmdm/x/xerr"

	"github.com/lsst-dm/imgdeploy/internal"
	"github.com/lsst-dm/imgdeploy/pkg/descriptor"
)

const stdinName = "<stdin>"

type Source struct {
	Name string
	Data []byte
}

// ReadSources reads every path. No paths, or the path "-", stands for stdin.
func ReadSources(ctx context.Context, paths []string) ([]Source, error) {
	defer internal.DebugTimer(ctx, "read sources")()

	if len(paths) == 0 {
		paths = []string{"-"}
	}

	var (
		sources []Source
		errs    []error
	)

	for _, path := range paths {
		if path == "-" {
			stdin := internal.Stdin(ctx)
			if stdin == nil {
				return nil, fmt.Errorf("descriptor path is required when stdin is a terminal")
			}
			data, err := io.ReadAll(stdin)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", stdinName, err))
				continue
			}
			sources = append(sources, Source{Name: stdinName, Data: data})
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		sources = append(sources, Source{Name: path, Data: data})
	}

	return sources, xerr.MultiErrOrderedFrom("failed to read descriptor(s)", errs...)
}

// ReadDeployment reads and parses a single descriptor.
func ReadDeployment(ctx context.Context, path string) (*descriptor.Deployment, Source, error) {
	var paths []string
	if path != "" {
		paths = []string{path}
	}

	sources, err := ReadSources(ctx, paths)
	if err != nil {
		return nil, Source{}, err
	}

	source := sources[0]

	deployment, err := ParseSingle(source)
	return deployment, source, err
}

// ParseSingle parses a source that must hold exactly one descriptor.
func ParseSingle(source Source) (*descriptor.Deployment, error) {
	results, err := descriptor.ParseAll(bytes.NewReader(source.Data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source.Name, err)
	}

	switch len(results) {
	case 0:
		return nil, fmt.Errorf("%s: no descriptor found", source.Name)
	case 1:
	default:
		return nil, fmt.Errorf("%s: expected a single descriptor but found %d", source.Name, len(results))
	}

	if err := results[0].Errors.Err(); err != nil {
		return nil, fmt.Errorf("invalid descriptor %s: %w", source.Name, err)
	}

	return results[0].Deployment, nil
}

// Write sends data to stdout, or replaces the file at out.
func Write(ctx context.Context, out string, data []byte) error {
	if out == "" || out == "-" {
		_, err := internal.Stdout(ctx).Write(data)
		return err
	}
	if err := internal.WriteFile(out, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	return nil
}

func Encode(deployment *descriptor.Deployment, format string) ([]byte, error) {
	switch format {
	case "yaml", "":
		return descriptor.Render(deployment)
	case "json":
		return descriptor.RenderJSON(deployment)
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
