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
	"github.com/lsst-dm/imgdeploy/pkg/descriptor"
)

type ValidateParams struct {
	GlobalSettings
	Paths []string
	Quiet bool
}

//go:embed cmd_validate_help.txt
var validateHelp string

func init() {
	validateHelp = strings.TrimSpace(internal.Colorize(validateHelp))
}

func GetValidateParams(settings GlobalSettings, args []string) (*ValidateParams, error) {
	flagset := flag.NewFlagSet("validate", flag.ExitOnError)

	flagset.Usage = func() {
		fmt.Fprintln(flagset.Output(), validateHelp)
		flagset.PrintDefaults()
	}

	params := ValidateParams{GlobalSettings: settings}

	RegisterGlobalFlags(flagset, &params.GlobalSettings)
	flagset.BoolVar(&params.Quiet, "quiet", false, "only report problems, never the success summary")

	flagset.Parse(args)

	params.Paths = flagset.Args()

	return &params, nil
}

func Validate(ctx context.Context, params ValidateParams) error {
	ctx = internal.WithDebugFlag(ctx, &params.Debug)

	sources, err := ReadSources(ctx, params.Paths)
	if err != nil {
		return err
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleRounded)
	tbl.AppendHeader(table.Row{"source", "line", "type", "field", "problem"})

	var documents, problems int

	for _, source := range sources {
		results, err := descriptor.ParseAll(bytes.NewReader(source.Data))
		if err != nil {
			return fmt.Errorf("%s: %w", source.Name, err)
		}
		if len(results) == 0 {
			return fmt.Errorf("%s: no descriptor found", source.Name)
		}

		for _, result := range results {
			documents++
			name := source.Name
			if len(results) > 1 {
				name = fmt.Sprintf("%s#%d", source.Name, result.Index)
			}
			internal.Debug(ctx).Printf("%s: %d problem(s)\n", name, len(result.Errors))
			for _, problem := range result.Errors {
				problems++
				tbl.AppendRow(table.Row{name, lineOf(problem), problem.Type, problem.Field, describeProblem(problem)})
			}
		}
	}

	if problems == 0 {
		if !params.Quiet {
			fmt.Fprintf(internal.Stdout(ctx), "%d descriptor(s) valid\n", documents)
		}
		return nil
	}

	fmt.Fprintln(internal.Stdout(ctx), tbl.Render())

	return fmt.Errorf("found %d problem(s) in %d descriptor(s)", problems, documents)
}

func lineOf(problem *descriptor.Error) string {
	if problem.Line == 0 {
		return "-"
	}
	return fmt.Sprint(problem.Line)
}

func describeProblem(problem *descriptor.Error) string {
	if problem.Value == nil {
		return problem.Detail
	}
	return fmt.Sprintf("%s: %v", problem.Detail, problem.Value)
}
