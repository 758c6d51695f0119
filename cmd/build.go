package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/bundlekit/bundlekit/internal/builder"
	"github.com/bundlekit/bundlekit/internal/logging"
	"github.com/bundlekit/bundlekit/internal/metrics"
)

type buildParams struct {
	config      configParams
	overrides   overrides
	logging     logging.Config
	check       bool
	summary     bool
	progress    bool
	metricsFile string
}

func init() {
	RootCommand.AddCommand(newBuildCommand())
}

func newBuildCommand() *cobra.Command {
	var params buildParams

	build := &cobra.Command{
		Use:   "build",
		Short: "Compile the sources once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd, &params)
		},
	}

	addConfigFlags(build.Flags(), &params.config)
	addOverrideFlags(build.Flags(), &params.overrides)
	addLoggingFlags(build.Flags(), &params.logging)
	build.Flags().BoolVar(&params.check, "check", false, "compare the outputs with what is on disk instead of writing them")
	build.Flags().BoolVar(&params.summary, "summary", false, "print a table of the artifacts")
	build.Flags().BoolVar(&params.progress, "progress", false, "show a progress bar in per-file mode")
	build.Flags().StringVar(&params.metricsFile, "metrics-file", "", "write build metrics in Prometheus text format to this file")

	return build
}

func runBuild(cmd *cobra.Command, params *buildParams) error {
	ctx := cmd.Context()
	log := logging.New(cmd.ErrOrStderr(), params.logging)

	cfg, err := params.config.load(cmd.Flags(), &params.overrides)
	if err != nil {
		return err
	}

	b, cleanup, err := newBuilder(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	if params.check {
		b.WithCheck(cmd.OutOrStdout())
	}
	if params.progress {
		b.WithProgress(cmd.ErrOrStderr())
	}

	report, err := b.Build(ctx)

	if params.summary {
		if err := writeSummary(cmd.OutOrStdout(), cfg.BaseDir, report); err != nil {
			log.Warnf("failed to print summary: %v", err)
		}
	}
	if params.metricsFile != "" {
		if err := metrics.WriteFile(params.metricsFile); err != nil {
			log.Warnf("failed to write metrics: %v", err)
		}
	}

	return err
}

func writeSummary(w io.Writer, base string, report *builder.Report) error {
	table := tablewriter.NewWriter(w)
	table.Header("Artifact", "Source", "Bytes", "Warnings", "Cached", "Stale")
	for _, a := range report.Artifacts {
		path := a.Path
		if rel, err := filepath.Rel(base, a.Path); err == nil && base != "" {
			path = rel
		}
		if err := table.Append(path, a.Source, strconv.Itoa(a.Bytes), strconv.Itoa(a.Warnings), strconv.FormatBool(a.Cached), strconv.FormatBool(a.Stale)); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	_, err := fmt.Fprintf(w, "%s build %s: %d source(s), %d extern(s), %d warning(s), %d error(s) in %v\n",
		report.Mode, report.State, report.Sources, report.Externs, report.Warnings, report.Errors, report.Duration)
	return err
}
