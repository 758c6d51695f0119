package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bundlekit/bundlekit/internal/compiler"
	"github.com/bundlekit/bundlekit/internal/config"
	bkfs "github.com/bundlekit/bundlekit/internal/fs"
)

func init() {
	RootCommand.AddCommand(newConfigCommand())
}

func newConfigCommand() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	schema := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bs, err := config.ReflectSchema()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(append(bs, '\n'))
			return err
		},
	}

	var params configParams
	var o overrides
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load the configuration and resolve the compiler options",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := params.load(cmd.Flags(), &o)
			if err != nil {
				return err
			}
			opts, err := compiler.ResolveOptions(cfg.Options)
			if err != nil {
				return err
			}
			srcDir := cfg.Sources.Directory
			rule := bkfs.PatternRule(cfg.Sources.IncludedFiles, cfg.Sources.ExcludedFiles, cfg.Sources.DefaultExcludesEnabled())
			if ok, err := bkfs.FSContainsFiles(os.DirFS(srcDir), rule); err != nil {
				return err
			} else if !ok {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: no source files selected in %s\n", srcDir)
			}

			mode := "merged into " + cfg.Output.File
			if !cfg.Output.MergeEnabled() {
				mode = "per file into " + cfg.Output.Directory
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Configuration is valid: %s, %s, %s\n", opts.CompilationLevel, opts.WarningLevel, mode)
			return err
		},
	}
	addConfigFlags(validate.Flags(), &params)
	addOverrideFlags(validate.Flags(), &o)

	cfgCmd.AddCommand(schema, validate)
	return cfgCmd
}
