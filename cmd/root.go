package cmd

import (
	"errors"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/spf13/cobra"

	"github.com/bundlekit/bundlekit/internal/config"
)

var RootCommand = &cobra.Command{
	Use:   "bundlekit",
	Short: "Bundle JavaScript sources with the Closure Compiler",
	Long: `bundlekit discovers JavaScript sources and externs, compiles them with the
Closure Compiler and writes the result into one merged file or one file per
source.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// ConfigError marks failures to load or validate the configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return e.Err.Error()
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ExitCode maps the error returned by a command onto the process exit
// code: 2 for an invalid configuration, 1 for any other failure.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var cfgErr *ConfigError
	var schemaErr *jsonschema.ValidationError
	switch {
	case errors.As(err, &cfgErr), errors.As(err, &schemaErr), errors.Is(err, config.ErrInvalidConfiguration):
		return 2
	}
	return 1
}
