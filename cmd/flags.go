package cmd

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/thediveo/enumflag/v2"

	"github.com/bundlekit/bundlekit/internal/config"
	"github.com/bundlekit/bundlekit/internal/logging"
)

func addLoggingFlags(flags *pflag.FlagSet, c *logging.Config) {
	c.Level = logging.Info
	flags.Var(enumflag.New(&c.Level, "level", logging.LevelIds, enumflag.EnumCaseInsensitive), "log-level", "log level (trace, debug, info, warn, error)")
	flags.Var(enumflag.New(&c.Format, "format", logging.FormatIds, enumflag.EnumCaseInsensitive), "log-format", "log format (text, json)")
}

type configParams struct {
	files    []string
	envFiles []string
	strict   bool
}

func addConfigFlags(flags *pflag.FlagSet, p *configParams) {
	flags.StringSliceVarP(&p.files, "config", "c", nil, "configuration file or directory (repeatable, merged in order)")
	flags.StringSliceVar(&p.envFiles, "env-file", nil, "dotenv file to load before reading the configuration (repeatable)")
	flags.BoolVar(&p.strict, "strict-merge", false, "fail when merged configuration files set the same value differently")
}

// overrides are the configuration fields settable from the command line.
// Only flags given explicitly are applied.
type overrides struct {
	jar              string
	command          []string
	compilationLevel string
	warningLevel     string
	formatting       []string
	merge            bool
	outputFile       string
	outputDir        string
	sourceDir        string
	externsDir       string
	stopOnWarnings   bool
	stopOnErrors     bool
	defaultExterns   bool
	logSources       bool
	logExterns       bool
}

func addOverrideFlags(flags *pflag.FlagSet, o *overrides) {
	flags.StringVar(&o.jar, "jar", "", "closure compiler jar")
	flags.StringArrayVar(&o.command, "compiler", nil, "native compiler command, one argument per flag")
	flags.StringVar(&o.compilationLevel, "compilation-level", "", "WHITESPACE_ONLY, SIMPLE_OPTIMIZATIONS or ADVANCED_OPTIMIZATIONS")
	flags.StringVar(&o.warningLevel, "warning-level", "", "QUIET, DEFAULT or VERBOSE")
	flags.StringSliceVar(&o.formatting, "formatting", nil, "PRETTY_PRINT and/or PRINT_INPUT_DELIMITER")
	flags.BoolVar(&o.merge, "merge", true, "compile all sources into one output file")
	flags.StringVar(&o.outputFile, "output-file", "", "merged output file")
	flags.StringVar(&o.outputDir, "output-dir", "", "per-file output directory")
	flags.StringVar(&o.sourceDir, "source-dir", "", "source directory")
	flags.StringVar(&o.externsDir, "externs-dir", "", "externs directory")
	flags.BoolVar(&o.stopOnWarnings, "stop-on-warnings", false, "fail the build on compiler warnings")
	flags.BoolVar(&o.stopOnErrors, "stop-on-errors", false, "fail the build on compiler errors")
	flags.BoolVar(&o.defaultExterns, "default-externs", false, "add the compiler's default externs")
	flags.BoolVar(&o.logSources, "log-sources", false, "log the discovered source files")
	flags.BoolVar(&o.logExterns, "log-externs", false, "log the discovered extern files")
}

// apply sets the fields of the changed flags. Like the values they
// override, relative paths are anchored at the configuration directory.
func (o *overrides) apply(flags *pflag.FlagSet, cfg *config.Root) {
	if flags.Changed("jar") {
		cfg.Compiler.Jar = o.jar
	}
	if flags.Changed("compiler") {
		cfg.Compiler.Jar = ""
		cfg.Compiler.Command = o.command
	}
	if flags.Changed("compilation-level") {
		cfg.Options.CompilationLevel = o.compilationLevel
	}
	if flags.Changed("warning-level") {
		cfg.Options.WarningLevel = o.warningLevel
	}
	if flags.Changed("formatting") {
		cfg.Options.Formatting = config.Formatting(o.formatting)
	}
	if flags.Changed("merge") {
		merge := o.merge
		cfg.Output.Merge = &merge
	}
	if flags.Changed("output-file") {
		cfg.Output.File = o.outputFile
	}
	if flags.Changed("output-dir") {
		cfg.Output.Directory = o.outputDir
	}
	if flags.Changed("source-dir") {
		cfg.Sources.Directory = o.sourceDir
	}
	if flags.Changed("externs-dir") {
		cfg.Externs.Directory = o.externsDir
	}
	if flags.Changed("stop-on-warnings") {
		cfg.Gate.StopOnWarnings = o.stopOnWarnings
	}
	if flags.Changed("stop-on-errors") {
		cfg.Gate.StopOnErrors = o.stopOnErrors
	}
	if flags.Changed("default-externs") {
		cfg.Externs.AddDefaultExterns = o.defaultExterns
	}
	if flags.Changed("log-sources") {
		cfg.Sources.Log = o.logSources
	}
	if flags.Changed("log-externs") {
		cfg.Externs.Log = o.logExterns
	}
}

// load reads the configuration, applies the overrides and resolves its
// paths. Without configuration files the defaults apply, relative to the
// working directory.
func (p *configParams) load(flags *pflag.FlagSet, o *overrides) (*config.Root, error) {
	if err := loadEnv(p.envFiles); err != nil {
		return nil, &ConfigError{Err: err}
	}

	cfg, err := p.read()
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	if o != nil {
		o.apply(flags, cfg)
	}

	if err := cfg.Resolve(); err != nil {
		return nil, &ConfigError{Err: err}
	}
	return cfg, nil
}

func (p *configParams) read() (*config.Root, error) {
	switch len(p.files) {
	case 0:
		return config.Default(), nil
	case 1:
		if fi, err := os.Stat(p.files[0]); err == nil && !fi.IsDir() {
			return config.ParseFile(p.files[0])
		}
	}

	bs, err := config.Merge(p.files, p.strict)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Parse(bs)
	if err != nil {
		return nil, err
	}
	if cfg.BaseDir, err = baseDir(p.files[0]); err != nil {
		return nil, err
	}
	return cfg, nil
}

func baseDir(path string) (string, error) {
	if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
		path = filepath.Dir(path)
	}
	return filepath.Abs(path)
}

// loadEnv loads the given dotenv files, or .env in the working directory
// if it exists. Variables already set are not overridden.
func loadEnv(files []string) error {
	if len(files) > 0 {
		return godotenv.Load(files...)
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
