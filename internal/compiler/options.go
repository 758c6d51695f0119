package compiler

import (
	"slices"

	"github.com/bundlekit/bundlekit/internal/config"
	"github.com/bundlekit/bundlekit/internal/logging"
)

// CompilationLevel is the aggressiveness of the optimizer.
type CompilationLevel string

const (
	WhitespaceOnly        CompilationLevel = "WHITESPACE_ONLY"
	SimpleOptimizations   CompilationLevel = "SIMPLE_OPTIMIZATIONS"
	AdvancedOptimizations CompilationLevel = "ADVANCED_OPTIMIZATIONS"
)

var CompilationLevels = []CompilationLevel{WhitespaceOnly, SimpleOptimizations, AdvancedOptimizations}

// WarningLevel is the strictness of the diagnostic checks.
type WarningLevel string

const (
	Quiet   WarningLevel = "QUIET"
	Default WarningLevel = "DEFAULT"
	Verbose WarningLevel = "VERBOSE"
)

var WarningLevels = []WarningLevel{Quiet, Default, Verbose}

const (
	PrettyPrint         = "PRETTY_PRINT"
	PrintInputDelimiter = "PRINT_INPUT_DELIMITER"
)

var FormattingOptions = []string{PrettyPrint, PrintInputDelimiter}

// LoggingLevels maps the compiler logging verbosity names onto logger
// levels.
var LoggingLevels = map[string]logging.Level{
	"ALL":     logging.Trace,
	"CONFIG":  logging.Debug,
	"FINE":    logging.Debug,
	"FINER":   logging.Trace,
	"FINEST":  logging.Trace,
	"INFO":    logging.Info,
	"OFF":     logging.Off,
	"SEVERE":  logging.Error,
	"WARNING": logging.Warn,
}

// Severity of a diagnostic group.
type Severity string

const (
	SeverityOff     Severity = "OFF"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// Optimizations are the optimizer passes a compilation level turns on. The
// compiler derives them from the level itself.
type Optimizations struct {
	RemoveWhitespace      bool `json:"remove_whitespace"`
	FoldConstants         bool `json:"fold_constants"`
	RemoveDeadCode        bool `json:"remove_dead_code"`
	RenameLocalVariables  bool `json:"rename_local_variables"`
	InlineLocalFunctions  bool `json:"inline_local_functions"`
	CollapseProperties    bool `json:"collapse_properties"`
	RenameProperties      bool `json:"rename_properties"`
	RemoveUnusedPrototype bool `json:"remove_unused_prototype_properties"`
	InlineFunctions       bool `json:"inline_functions"`
}

// Formatting are the non-exclusive output formatting toggles.
type Formatting struct {
	PrettyPrint         bool `json:"pretty_print"`
	PrintInputDelimiter bool `json:"print_input_delimiter"`
}

// Options is the resolved, immutable compiler configuration of one build.
type Options struct {
	CompilationLevel   CompilationLevel    `json:"compilation_level"`
	Optimizations      Optimizations       `json:"optimizations"`
	WarningLevel       WarningLevel        `json:"warning_level"`
	DiagnosticGroups   map[string]Severity `json:"diagnostic_groups"`
	ManageDependencies bool                `json:"manage_dependencies"`
	GenerateExports    bool                `json:"generate_exports"`
	Formatting         Formatting          `json:"formatting"`

	// LoggingLevel is the symbolic compiler verbosity and Verbosity the
	// logger level it maps to. Neither affects the compiled output.
	LoggingLevel string        `json:"-"`
	Verbosity    logging.Level `json:"-"`

	// Log receives the compiler's own output. It is derived once per build
	// at Verbosity and read by every invocation of that build.
	Log *logging.Logger `json:"-"`
}

// ResolveOptions maps declarative configuration onto compiler options. The
// steps apply in order so that later ones refine earlier ones. Unknown
// symbolic values fail with a *config.InvalidConfigurationError.
func ResolveOptions(c config.Options) (Options, error) {
	var opts Options

	level := CompilationLevel(c.CompilationLevel)
	if !slices.Contains(CompilationLevels, level) {
		return Options{}, invalid("Compilation level", c.CompilationLevel, CompilationLevels)
	}
	opts.CompilationLevel = level
	opts.Optimizations = level.optimizations()

	warnings := WarningLevel(c.WarningLevel)
	if !slices.Contains(WarningLevels, warnings) {
		return Options{}, invalid("Warning level", c.WarningLevel, WarningLevels)
	}
	opts.WarningLevel = warnings
	opts.DiagnosticGroups = warnings.diagnosticGroups()

	opts.ManageDependencies = c.ManageDependencies
	opts.GenerateExports = c.GenerateExports

	for _, f := range c.Formatting {
		switch f {
		case PrettyPrint:
			opts.Formatting.PrettyPrint = true
		case PrintInputDelimiter:
			opts.Formatting.PrintInputDelimiter = true
		default:
			return Options{}, invalid("Formatting", f, FormattingOptions)
		}
	}

	verbosity, ok := LoggingLevels[c.LoggingLevel]
	if !ok {
		return Options{}, invalid("Logging level", c.LoggingLevel, loggingLevelNames())
	}
	opts.LoggingLevel = c.LoggingLevel
	opts.Verbosity = verbosity

	return opts, nil
}

func (l CompilationLevel) optimizations() Optimizations {
	var o Optimizations
	switch l {
	case AdvancedOptimizations:
		o.CollapseProperties = true
		o.RenameProperties = true
		o.RemoveUnusedPrototype = true
		o.InlineFunctions = true
		fallthrough
	case SimpleOptimizations:
		o.FoldConstants = true
		o.RemoveDeadCode = true
		o.RenameLocalVariables = true
		o.InlineLocalFunctions = true
		fallthrough
	case WhitespaceOnly:
		o.RemoveWhitespace = true
	}
	return o
}

// verboseGroups are the compiler's diagnostic groups that VERBOSE turns on.
var verboseGroups = []string{"checkTypes", "checkVars", "deprecated", "globalThis", "missingProperties", "undefinedVars", "visibility"}

func (l WarningLevel) diagnosticGroups() map[string]Severity {
	groups := make(map[string]Severity, len(verboseGroups))
	for _, g := range verboseGroups {
		switch l {
		case Verbose:
			groups[g] = SeverityWarning
		case Default:
			if g == "checkVars" || g == "undefinedVars" {
				groups[g] = SeverityWarning
			} else {
				groups[g] = SeverityOff
			}
		default:
			groups[g] = SeverityOff
		}
	}
	return groups
}

func loggingLevelNames() []string {
	names := make([]string, 0, len(LoggingLevels))
	for name := range LoggingLevels {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func invalid[T ~string](field, value string, allowed []T) error {
	values := make([]string, len(allowed))
	for i, a := range allowed {
		values[i] = string(a)
	}
	return &config.InvalidConfigurationError{Field: field, Value: value, Allowed: values}
}
