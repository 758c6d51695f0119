package builder

import (
	"context"
	"io"
	"path/filepath"

	build "github.com/bundlekit/bundlekit/internal/builder"
	"github.com/bundlekit/bundlekit/internal/compiler"
	"github.com/bundlekit/bundlekit/internal/compiler/closure"
	"github.com/bundlekit/bundlekit/internal/config"
	"github.com/bundlekit/bundlekit/internal/gate"
	"github.com/bundlekit/bundlekit/internal/logging"
)

type (
	Config     = config.Root
	Compiler   = compiler.Compiler
	Logger     = logging.Logger
	LogLevel   = logging.Level
	Mode       = build.Mode
	State      = build.State
	Report     = build.Report
	Artifact   = build.Artifact
	BuildError = build.BuildError
)

const (
	Merged  = build.Merged
	PerFile = build.PerFile
)

const (
	Configuring = build.Configuring
	Discovering = build.Discovering
	Compiling   = build.Compiling
	Gating      = build.Gating
	Writing     = build.Writing
	Publishing  = build.Publishing
	Done        = build.Done
	Failed      = build.Failed
)

const (
	LevelTrace = logging.Trace
	LevelDebug = logging.Debug
	LevelInfo  = logging.Info
	LevelWarn  = logging.Warn
	LevelError = logging.Error
)

var (
	ErrStale                = build.ErrStale
	ErrInvalidConfiguration = config.ErrInvalidConfiguration
	ErrDiagnosticGate       = gate.ErrDiagnosticGate
	ErrCompilationFailure   = gate.ErrCompilationFailure
)

// DefaultConfig returns the configuration with every default applied.
// Relative paths are resolved against the working directory.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads and merges the given configuration files in order.
// Relative paths are resolved against the directory of the first file.
func LoadConfig(files ...string) (*Config, error) {
	if len(files) == 1 {
		return config.ParseFile(files[0])
	}
	if len(files) == 0 {
		return DefaultConfig(), nil
	}

	bs, err := config.Merge(files, false)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Parse(bs)
	if err != nil {
		return nil, err
	}
	if cfg.BaseDir, err = filepath.Abs(filepath.Dir(files[0])); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger returns a text logger writing to w.
func NewLogger(w io.Writer, level LogLevel) *Logger {
	return logging.New(w, logging.Config{Level: level, Format: logging.FormatText})
}

// Builder runs the build pipeline for one configuration.
type Builder struct {
	config   *Config
	compiler Compiler
	log      *Logger
	check    io.Writer
	progress io.Writer
	observer func(State)
}

func New() *Builder {
	return &Builder{}
}

func (b *Builder) WithConfig(cfg *Config) *Builder {
	b.config = cfg
	return b
}

// WithCompiler replaces the compiler named in the configuration.
func (b *Builder) WithCompiler(c Compiler) *Builder {
	b.compiler = c
	return b
}

func (b *Builder) WithLogger(log *Logger) *Builder {
	b.log = log
	return b
}

// WithCheck compares the outputs with what is on disk instead of writing
// them. Differences are written to w as unified diffs and fail the build
// with ErrStale.
func (b *Builder) WithCheck(w io.Writer) *Builder {
	b.check = w
	return b
}

// WithProgress draws a progress bar on w in per-file mode.
func (b *Builder) WithProgress(w io.Writer) *Builder {
	b.progress = w
	return b
}

// WithStateObserver calls f on every state transition.
func (b *Builder) WithStateObserver(f func(State)) *Builder {
	b.observer = f
	return b
}

// Build runs the pipeline once. The configuration's paths are resolved in
// place first.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	cfg := b.config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Resolve(); err != nil {
		return &Report{State: Failed}, &BuildError{State: Configuring, Err: err}
	}

	log := b.log
	if log == nil {
		log = logging.NewNop()
	}

	c := b.compiler
	if c == nil {
		cc, err := closure.New(cfg.Compiler, log)
		if err != nil {
			return &Report{State: Failed}, &BuildError{State: Configuring, Err: err}
		}
		c = cc
	}

	inner := build.New().
		WithConfig(cfg).
		WithCompiler(c).
		WithLogger(log).
		WithProgress(b.progress).
		WithStateObserver(b.observer)
	if b.check != nil {
		inner.WithCheck(b.check)
	}

	return inner.Build(ctx)
}
