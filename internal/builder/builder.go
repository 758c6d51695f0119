// Package builder runs the build pipeline: it resolves the compiler
// options, discovers externs and sources, invokes the compiler, gates on
// its diagnostics and writes the compiled output, merged into one file or
// one file per source.
package builder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/bundlekit/bundlekit/internal/compiler"
	"github.com/bundlekit/bundlekit/internal/config"
	bkfs "github.com/bundlekit/bundlekit/internal/fs"
	"github.com/bundlekit/bundlekit/internal/gate"
	"github.com/bundlekit/bundlekit/internal/logging"
	"github.com/bundlekit/bundlekit/internal/metrics"
	"github.com/bundlekit/bundlekit/internal/output"
	"github.com/bundlekit/bundlekit/internal/progress"
	"github.com/bundlekit/bundlekit/internal/s3"
)

// Mode selects how sources map onto output artifacts.
type Mode int

const (
	// Merged compiles all sources together into one artifact.
	Merged Mode = iota
	// PerFile compiles every source on its own into its own artifact.
	PerFile
)

func (m Mode) String() string {
	if m == PerFile {
		return "per-file"
	}
	return "merged"
}

// State is a step of the build state machine. Compiling, Gating and
// Writing repeat once per source in PerFile mode.
type State int

const (
	Configuring State = iota
	Discovering
	Compiling
	Gating
	Writing
	Publishing
	Done
	Failed
)

var stateNames = [...]string{"configuring", "discovering", "compiling", "gating", "writing", "publishing", "done", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrStale is returned in check mode when an output differs from what the
// build would write.
var ErrStale = errors.New("outputs are stale")

// BuildError records the state in which a build failed.
type BuildError struct {
	State State
	Err   error
}

func (e *BuildError) Error() string {
	return e.Err.Error()
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Artifact is one output of a build.
type Artifact struct {
	Path     string
	Source   string // empty in Merged mode
	Bytes    int
	Warnings int
	Cached   bool
	Stale    bool
}

// Report summarizes a build, successful or not.
type Report struct {
	State     State
	Mode      Mode
	Externs   int
	Sources   int
	Artifacts []Artifact
	Warnings  int
	Errors    int
	Stale     bool
	Duration  time.Duration
}

// Builder builds the outputs of one configuration. A Builder may be reused
// for consecutive builds but not for concurrent ones.
type Builder struct {
	compiler  compiler.Compiler
	config    *config.Root
	log       *logging.Logger
	cache     Cache
	digests   *Digests
	publisher s3.ObjectStorage
	check     io.Writer
	progress  io.Writer
	observer  func(State)
}

func New() *Builder {
	return &Builder{}
}

func (b *Builder) WithCompiler(c compiler.Compiler) *Builder {
	b.compiler = c
	return b
}

// WithConfig sets the configuration. Its paths are expected to be
// resolved, see config.Root.Resolve.
func (b *Builder) WithConfig(cfg *config.Root) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithLogger(log *logging.Logger) *Builder {
	b.log = log
	return b
}

// WithCache replays and records successful compilations.
func (b *Builder) WithCache(c Cache) *Builder {
	b.cache = c
	return b
}

// WithDigests shares content digests between builds, for example across
// the rebuilds of watch mode.
func (b *Builder) WithDigests(d *Digests) *Builder {
	b.digests = d
	return b
}

// WithPublisher uploads every written artifact after the build.
func (b *Builder) WithPublisher(p s3.ObjectStorage) *Builder {
	b.publisher = p
	return b
}

// WithCheck turns on check mode: instead of writing, outputs are compared
// with what is on disk and differences are written to w as unified diffs.
func (b *Builder) WithCheck(w io.Writer) *Builder {
	b.check = w
	return b
}

// WithProgress draws per-file progress on w.
func (b *Builder) WithProgress(w io.Writer) *Builder {
	b.progress = w
	return b
}

// WithStateObserver calls f on every state transition.
func (b *Builder) WithStateObserver(f func(State)) *Builder {
	b.observer = f
	return b
}

// build is the state of one Build call.
type build struct {
	*Builder
	report  *Report
	opts    compiler.Options
	policy  gate.Policy
	externs []compiler.DeclarationUnit
	sources []compiler.SourceUnit
}

// Build runs the pipeline once. The report is returned also on failure;
// the error is then a *BuildError.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	if b.log == nil {
		b.log = logging.NewNop()
	}
	if b.digests == nil {
		b.digests = NewDigests(defaultDigests)
	}

	start := time.Now()
	metrics.BuildCount.Inc()

	bd := &build{Builder: b, report: &Report{}}
	err := bd.run(ctx)

	bd.report.Duration = time.Since(start)
	metrics.BuildDuration.Observe(bd.report.Duration.Seconds())
	metrics.LastBuildEnd.SetToCurrentTime()

	if err != nil {
		metrics.BuildFailed.WithLabelValues(reason(err)).Inc()
		bd.enter(Failed)
		return bd.report, err
	}

	bd.enter(Done)
	return bd.report, nil
}

func (bd *build) enter(s State) {
	bd.report.State = s
	bd.log.Tracef("build %s", s)
	if bd.observer != nil {
		bd.observer(s)
	}
}

func (bd *build) fail(err error) error {
	return &BuildError{State: bd.report.State, Err: err}
}

func (bd *build) run(ctx context.Context) error {
	bd.enter(Configuring)
	if err := bd.configure(); err != nil {
		return bd.fail(err)
	}

	bd.enter(Discovering)
	if err := bd.discover(ctx); err != nil {
		return bd.fail(err)
	}

	var root string
	var err error
	switch bd.report.Mode {
	case Merged:
		root, err = bd.merged(ctx)
	case PerFile:
		root, err = bd.perFile(ctx)
	}
	if err != nil {
		return bd.fail(err)
	}

	if bd.report.Stale {
		return bd.fail(ErrStale)
	}

	if bd.publisher != nil && bd.check == nil {
		bd.enter(Publishing)
		if err := bd.publish(ctx, root); err != nil {
			return bd.fail(err)
		}
	}

	return nil
}

func (bd *build) configure() error {
	if bd.config == nil {
		return errors.New("no configuration")
	}
	if bd.compiler == nil {
		return errors.New("no compiler")
	}

	opts, err := compiler.ResolveOptions(bd.config.Options)
	if err != nil {
		return err
	}
	// The compiler verbosity is fixed here for the whole build.
	opts.Log = bd.log.WithLevel(opts.Verbosity).With("component", "compiler")
	bd.opts = opts

	bd.policy = gate.Policy{
		FailOnWarnings: bd.config.Gate.StopOnWarnings,
		FailOnErrors:   bd.config.Gate.StopOnErrors,
	}

	bd.report.Mode = Merged
	if !bd.config.Output.MergeEnabled() {
		bd.report.Mode = PerFile
	}
	return nil
}

func (bd *build) discover(ctx context.Context) error {
	cfg := bd.config

	if cfg.Externs.AddDefaultExterns {
		defaults, err := bd.compiler.DefaultExterns(ctx)
		if err != nil {
			return err
		}
		bd.externs = append(bd.externs, defaults...)
	}

	externsDir := cfg.Externs.Directory
	externs, err := bkfs.ResolveDir(externsDir, bkfs.RecursiveRule(bkfs.ScriptExtension), bd.log)
	if err != nil {
		return err
	}
	bd.logFaults(externs)
	bd.externs = append(bd.externs, compiler.DeclarationFiles(externsDir, externs.Paths)...)

	sourcesDir := cfg.Sources.Directory
	sources, err := bkfs.ResolveDir(sourcesDir,
		bkfs.PatternRule(cfg.Sources.IncludedFiles, cfg.Sources.ExcludedFiles, cfg.Sources.DefaultExcludesEnabled()),
		bd.log)
	if err != nil {
		return err
	}
	bd.logFaults(sources)
	bd.sources = compiler.SourceFiles(sourcesDir, sources.Paths)

	if cfg.Externs.Log {
		bd.log.Infof("Extern files:")
		for _, u := range bd.externs {
			bd.log.Infof("%s", u.Name())
		}
	}
	if cfg.Sources.Log {
		bd.log.Infof("Source files:")
		for _, u := range bd.sources {
			bd.log.Infof("%s", u.Name())
		}
	}

	bd.report.Externs = len(bd.externs)
	bd.report.Sources = len(bd.sources)
	bd.log.Debugf("Discovered %d extern(s) and %d source(s)", len(bd.externs), len(bd.sources))
	return nil
}

func (bd *build) logFaults(r *bkfs.Result) {
	for _, f := range r.Faults {
		bd.log.Warnf("%v", f)
	}
}

// merged compiles all sources in one invocation and returns the output
// root used for publishing.
func (bd *build) merged(ctx context.Context) (string, error) {
	dest := bd.config.Output.File

	bd.enter(Compiling)
	result, cached, err := bd.compile(ctx, bd.sources)
	if err != nil {
		return "", err
	}

	bd.enter(Gating)
	if err := bd.gate(result); err != nil {
		return "", err
	}

	bd.enter(Writing)
	if err := bd.emit(Artifact{Path: dest, Warnings: len(result.Warnings), Cached: cached}, result.Text); err != nil {
		return "", err
	}

	return filepath.Dir(dest), nil
}

// perFile compiles and writes the sources one by one, in discovery order.
// The first failing source ends the build.
func (bd *build) perFile(ctx context.Context) (string, error) {
	dir := bd.config.Output.Directory

	bar := progress.New(bd.progress, len(bd.sources), "compiling")
	defer bar.Finish()

	for _, src := range bd.sources {
		bd.enter(Compiling)
		result, cached, err := bd.compile(ctx, []compiler.SourceUnit{src})
		if err != nil {
			return "", err
		}

		bd.enter(Gating)
		if err := bd.gate(result); err != nil {
			return "", fmt.Errorf("%s: %w", src.Name(), err)
		}

		bd.enter(Writing)
		a := Artifact{
			Path:     output.Destination(dir, src.Name(), bkfs.ScriptExtension),
			Source:   src.Name(),
			Warnings: len(result.Warnings),
			Cached:   cached,
		}
		if err := bd.emit(a, result.Text); err != nil {
			return "", err
		}
		bar.Step(src.Name())
	}

	return dir, nil
}

func (bd *build) gate(result *compiler.Result) error {
	bd.report.Warnings += len(result.Warnings)
	bd.report.Errors += len(result.Errors)
	metrics.Diagnostics.WithLabelValues(string(compiler.LevelWarning)).Add(float64(len(result.Warnings)))
	metrics.Diagnostics.WithLabelValues(string(compiler.LevelError)).Add(float64(len(result.Errors)))

	return gate.Evaluate(bd.log, result, bd.policy).Err()
}

// emit writes text to the artifact's path, or in check mode compares it
// with the path's content.
func (bd *build) emit(a Artifact, text string) error {
	a.Bytes = len(text)

	if bd.check != nil {
		diff, err := output.Check(text, a.Path)
		if err != nil {
			return err
		}
		if diff != "" {
			a.Stale = true
			bd.report.Stale = true
			fmt.Fprint(bd.check, diff)
		}
	} else {
		if err := output.Write(text, a.Path); err != nil {
			return err
		}
		bd.log.Debugf("Wrote %s", a.Path)
	}

	bd.report.Artifacts = append(bd.report.Artifacts, a)
	return nil
}

// reason is the failure label of the build metrics.
func reason(err error) string {
	var failure *gate.Failure
	var writeErr *output.WriteError
	var publishErr *PublishError
	switch {
	case errors.As(err, &failure):
		return failure.Reason
	case errors.Is(err, config.ErrInvalidConfiguration):
		return "invalid configuration"
	case errors.As(err, &writeErr):
		return "write"
	case errors.As(err, &publishErr):
		return "publish"
	case errors.Is(err, ErrStale):
		return "stale"
	}
	return "other"
}
