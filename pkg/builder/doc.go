// Package builder compiles JavaScript sources with the Closure Compiler.
//
// The builder discovers extern and source files below the configured
// directories, resolves the compiler options, invokes the compiler, applies
// the diagnostic gate and writes the compiled output. The configuration has
// the same shape as the bundlekit configuration file.
//
// # Merged Output
//
// By default all sources are compiled together into a single file:
//
//	import "github.com/bundlekit/bundlekit/pkg/builder"
//
//	cfg, err := builder.LoadConfig("bundlekit.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report, err := builder.New().
//	    WithConfig(cfg).
//	    Build(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Artifacts[0].Path)
//
// # Per-File Output
//
// With merging turned off every source is compiled on its own and written
// below the output directory, as <name>.min.js:
//
//	cfg := builder.DefaultConfig()
//	cfg.Sources.Directory = "web/js"
//	cfg.Output.Directory = "dist"
//	merge := false
//	cfg.Output.Merge = &merge
//
//	report, err := builder.New().
//	    WithConfig(cfg).
//	    WithLogger(builder.NewLogger(os.Stderr, builder.LevelInfo)).
//	    Build(ctx)
//
// The first source that fails its gate ends the build; the outputs written
// before it remain.
//
// # Compilers
//
// Unless WithCompiler is used, the compiler configured in Config.Compiler
// is run: either a Closure Compiler jar (with Java) or a native command.
// Any implementation of Compiler can be plugged in, for example to run the
// pipeline in tests without Java. Its ID must change whenever its output
// may change, since cached compilations are keyed by it.
//
// Relative paths of a configuration are anchored at its directory, or at
// the working directory for DefaultConfig, and made absolute when the build
// starts. Relative compiler commands follow the same rule.
//
// # Errors
//
// A failed build returns a *BuildError naming the state the build failed
// in, alongside a Report of the work done so far. Invalid option values
// match ErrInvalidConfiguration, gate failures match ErrDiagnosticGate or
// ErrCompilationFailure.
//
// # Thread Safety
//
// A Builder may be reused for consecutive builds but must not run
// concurrent ones. Create separate instances for concurrent builds.
package builder
