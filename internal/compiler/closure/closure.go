// Package closure runs the Closure Compiler command line.
package closure

import (
	"archive/zip"
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/bundlekit/bundlekit/internal/compiler"
	"github.com/bundlekit/bundlekit/internal/config"
	"github.com/bundlekit/bundlekit/internal/logging"
)

const (
	externsArchive = "externs.zip"
	outputFile     = "compiled.js"
)

var errNoCompiler = errors.New("compiler jar or command is required")

// Compiler invokes the Closure Compiler once per compilation, each time in
// a fresh scratch directory that is removed afterwards.
type Compiler struct {
	argv    []string
	jar     string
	scratch string
	log     *logging.Logger
}

// New returns a compiler for the configured jar or native command. The jar
// takes precedence. The compiler runs in a scratch directory, so relative
// paths are made absolute here against the working directory; bare command
// names are looked up on PATH.
func New(cfg config.Compiler, log *logging.Logger) (*Compiler, error) {
	c := &Compiler{log: cmp.Or(log, logging.NewNop())}
	switch {
	case cfg.Jar != "":
		jar, err := filepath.Abs(cfg.Jar)
		if err != nil {
			return nil, err
		}
		java, err := absCommand(cmp.Or(cfg.Java, "java"))
		if err != nil {
			return nil, err
		}
		c.jar = jar
		c.argv = []string{java, "-jar", jar}
	case len(cfg.Command) > 0:
		c.argv = slices.Clone(cfg.Command)
		name, err := absCommand(c.argv[0])
		if err != nil {
			return nil, err
		}
		c.argv[0] = name
	default:
		return nil, errNoCompiler
	}
	return c, nil
}

// absCommand makes a command given as a path absolute. Bare names are left
// to exec's PATH lookup, which does not depend on the directory the command
// runs in.
func absCommand(name string) (string, error) {
	if !strings.ContainsRune(filepath.ToSlash(name), '/') {
		return name, nil
	}
	return filepath.Abs(name)
}

// ID identifies the compiler by the command line it runs and the size and
// modification time of the jar, or of the native executable.
func (c *Compiler) ID() string {
	id := strings.Join(c.argv, "\x00")

	binary := c.jar
	if binary == "" {
		binary, _ = exec.LookPath(c.argv[0])
	}
	if binary != "" {
		if fi, err := os.Stat(binary); err == nil {
			id += fmt.Sprintf("\x00%d\x00%d", fi.Size(), fi.ModTime().UnixNano())
		}
	}
	return id
}

// WithScratchDir sets the parent of the per-invocation scratch directories.
func (c *Compiler) WithScratchDir(dir string) *Compiler {
	c.scratch = dir
	return c
}

func (c *Compiler) Compile(ctx context.Context, externs []compiler.DeclarationUnit, sources []compiler.SourceUnit, opts compiler.Options) (*compiler.Result, error) {
	log := cmp.Or(opts.Log, c.log)

	dir, err := os.MkdirTemp(c.scratch, "bundlekit-")
	if err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	defer os.RemoveAll(dir)

	s := stage{dir: dir, names: make(map[string]string, len(externs)+len(sources))}
	args := Flags(opts)
	for i, u := range externs {
		p, err := s.write("externs", i, u.Name(), u.ReadContent)
		if err != nil {
			return nil, err
		}
		args = append(args, "--externs", p)
	}
	for i, u := range sources {
		p, err := s.write("js", i, u.Name(), u.ReadContent)
		if err != nil {
			return nil, err
		}
		args = append(args, "--js", p)
	}
	args = append(args, "--js_output_file", outputFile)

	argv := append(slices.Clone(c.argv), args...)
	log.Debugf("running %s", strings.Join(argv, " "))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil && ctx.Err() != nil {
		return nil, fmt.Errorf("compiler interrupted: %w", ctx.Err())
	}
	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		return nil, fmt.Errorf("failed to run compiler: %w", runErr)
	}

	diagnostics, chatter := parseDiagnostics(stderr.Bytes())
	for _, line := range append(chatter, nonEmptyLines(stdout.String())...) {
		log.Infof("%s", line)
	}

	result := &compiler.Result{}
	for _, d := range diagnostics {
		if name, ok := s.names[d.Source]; ok {
			d.Source = name
		}
		switch d.Level {
		case compiler.LevelError:
			result.Errors = append(result.Errors, d)
		case compiler.LevelWarning:
			result.Warnings = append(result.Warnings, d)
		default:
			log.Debugf("%s", d.Message())
		}
	}

	if runErr != nil && len(result.Errors) == 0 {
		result.Errors = append(result.Errors, compiler.Diagnostic{
			Level:       compiler.LevelError,
			Description: fmt.Sprintf("compiler exited with status %d", exitErr.ExitCode()),
		})
	}

	result.Success = runErr == nil && len(result.Errors) == 0
	if result.Success {
		bs, err := os.ReadFile(filepath.Join(dir, outputFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read compiler output: %w", err)
		}
		result.Text = string(bs)
	}

	return result, nil
}

// DefaultExterns reads the externs bundled in the compiler jar. A native
// compiler command has no accessible bundle.
func (c *Compiler) DefaultExterns(context.Context) ([]compiler.DeclarationUnit, error) {
	if c.jar == "" {
		return nil, errors.New("default externs adding error: no compiler jar configured")
	}

	units, err := readDefaultExterns(c.jar)
	if err != nil {
		return nil, fmt.Errorf("default externs adding error: %w", err)
	}
	return units, nil
}

func readDefaultExterns(jar string) ([]compiler.DeclarationUnit, error) {
	r, err := zip.OpenReader(jar)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	f, err := r.Open(externsArchive)
	if err != nil {
		return nil, err
	}
	bs, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, err
	}

	inner, err := zip.NewReader(bytes.NewReader(bs), int64(len(bs)))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", externsArchive, err)
	}

	var units []compiler.DeclarationUnit
	for _, entry := range inner.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, err
		}
		content, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
		units = append(units, compiler.NewDeclaration(externsArchive+"//"+entry.Name, content))
	}
	slices.SortFunc(units, func(a, b compiler.DeclarationUnit) int {
		return strings.Compare(a.Name(), b.Name())
	})
	return units, nil
}

// Flags renders the options as compiler command line flags. The compiler's
// own default externs are always disabled: they are added as declaration
// units when requested. The optimizer passes follow from the compilation
// level; the diagnostic groups of the warning level are passed one by one.
func Flags(opts compiler.Options) []string {
	args := []string{
		"--compilation_level", string(opts.CompilationLevel),
		"--warning_level", string(opts.WarningLevel),
		"--env", "CUSTOM",
		"--error_format", "JSON",
	}
	if opts.ManageDependencies {
		args = append(args, "--dependency_mode", "PRUNE_LEGACY")
	}
	if opts.GenerateExports {
		args = append(args, "--generate_exports")
	}
	if opts.Formatting.PrettyPrint {
		args = append(args, "--formatting", compiler.PrettyPrint)
	}
	if opts.Formatting.PrintInputDelimiter {
		args = append(args, "--formatting", compiler.PrintInputDelimiter)
	}
	for _, g := range slices.Sorted(maps.Keys(opts.DiagnosticGroups)) {
		switch opts.DiagnosticGroups[g] {
		case compiler.SeverityOff:
			args = append(args, "--jscomp_off", g)
		case compiler.SeverityWarning:
			args = append(args, "--jscomp_warning", g)
		case compiler.SeverityError:
			args = append(args, "--jscomp_error", g)
		}
	}
	return args
}

// stage copies units into the scratch directory and remembers the names
// they are reported by.
type stage struct {
	dir   string
	names map[string]string
}

func (s *stage) write(kind string, i int, name string, read func() ([]byte, error)) (string, error) {
	bs, err := read()
	if err != nil {
		return "", err
	}

	rel := path.Join(kind, name)
	if !filepath.IsLocal(name) || strings.Contains(name, "//") {
		rel = path.Join(kind, strconv.Itoa(i), path.Base(name))
	}

	dst := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(dst, bs, 0o644); err != nil {
		return "", err
	}

	s.names[rel] = name
	return rel, nil
}

// parseDiagnostics extracts the JSON diagnostic arrays from the compiler's
// error stream. Everything else is returned line by line.
func parseDiagnostics(stream []byte) ([]compiler.Diagnostic, []string) {
	var diagnostics []compiler.Diagnostic
	var chatter []string

	rest := stream
	for len(rest) > 0 {
		line, tail, _ := bytes.Cut(rest, []byte("\n"))
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("[")) {
			dec := json.NewDecoder(bytes.NewReader(rest))
			var batch []compiler.Diagnostic
			if err := dec.Decode(&batch); err == nil {
				diagnostics = append(diagnostics, batch...)
				rest = rest[dec.InputOffset():]
				continue
			}
		}
		if s := strings.TrimSpace(string(line)); s != "" {
			chatter = append(chatter, s)
		}
		rest = tail
	}

	return diagnostics, chatter
}

func nonEmptyLines(s string) []string {
	var lines []string
	for line := range strings.Lines(s) {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
