package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/bundlekit/bundlekit/internal/config"
)

// fakeClosure concatenates its --js inputs into the output file and fails
// with a JSON error diagnostic for any input containing ERROR.
const fakeClosure = `#!/bin/sh
out=""
js=""
while [ $# -gt 0 ]; do
  case "$1" in
    --js) js="$js $2"; shift ;;
    --js_output_file) out="$2"; shift ;;
  esac
  shift
done
for f in $js; do
  if grep -q ERROR "$f"; then
    printf '[{"level":"error","key":"JSC_FAKE_ERROR","description":"fake error","source":"%s","line":1,"column":0}]\n' "$f" >&2
    exit 1
  fi
done
cat $js > "$out"
`

type project struct {
	dir    string
	config string
}

func newProject(t *testing.T, extra string, files map[string]string) *project {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	dir := t.TempDir()
	script := filepath.Join(t.TempDir(), "closure")
	writeFile(t, script, fakeClosure)
	if err := os.Chmod(script, 0o755); err != nil {
		t.Fatal(err)
	}

	for name, content := range files {
		writeFile(t, filepath.Join(dir, filepath.FromSlash(name)), content)
	}

	cfg := fmt.Sprintf(`compiler:
  command: [%q]
options:
  compilation_level: WHITESPACE_ONLY
externs:
  directory: externs
sources:
  directory: src
output:
  file: dist/app.js
  directory: out
%s`, script, extra)
	p := &project{dir: dir, config: filepath.Join(dir, "bundlekit.yaml")}
	writeFile(t, p.config, cfg)
	return p
}

func (p *project) read(t *testing.T, name string) string {
	t.Helper()
	bs, err := os.ReadFile(filepath.Join(p.dir, filepath.FromSlash(name)))
	if err != nil {
		t.Fatal(err)
	}
	return string(bs)
}

type result struct {
	stdout string
	stderr string
	err    error
	code   int
}

func run(t *testing.T, args ...string) result {
	t.Helper()

	root := &cobra.Command{Use: "bundlekit", SilenceErrors: true, SilenceUsage: true}
	root.AddCommand(newBuildCommand(), newConfigCommand())

	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.ExecuteContext(t.Context())
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err, code: ExitCode(err)}
}

func TestBuildMerged(t *testing.T) {
	p := newProject(t, "", map[string]string{
		"src/a.js": "var a;\n",
		"src/b.js": "var b;\n",
	})

	r := run(t, "build", "-c", p.config, "--summary")
	if r.code != 0 {
		t.Fatalf("unexpected exit code %d: %v\n%s", r.code, r.err, r.stderr)
	}
	if got := p.read(t, "dist/app.js"); got != "var a;\nvar b;\n" {
		t.Fatalf("unexpected output %q", got)
	}
	if !strings.Contains(r.stdout, filepath.Join("dist", "app.js")) || !strings.Contains(r.stdout, "merged build done") {
		t.Fatalf("unexpected summary:\n%s", r.stdout)
	}
}

func TestBuildPerFileOverride(t *testing.T) {
	p := newProject(t, "", map[string]string{
		"src/a.js":     "var a;\n",
		"src/pkg/b.js": "var b;\n",
	})

	r := run(t, "build", "-c", p.config, "--merge=false", "--output-dir", "site")
	if r.code != 0 {
		t.Fatalf("unexpected exit code %d: %v\n%s", r.code, r.err, r.stderr)
	}
	if got := p.read(t, "site/a.min.js"); got != "var a;\n" {
		t.Fatalf("unexpected output %q", got)
	}
	if got := p.read(t, "site/pkg/b.min.js"); got != "var b;\n" {
		t.Fatalf("unexpected output %q", got)
	}
	if _, err := os.Stat(filepath.Join(p.dir, "dist", "app.js")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no merged output, got %v", err)
	}
}

func TestBuildExitCodes(t *testing.T) {
	cases := []struct {
		note    string
		extra   string
		files   map[string]string
		args    []string
		code    int
		message string
	}{
		{
			note:    "invalid compilation level",
			args:    []string{"--compilation-level", "FAST"},
			code:    2,
			message: `Compilation level invalid: "FAST"`,
		},
		{
			note:    "invalid formatting",
			args:    []string{"--formatting", "SINGLE_QUOTES"},
			code:    2,
			message: "Formatting invalid",
		},
		{
			note:  "schema violation",
			extra: "bogus: 1\n",
			code:  2,
		},
		{
			note:    "compilation failure",
			files:   map[string]string{"src/a.js": "// ERROR\n"},
			code:    1,
			message: "Compilation failure",
		},
		{
			note:    "missing configuration file",
			args:    []string{"-c", "does-not-exist.yaml"},
			code:    2,
			message: "does-not-exist.yaml",
		},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			p := newProject(t, tc.extra, tc.files)

			args := append([]string{"build", "-c", p.config}, tc.args...)
			r := run(t, args...)
			if r.code != tc.code {
				t.Fatalf("expected exit code %d, got %d: %v", tc.code, r.code, r.err)
			}
			if !strings.Contains(r.err.Error(), tc.message) {
				t.Fatalf("expected %q in %q", tc.message, r.err)
			}
		})
	}
}

func TestBuildWithoutCompiler(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "bundlekit.yaml")
	writeFile(t, cfg, "sources:\n  directory: src\n")

	r := run(t, "build", "-c", cfg)
	if r.code != 2 || !strings.Contains(r.err.Error(), "compiler jar or command is required") {
		t.Fatalf("unexpected result %d: %v", r.code, r.err)
	}
}

func TestBuildCheck(t *testing.T) {
	p := newProject(t, "", map[string]string{"src/a.js": "var a;\n"})

	if r := run(t, "build", "-c", p.config); r.code != 0 {
		t.Fatalf("unexpected exit code %d: %v", r.code, r.err)
	}
	if r := run(t, "build", "-c", p.config, "--check"); r.code != 0 || r.stdout != "" {
		t.Fatalf("expected up to date outputs, got %d: %v\n%s", r.code, r.err, r.stdout)
	}

	writeFile(t, filepath.Join(p.dir, "src", "a.js"), "var changed;\n")
	r := run(t, "build", "-c", p.config, "--check")
	if r.code != 1 || r.err.Error() != "outputs are stale" {
		t.Fatalf("expected stale outputs, got %d: %v", r.code, r.err)
	}
	if !strings.Contains(r.stdout, "+var changed;") {
		t.Fatalf("expected a diff, got:\n%s", r.stdout)
	}
	if got := p.read(t, "dist/app.js"); got != "var a;\n" {
		t.Fatalf("check mode modified the output: %q", got)
	}
}

func TestBuildMetricsFile(t *testing.T) {
	p := newProject(t, "", map[string]string{"src/a.js": "var a;\n"})
	metricsFile := filepath.Join(t.TempDir(), "bundlekit.prom")

	if r := run(t, "build", "-c", p.config, "--metrics-file", metricsFile); r.code != 0 {
		t.Fatalf("unexpected exit code %d: %v", r.code, r.err)
	}

	bs, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(bs), "bundlekit_build_count_total") {
		t.Fatalf("unexpected metrics:\n%s", bs)
	}
}

func TestBuildEnvFile(t *testing.T) {
	p := newProject(t, "", map[string]string{"lib/a.js": "var a;\n"})
	env := filepath.Join(t.TempDir(), "build.env")
	writeFile(t, env, "BUNDLEKIT_TEST_SOURCES=lib\n")
	t.Cleanup(func() { os.Unsetenv("BUNDLEKIT_TEST_SOURCES") })

	r := run(t, "build", "-c", p.config, "--env-file", env, "--source-dir", "${BUNDLEKIT_TEST_SOURCES}")
	if r.code != 0 {
		t.Fatalf("unexpected exit code %d: %v", r.code, r.err)
	}
	if got := p.read(t, "dist/app.js"); got != "var a;\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestBuildRelativeConfig(t *testing.T) {
	p := newProject(t, "", map[string]string{"src/a.js": "var a;\n"})
	writeFile(t, filepath.Join(p.dir, "bin", "closure"), fakeClosure)
	if err := os.Chmod(filepath.Join(p.dir, "bin", "closure"), 0o755); err != nil {
		t.Fatal(err)
	}

	parent, sub := filepath.Split(p.dir)
	t.Chdir(parent)

	// The compiler path is relative to the configuration, like every other
	// path it overrides.
	r := run(t, "build", "-c", filepath.Join(sub, "bundlekit.yaml"), "--compiler", "./bin/closure", "--summary")
	if r.code != 0 {
		t.Fatalf("unexpected exit code %d: %v\n%s", r.code, r.err, r.stderr)
	}
	if got := p.read(t, "dist/app.js"); got != "var a;\n" {
		t.Fatalf("unexpected output %q", got)
	}
	if !strings.Contains(r.stdout, "1 source(s)") {
		t.Fatalf("unexpected summary:\n%s", r.stdout)
	}
	if _, err := os.Stat(filepath.Join(p.dir, sub)); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no nested output, got %v", err)
	}
}

func TestBuildMergedConfigs(t *testing.T) {
	p := newProject(t, "", map[string]string{"src/a.js": "var a;\n"})
	overlay := filepath.Join(t.TempDir(), "overlay.yaml")
	writeFile(t, overlay, "output:\n  file: dist/overlay.js\n")

	if r := run(t, "build", "-c", p.config, "-c", overlay); r.code != 0 {
		t.Fatalf("unexpected exit code %d: %v", r.code, r.err)
	}
	if got := p.read(t, "dist/overlay.js"); got != "var a;\n" {
		t.Fatalf("unexpected output %q", got)
	}

	r := run(t, "build", "-c", p.config, "-c", overlay, "--strict-merge")
	if r.code != 2 {
		t.Fatalf("expected a merge conflict, got %d: %v", r.code, r.err)
	}
}

func TestConfigValidate(t *testing.T) {
	p := newProject(t, "", nil)

	r := run(t, "config", "validate", "-c", p.config)
	if r.code != 0 {
		t.Fatalf("unexpected exit code %d: %v", r.code, r.err)
	}
	exp := fmt.Sprintf("Configuration is valid: WHITESPACE_ONLY, VERBOSE, merged into %s\n", filepath.Join(p.dir, "dist", "app.js"))
	if r.stdout != exp {
		t.Fatalf("expected %q, got %q", exp, r.stdout)
	}

	r = run(t, "config", "validate", "-c", p.config, "--warning-level", "LOUD")
	if r.code != 2 {
		t.Fatalf("expected exit code 2, got %d: %v", r.code, r.err)
	}
}

func TestConfigSchema(t *testing.T) {
	r := run(t, "config", "schema")
	if r.code != 0 {
		t.Fatalf("unexpected exit code %d: %v", r.code, r.err)
	}

	var schema map[string]any
	if err := json.Unmarshal([]byte(r.stdout), &schema); err != nil {
		t.Fatal(err)
	}
	if _, ok := schema["properties"]; !ok {
		t.Fatalf("unexpected schema %v", schema)
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		note string
		err  error
		code int
	}{
		{note: "success", code: 0},
		{note: "config", err: &ConfigError{Err: errors.New("bad")}, code: 2},
		{note: "invalid option", err: fmt.Errorf("wrapped: %w", &config.InvalidConfigurationError{Field: "Warning level"}), code: 2},
		{note: "other", err: errors.New("boom"), code: 1},
	}

	for _, tc := range cases {
		t.Run(tc.note, func(t *testing.T) {
			if code := ExitCode(tc.err); code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, code)
			}
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestConfigValidateNoSources(t *testing.T) {
	p := newProject(t, "", map[string]string{"src/readme.txt": "nothing to compile\n"})

	r := run(t, "config", "validate", "-c", p.config)
	if r.code != 0 {
		t.Fatalf("unexpected exit code %d: %v", r.code, r.err)
	}
	if !strings.Contains(r.stderr, "warning: no source files selected in") {
		t.Fatalf("expected a warning, got %q", r.stderr)
	}
}
