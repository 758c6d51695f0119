package output

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "a", "b", "out.js")

	text := "var ü=\"ünïcödé\";\n"
	if err := Write(text, dest); err != nil {
		t.Fatal(err)
	}

	bs, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(bs) != text {
		t.Fatalf("expected %q, got %q", text, bs)
	}

	if err := Write("short", dest); err != nil {
		t.Fatal(err)
	}
	if bs, _ := os.ReadFile(dest); string(bs) != "short" {
		t.Fatalf("expected content to be replaced, got %q", bs)
	}

	entries, err := os.ReadDir(filepath.Dir(dest))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the output file, got %v", entries)
	}
}

func TestWriteError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(blocker, "out.js")
	err := Write("x", dest)

	var writeErr *WriteError
	if !errors.As(err, &writeErr) || writeErr.Path != dest {
		t.Fatalf("expected WriteError for %s, got %v", dest, err)
	}
	if _, err := os.Stat(dest); err == nil {
		t.Fatalf("expected no output at %s", dest)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "file" {
		t.Fatalf("expected only the blocking file, got %v", entries)
	}
}

func TestDestination(t *testing.T) {
	for _, tc := range []struct {
		rel string
		exp string
	}{
		{rel: "x.js", exp: "out/x.min.js"},
		{rel: "pkg/x.js", exp: "out/pkg/x.min.js"},
		{rel: "a/b/c.test.js", exp: "out/a/b/c.test.min.js"},
	} {
		if got := filepath.ToSlash(Destination("out", tc.rel, ".js")); got != tc.exp {
			t.Errorf("%s: expected %s, got %s", tc.rel, tc.exp, got)
		}
	}
}

func TestCheck(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.js")

	diff, err := Check("var a;\n", dest)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diff, "+var a;") {
		t.Fatalf("expected diff against missing file, got %q", diff)
	}

	if err := Write("var a;\n", dest); err != nil {
		t.Fatal(err)
	}
	if diff, err := Check("var a;\n", dest); err != nil || diff != "" {
		t.Fatalf("expected no diff, got %q (%v)", diff, err)
	}

	diff, err = Check("var b;\n", dest)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(diff, "-var a;") || !strings.Contains(diff, "+var b;") {
		t.Fatalf("unexpected diff %q", diff)
	}

	if bs, _ := os.ReadFile(dest); string(bs) != "var a;\n" {
		t.Fatalf("check modified the destination: %q", bs)
	}
}
