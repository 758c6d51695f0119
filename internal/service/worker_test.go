package service

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bundlekit/bundlekit/internal/builder"
	"github.com/bundlekit/bundlekit/internal/compiler/compilertest"
	"github.com/bundlekit/bundlekit/internal/config"
	"github.com/bundlekit/bundlekit/internal/logging"
	"github.com/bundlekit/bundlekit/internal/pool"
)

func newWorker(t *testing.T, files map[string]string) (*BuildWorker, *compilertest.Compiler, string) {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		writeFile(t, filepath.Join(root, filepath.FromSlash(name)), content)
	}

	cfg := config.Default()
	cfg.BaseDir = root
	cfg.Options.CompilationLevel = "WHITESPACE_ONLY"
	cfg.Externs.Directory = "externs"
	cfg.Sources.Directory = "src"
	cfg.Output.File = "dist/bundle.js"
	if err := cfg.Resolve(); err != nil {
		t.Fatal(err)
	}

	c := compilertest.New()
	b := builder.New().WithCompiler(c).WithConfig(cfg)
	return NewBuildWorker(b, cfg, nil), c, root
}

func TestBuildWorkerRebuildsOnChange(t *testing.T) {
	w, c, root := newWorker(t, map[string]string{"src/a.js": "var a;\n"})

	var reports []*builder.Report
	w.WithReporter(func(r *builder.Report, err error) {
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		reports = append(reports, r)
	})

	if next := w.Execute(t.Context()); next.IsZero() {
		t.Fatal("expected the worker to stay in the pool")
	}
	if len(c.Calls()) != 1 {
		t.Fatalf("expected one build, got %d", len(c.Calls()))
	}

	// Nothing changed.
	w.Execute(t.Context())
	if len(c.Calls()) != 1 {
		t.Fatalf("expected no rebuild, got %d builds", len(c.Calls()))
	}

	writeFile(t, filepath.Join(root, "src", "b.js"), "var b;\n")
	w.Execute(t.Context())
	if len(c.Calls()) != 2 {
		t.Fatalf("expected a rebuild, got %d builds", len(c.Calls()))
	}

	// An extern change rebuilds too.
	writeFile(t, filepath.Join(root, "externs", "x.js"), "var x;\n")
	w.Execute(t.Context())
	if len(c.Calls()) != 3 {
		t.Fatalf("expected a rebuild, got %d builds", len(c.Calls()))
	}

	if len(reports) != 3 || reports[2].State != builder.Done || reports[2].Externs != 1 {
		t.Fatalf("unexpected reports %+v", reports)
	}
	if w.Status().State != builder.Done || w.Status().Message != "" {
		t.Fatalf("unexpected status %+v", w.Status())
	}
}

func TestBuildWorkerFailure(t *testing.T) {
	w, c, root := newWorker(t, map[string]string{"src/a.js": "//@error broken\n"})

	w.Execute(t.Context())
	status := w.Status()
	if status.State != builder.Failed || status.Message != "Compilation failure" {
		t.Fatalf("unexpected status %+v", status)
	}

	// The failure is not retried until something changes.
	w.Execute(t.Context())
	if len(c.Calls()) != 1 {
		t.Fatalf("expected no retry, got %d builds", len(c.Calls()))
	}

	writeFile(t, filepath.Join(root, "src", "a.js"), "var a;\n")
	later := time.Now().Add(time.Second)
	if err := os.Chtimes(filepath.Join(root, "src", "a.js"), later, later); err != nil {
		t.Fatal(err)
	}
	w.Execute(t.Context())
	if w.Status().State != builder.Done {
		t.Fatalf("unexpected status %+v", w.Status())
	}
}

func TestBuildWorkerCancelled(t *testing.T) {
	w, c, _ := newWorker(t, map[string]string{"src/a.js": "var a;\n"})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	if next := w.Execute(ctx); !next.IsZero() {
		t.Fatalf("expected removal from the pool, got %v", next)
	}
	if len(c.Calls()) != 0 {
		t.Fatal("expected no build")
	}
	select {
	case <-w.Done():
	default:
		t.Fatal("expected the worker to be done")
	}
}

func TestBuildWorkerInPool(t *testing.T) {
	w, c, _ := newWorker(t, map[string]string{"src/a.js": "var a;\n"})
	w.WithInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(t.Context())
	p := pool.New(ctx, 1)
	p.Add("build", w.Execute)

	time.Sleep(100 * time.Millisecond)
	cancel()
	p.Wait()

	if len(c.Calls()) != 1 {
		t.Fatalf("expected exactly one build, got %d", len(c.Calls()))
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var runs atomic.Int32
	p := pool.New(ctx, 1)
	p.Add("t", func(context.Context) time.Time {
		runs.Add(1)
		return time.Now().Add(time.Hour)
	})

	if err := Watch(ctx, p, "t", []string{dir, filepath.Join(dir, "missing")}, logging.NewNop()); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)

	writeFile(t, filepath.Join(dir, "a.js"), "var a;\n")

	deadline := time.Now().Add(2 * time.Second)
	for runs.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("expected a triggered run, got %d runs", runs.Load())
		}
		time.Sleep(10 * time.Millisecond)
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
