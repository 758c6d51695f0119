// Package service runs the rebuild loop of watch mode.
package service

import (
	"cmp"
	"context"
	"sync"
	"time"

	"github.com/bundlekit/bundlekit/internal/builder"
	"github.com/bundlekit/bundlekit/internal/config"
	bkfs "github.com/bundlekit/bundlekit/internal/fs"
	"github.com/bundlekit/bundlekit/internal/logging"
)

var (
	defaultInterval = 2 * time.Second
	errorInterval   = 5 * time.Second
)

// Status is the outcome of the most recent build.
type Status struct {
	State   builder.State
	Message string
	Time    time.Time
}

// BuildWorker rebuilds whenever the source or externs trees change. It is
// run as a pool task: every execution fingerprints both trees and only
// builds when the fingerprint differs from the last build's.
type BuildWorker struct {
	builder  *builder.Builder
	config   *config.Root
	log      *logging.Logger
	interval time.Duration
	reporter func(*builder.Report, error)

	last string

	mu     sync.Mutex
	status Status
	done   chan struct{}
}

func NewBuildWorker(b *builder.Builder, cfg *config.Root, log *logging.Logger) *BuildWorker {
	return &BuildWorker{
		builder:  b,
		config:   cfg,
		log:      cmp.Or(log, logging.NewNop()),
		interval: defaultInterval,
		done:     make(chan struct{}),
	}
}

func (w *BuildWorker) WithInterval(d time.Duration) *BuildWorker {
	w.interval = cmp.Or(d, defaultInterval)
	return w
}

// WithReporter calls f after every build.
func (w *BuildWorker) WithReporter(f func(*builder.Report, error)) *BuildWorker {
	w.reporter = f
	return w
}

// Status returns the outcome of the most recent build.
func (w *BuildWorker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Done is closed once the worker has left the pool.
func (w *BuildWorker) Done() <-chan struct{} {
	return w.done
}

// Execute runs one watch iteration and returns the next deadline. A zero
// deadline removes the worker from the pool.
func (w *BuildWorker) Execute(ctx context.Context) time.Time {
	if ctx.Err() != nil {
		return w.die()
	}

	fp, err := w.fingerprint()
	if err != nil {
		w.log.Warnf("failed to scan for changes: %v", err)
		return time.Now().Add(errorInterval)
	}
	if fp == w.last {
		return time.Now().Add(w.interval)
	}
	if w.last != "" {
		w.log.Infof("Changes detected, rebuilding")
	}
	w.last = fp

	report, err := w.builder.Build(ctx)
	if ctx.Err() != nil {
		return w.die()
	}
	w.record(report, err)

	return time.Now().Add(w.interval)
}

func (w *BuildWorker) fingerprint() (string, error) {
	cfg := w.config
	sources, err := bkfs.Fingerprint(cfg.Sources.Directory,
		bkfs.PatternRule(cfg.Sources.IncludedFiles, cfg.Sources.ExcludedFiles, cfg.Sources.DefaultExcludesEnabled()))
	if err != nil {
		return "", err
	}
	externs, err := bkfs.Fingerprint(cfg.Externs.Directory, bkfs.RecursiveRule(bkfs.ScriptExtension))
	if err != nil {
		return "", err
	}
	return sources + externs, nil
}

func (w *BuildWorker) record(report *builder.Report, err error) {
	status := Status{State: report.State, Time: time.Now()}
	if err != nil {
		status.Message = err.Error()
		w.log.Errorf("Build failed: %v", err)
	} else {
		w.log.Infof("Build done in %v: %d artifact(s), %d warning(s)", report.Duration.Round(time.Millisecond), len(report.Artifacts), report.Warnings)
	}

	w.mu.Lock()
	w.status = status
	w.mu.Unlock()

	if w.reporter != nil {
		w.reporter(report, err)
	}
}

func (w *BuildWorker) die() time.Time {
	select {
	case <-w.done:
	default:
		close(w.done)
	}

	var zero time.Time
	return zero
}
