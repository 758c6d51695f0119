// Package compilertest provides a scripted in-memory compiler for tests.
package compilertest

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"sync"

	"github.com/bundlekit/bundlekit/internal/compiler"
)

// Markers recognized in source content. The rest of the line after a
// marker becomes the diagnostic description.
const (
	WarningMarker = "//@warning "
	ErrorMarker   = "//@error "
)

// Call records one Compile invocation.
type Call struct {
	Externs []string
	Sources []string
	Options compiler.Options
}

// Compiler concatenates its sources, one per line, after trimming each
// line when whitespace removal is on. Marker lines produce diagnostics and
// an error marker fails the compilation.
type Compiler struct {
	// Defaults is the default externs bundle.
	Defaults []compiler.DeclarationUnit
	// DefaultsErr fails DefaultExterns.
	DefaultsErr error
	// Version is returned by ID.
	Version string

	mu            sync.Mutex
	calls         []Call
	defaultsCalls int
}

func New() *Compiler {
	return &Compiler{}
}

func (c *Compiler) Compile(_ context.Context, externs []compiler.DeclarationUnit, sources []compiler.SourceUnit, opts compiler.Options) (*compiler.Result, error) {
	call := Call{Options: opts}
	for _, u := range externs {
		if _, err := u.ReadContent(); err != nil {
			return nil, err
		}
		call.Externs = append(call.Externs, u.Name())
	}

	result := &compiler.Result{}
	var text strings.Builder
	for _, u := range sources {
		bs, err := u.ReadContent()
		if err != nil {
			return nil, err
		}
		call.Sources = append(call.Sources, u.Name())

		scanner := bufio.NewScanner(bytes.NewReader(bs))
		for line := 1; scanner.Scan(); line++ {
			s := scanner.Text()
			trimmed := strings.TrimSpace(s)
			switch {
			case strings.HasPrefix(trimmed, WarningMarker):
				result.Warnings = append(result.Warnings, diagnostic(compiler.LevelWarning, trimmed, WarningMarker, u.Name(), line))
				continue
			case strings.HasPrefix(trimmed, ErrorMarker):
				result.Errors = append(result.Errors, diagnostic(compiler.LevelError, trimmed, ErrorMarker, u.Name(), line))
				continue
			}
			if opts.Optimizations.RemoveWhitespace {
				if trimmed == "" {
					continue
				}
				s = trimmed
			}
			text.WriteString(s)
			text.WriteByte('\n')
		}
	}

	c.mu.Lock()
	c.calls = append(c.calls, call)
	c.mu.Unlock()

	result.Success = len(result.Errors) == 0
	if result.Success {
		result.Text = text.String()
	}
	return result, nil
}

func (c *Compiler) DefaultExterns(context.Context) ([]compiler.DeclarationUnit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultsCalls++
	if c.DefaultsErr != nil {
		return nil, c.DefaultsErr
	}
	return c.Defaults, nil
}

func (c *Compiler) ID() string {
	return "compilertest " + c.Version
}

// Calls returns the recorded invocations in order.
func (c *Compiler) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Call(nil), c.calls...)
}

// DefaultsCalls returns how often the default externs were requested.
func (c *Compiler) DefaultsCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.defaultsCalls
}

func diagnostic(level compiler.Level, line, marker, source string, n int) compiler.Diagnostic {
	return compiler.Diagnostic{
		Level:       level,
		Key:         "JSC_SCRIPTED",
		Description: strings.TrimPrefix(line, marker),
		Source:      source,
		Line:        n,
	}
}
