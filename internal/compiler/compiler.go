// Package compiler holds the data model shared by the build pipeline and
// the compiler invokers: input units, resolved options and compilation
// results.
package compiler

import (
	"context"
	"fmt"
	"strings"
)

// Compiler invokes the external optimizing compiler.
type Compiler interface {
	// Compile compiles sources against externs. Compilation problems are
	// reported through the result; an error means the invocation itself
	// could not happen, for example an unreadable unit. Compile never
	// writes outside its own scratch space.
	Compile(ctx context.Context, externs []DeclarationUnit, sources []SourceUnit, opts Options) (*Result, error)

	// DefaultExterns returns the declaration bundle shipped with the
	// compiler.
	DefaultExterns(ctx context.Context) ([]DeclarationUnit, error)

	// ID identifies the compiler build. It changes when the compiler is
	// replaced or upgraded.
	ID() string
}

// Level is the severity of a diagnostic.
type Level string

const (
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Diagnostic is one warning or error reported by the compiler.
type Diagnostic struct {
	Level       Level  `json:"level"`
	Key         string `json:"key,omitempty"`
	Description string `json:"description"`
	Source      string `json:"source,omitempty"`
	Line        int    `json:"line,omitempty"`
	Column      int    `json:"column,omitempty"`
}

// Message renders the diagnostic the way the compiler prints it.
func (d Diagnostic) Message() string {
	var sb strings.Builder
	if d.Key != "" {
		sb.WriteString(d.Key)
		sb.WriteString(". ")
	}
	sb.WriteString(d.Description)
	if d.Source != "" {
		fmt.Fprintf(&sb, " at %s line %d : %d", d.Source, d.Line, d.Column)
	}
	return sb.String()
}

func (d Diagnostic) String() string {
	return d.Message()
}

// Result is the outcome of one compiler invocation. Text is only set when
// Success is.
type Result struct {
	Text     string
	Warnings []Diagnostic
	Errors   []Diagnostic
	Success  bool
}
