// Package gate decides whether a compilation result may be written.
package gate

import (
	"errors"
	"fmt"

	"github.com/bundlekit/bundlekit/internal/compiler"
)

const (
	ReasonWarnings           = "has warnings"
	ReasonErrors             = "has errors"
	ReasonCompilationFailure = "compilation failure"
)

var (
	// ErrDiagnosticGate matches failures caused by the strictness policy.
	ErrDiagnosticGate = errors.New("diagnostic gate failure")
	// ErrCompilationFailure matches failures reported by the compiler itself.
	ErrCompilationFailure = errors.New("compilation failure")
)

// Sink receives the diagnostics of a result.
type Sink interface {
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Policy holds the strictness switches.
type Policy struct {
	FailOnWarnings bool
	FailOnErrors   bool
}

// Failure is the reason an evaluated result did not pass.
type Failure struct {
	Reason string
}

func (f *Failure) Error() string {
	if f.Reason == ReasonCompilationFailure {
		return "Compilation failure"
	}
	return fmt.Sprintf("Compilation failed: %s", f.Reason)
}

func (f *Failure) Is(target error) bool {
	switch target {
	case ErrCompilationFailure:
		return f.Reason == ReasonCompilationFailure
	case ErrDiagnosticGate:
		return f.Reason == ReasonWarnings || f.Reason == ReasonErrors
	}
	return false
}

// Outcome of an evaluation. A nil Failure is a pass.
type Outcome struct {
	Failure *Failure
}

func (o Outcome) Passed() bool {
	return o.Failure == nil
}

// Err returns the failure as an error, or nil on a pass.
func (o Outcome) Err() error {
	if o.Failure == nil {
		return nil
	}
	return o.Failure
}

// Evaluate logs every warning and then every error of result in reported
// order, whatever the outcome, and applies policy. Warnings are checked
// before errors and the first triggered reason wins. A result the compiler
// did not report as successful always fails.
func Evaluate(log Sink, result *compiler.Result, policy Policy) Outcome {
	for _, w := range result.Warnings {
		log.Warnf("%s", w.Message())
	}
	for _, e := range result.Errors {
		log.Errorf("%s", e.Message())
	}

	var reason string
	if policy.FailOnWarnings && len(result.Warnings) > 0 {
		reason = ReasonWarnings
	}
	if policy.FailOnErrors && len(result.Errors) > 0 && reason == "" {
		reason = ReasonErrors
	}
	if reason == "" && !result.Success {
		reason = ReasonCompilationFailure
	}

	if reason == "" {
		return Outcome{}
	}
	return Outcome{Failure: &Failure{Reason: reason}}
}
