// Package graph provides the workflow orchestration core for lexgraph: the
// step contract, workflow state, graph compilation, routing, and the engine
// that drives a unit of work to suspension or completion.
package graph

import (
	"errors"
	"strings"
)

// Failure strings recorded in StepResult.Error and WorkflowState.Error when the
// engine, not the step, decides the outcome.
const (
	FailureTimeout     = "timeout"
	FailureInternal    = "internal"
	FailureCanceled    = "canceled"
	FailureUnspecified = "step failed"
	FailureMaxSteps    = "max steps exceeded"
)

// ErrNotSuspended is returned by Resume when the state is not waiting on an
// external decision.
var ErrNotSuspended = errors.New("workflow is not suspended")

// ErrTerminal is returned when an engine call targets a finished workflow.
var ErrTerminal = errors.New("workflow is terminal")

// ErrSuspended is returned by Tick when the state is waiting on Resume.
var ErrSuspended = errors.New("workflow is suspended")

// ErrConcurrentUpdate is returned when a second call for the same work ID
// arrives while one is in flight, or when the supplied state is older than
// one the engine already produced.
var ErrConcurrentUpdate = errors.New("concurrent update of workflow state")

// ErrInvalidState is returned for nil states, empty work IDs and states whose
// current node is not part of the graph.
var ErrInvalidState = errors.New("invalid workflow state")

// EngineError represents an error from Engine operations.
//
// Code is a stable, machine-readable identifier (e.g. "NOT_SUSPENDED",
// "NODE_NOT_FOUND"). Err, when set, is the sentinel the error wraps so callers
// can use errors.Is.
type EngineError struct {
	Message string
	Code    string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the wrapped sentinel.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// CompileError aggregates every problem found while compiling a graph.
type CompileError struct {
	Problems []*EngineError
}

func (e *CompileError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return "graph compile failed: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (e *CompileError) Unwrap() []error {
	out := make([]error, len(e.Problems))
	for i, p := range e.Problems {
		out[i] = p
	}
	return out
}

// Has reports whether any problem carries code.
func (e *CompileError) Has(code string) bool {
	for _, p := range e.Problems {
		if p.Code == code {
			return true
		}
	}
	return false
}
