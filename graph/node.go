package graph

import "context"

// Step is a processing unit bound to one node of a workflow graph.
//
// Steps are the fundamental building blocks of a pipeline. Each step:
//   - Reads the current WorkflowState (a private snapshot owned by the call)
//   - Performs its work (LLM calls, document services, review queues)
//   - Returns a StepResult describing what it contributed
//
// A step never writes history or current_node directly; the Engine applies
// the returned result. A step signals failure by returning a result with
// Success=false and Error set. Panics are recovered by the Engine and recorded
// as an "internal" failure.
type Step interface {
	// Name returns the stable node identifier used in graph wiring and history.
	Name() string

	// Run executes the step against a snapshot of the workflow state.
	// The context carries the engine's per-step deadline.
	Run(ctx context.Context, state *WorkflowState) StepResult
}

// StepResult is the value every step returns.
//
// Data is merged into the workflow's accumulated data with last-writer-wins
// semantics. NextActionHint is advisory only; routers may read it from history
// but are not bound by it. Metadata is diagnostic and never used for routing.
type StepResult struct {
	Success        bool           `json:"success"`
	Data           map[string]any `json:"data,omitempty"`
	Error          string         `json:"error,omitempty"`
	NextActionHint string         `json:"next_action_hint,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Succeed returns a successful result contributing data.
func Succeed(data map[string]any) StepResult {
	return StepResult{Success: true, Data: cloneMap(data)}
}

// Fail returns a failed result carrying msg as its error.
func Fail(msg string) StepResult {
	if msg == "" {
		msg = FailureUnspecified
	}
	return StepResult{Success: false, Error: msg}
}

// WithHint returns a copy of r with NextActionHint set.
func (r StepResult) WithHint(hint string) StepResult {
	out := r.clone()
	out.NextActionHint = hint
	return out
}

// WithMetadata returns a copy of r with key set in its metadata.
func (r StepResult) WithMetadata(key string, value any) StepResult {
	out := r.clone()
	if out.Metadata == nil {
		out.Metadata = make(map[string]any, 1)
	}
	out.Metadata[key] = value
	return out
}

func (r StepResult) clone() StepResult {
	r.Data = cloneMap(r.Data)
	r.Metadata = cloneMap(r.Metadata)
	return r
}

// StepFunc is a function adapter for steps that need no state of their own.
type StepFunc func(ctx context.Context, state *WorkflowState) StepResult

// NewStep binds fn to name, returning a Step.
//
// Example:
//
//	intake := graph.NewStep("intake", func(ctx context.Context, s *graph.WorkflowState) graph.StepResult {
//	    return graph.Succeed(map[string]any{"document_type": "new_contract_request"})
//	})
func NewStep(name string, fn StepFunc) Step {
	return &funcStep{name: name, fn: fn}
}

type funcStep struct {
	name string
	fn   StepFunc
}

func (s *funcStep) Name() string { return s.name }

func (s *funcStep) Run(ctx context.Context, state *WorkflowState) StepResult {
	return s.fn(ctx, state)
}
