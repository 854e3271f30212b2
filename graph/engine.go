package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dshills/lexgraph/graph/emit"
)

// Engine drives WorkflowStates through a compiled Graph.
//
// The Engine is the only writer of workflow state. It:
//   - Executes steps with a per-step deadline and panic containment
//   - Appends one history entry per executed step
//   - Merges step data into the accumulated data (last writer wins)
//   - Halts at suspension nodes and mints a suspension token
//   - Evaluates routers and terminates on routing faults
//   - Emits events, metrics and logs for every transition
//
// Every call returns a new *WorkflowState and leaves its argument untouched.
// Workflow-level failures (failed step, panic, timeout, routing fault, step
// limit) are reported in the returned state with Terminal=true and Error set;
// the Go error return is reserved for calls that were refused before any
// change was made.
//
// An Engine is safe for concurrent use across different work IDs. Calls for
// the same work ID must be serialized by the caller; overlapping calls, and
// calls presenting a state older than one this engine already produced for
// unfinished work, are rejected with ErrConcurrentUpdate.
//
// Example:
//
//	engine, err := graph.NewEngine(g, graph.WithStepTimeout(30*time.Second))
//	if err != nil {
//	    return err
//	}
//	st, err := engine.Start(ctx, "doc-001", map[string]any{"document_type": "new_contract_request"})
//	// st.Suspended == true at the review node
//	st, err = engine.Resume(ctx, st, map[string]any{"decision": "approved"})
//	// st.Terminal == true
type Engine struct {
	graph *Graph
	opts  Options

	mu       sync.Mutex
	inflight map[string]struct{}
	latest   map[string]int64
}

// NewEngine creates an Engine for g.
//
// Unless overridden, steps time out after DefaultStepTimeout and each call
// executes at most DefaultMaxSteps steps.
func NewEngine(g *Graph, options ...Option) (*Engine, error) {
	if g == nil {
		return nil, &EngineError{Code: "MISSING_GRAPH", Message: "graph is required"}
	}

	cfg := &engineConfig{opts: Options{StepTimeout: DefaultStepTimeout}}
	for _, opt := range options {
		if err := opt(cfg); err != nil {
			return nil, &EngineError{Code: "INVALID_OPTION", Message: err.Error()}
		}
	}
	cfg.opts.applyDefaults()

	return &Engine{
		graph:    g,
		opts:     cfg.opts,
		inflight: make(map[string]struct{}),
		latest:   make(map[string]int64),
	}, nil
}

// Graph returns the compiled graph the engine executes.
func (e *Engine) Graph() *Graph { return e.graph }

// Start creates a new workflow state at the graph's entry node and drives it
// until it suspends or terminates.
//
// initial is copied into both the accumulated data and the state's Input, so
// the run can be replayed later.
func (e *Engine) Start(ctx context.Context, workID string, initial map[string]any) (*WorkflowState, error) {
	if workID == "" {
		return nil, e.refuse("invalid", &EngineError{Code: "INVALID_STATE", Message: "work ID cannot be empty", Err: ErrInvalidState})
	}
	if err := e.acquire(workID, -1); err != nil {
		return nil, err
	}

	now := e.opts.Clock()
	st := &WorkflowState{
		WorkID:      workID,
		CurrentNode: e.graph.entry,
		Data:        cloneMap(initial),
		Input:       cloneMap(initial),
		History:     []HistoryEntry{},
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if st.Data == nil {
		st.Data = make(map[string]any)
	}

	e.opts.Emitter.Emit(emit.Event{
		WorkID: workID,
		Node:   e.graph.entry,
		Msg:    emit.MsgWorkflowStarted,
		Meta:   map[string]interface{}{"version": st.Version},
	})
	e.opts.Logger.Info("workflow started", "work_id", workID, "entry", e.graph.entry)

	e.drive(ctx, st, e.graph.entry)
	e.release(st)
	return st, nil
}

// Tick drives an active state from its current node until it suspends or
// terminates. It is the loop primitive behind Start and Resume; most callers
// use those instead.
//
// Tick refuses suspended states (use Resume) and terminal states.
func (e *Engine) Tick(ctx context.Context, state *WorkflowState) (*WorkflowState, error) {
	if err := e.validate(state); err != nil {
		return nil, err
	}
	switch {
	case state.Terminal:
		return nil, e.refuse("terminal", &EngineError{Code: "TERMINAL", Message: "cannot tick terminal workflow " + state.WorkID, Err: ErrTerminal})
	case state.Suspended:
		return nil, e.refuse("suspended", &EngineError{Code: "SUSPENDED", Message: "workflow " + state.WorkID + " is suspended; call Resume", Err: ErrSuspended})
	}
	if err := e.acquire(state.WorkID, state.Version); err != nil {
		return nil, err
	}

	st := state.Clone()
	e.drive(ctx, st, st.CurrentNode)
	e.release(st)
	return st, nil
}

// Resume continues a suspended workflow with an external decision.
//
// The decision is merged into the accumulated data and recorded in the
// state's Decisions, the suspension is cleared, and the router of the
// suspension node is evaluated against the updated data to pick the next
// node. Execution then continues exactly as in Tick. Resume itself does not
// add a history entry.
//
// Resuming a state that is not suspended, or one that is terminal, returns an
// error wrapping ErrNotSuspended or ErrTerminal and changes nothing.
func (e *Engine) Resume(ctx context.Context, state *WorkflowState, decision map[string]any) (*WorkflowState, error) {
	if err := e.validate(state); err != nil {
		return nil, err
	}
	switch {
	case state.Terminal:
		return nil, e.refuse("terminal", &EngineError{Code: "TERMINAL", Message: "cannot resume terminal workflow " + state.WorkID, Err: ErrTerminal})
	case !state.Suspended:
		return nil, e.refuse("not_suspended", &EngineError{Code: "NOT_SUSPENDED", Message: "workflow " + state.WorkID + " is not suspended", Err: ErrNotSuspended})
	case !e.graph.IsSuspension(state.CurrentNode):
		return nil, e.refuse("invalid", &EngineError{Code: "INVALID_STATE", Message: "workflow " + state.WorkID + " is suspended at non-suspension node " + state.CurrentNode, Err: ErrInvalidState})
	}
	if err := e.acquire(state.WorkID, state.Version); err != nil {
		return nil, err
	}

	st := state.Clone()
	now := e.opts.Clock()
	node := st.CurrentNode
	st.Data = merge(st.Data, decision)
	st.Decisions = append(st.Decisions, DecisionEntry{
		AfterSeq:  len(st.History),
		Node:      node,
		Token:     st.SuspensionToken,
		Timestamp: now,
		Data:      cloneMap(decision),
	})
	st.Suspended = false
	st.SuspensionToken = ""
	st.Version++
	st.UpdatedAt = now

	e.opts.Metrics.IncrementResumes(node)
	e.opts.Emitter.Emit(emit.Event{
		WorkID: st.WorkID,
		Step:   len(st.History),
		Node:   node,
		Msg:    emit.MsgWorkflowResumed,
		Meta:   map[string]interface{}{"version": st.Version},
	})
	e.opts.Logger.Info("workflow resumed", "work_id", st.WorkID, "node", node)

	if next, ok := e.route(st, node); ok {
		e.drive(ctx, st, next)
	}
	e.release(st)
	return st, nil
}

// drive executes steps starting at node until the state halts.
func (e *Engine) drive(ctx context.Context, st *WorkflowState, node string) {
	for executed := 0; ; executed++ {
		if executed >= e.opts.MaxSteps {
			e.terminate(st, FailureMaxSteps)
			return
		}

		step, ok := e.graph.Step(node)
		if !ok {
			e.terminate(st, "routing: unknown node "+node)
			return
		}
		st.CurrentNode = node

		started := e.opts.Clock()
		wallStart := time.Now()
		var res StepResult
		if ctx.Err() != nil {
			res = Fail(FailureCanceled)
		} else {
			res = executeStepWithTimeout(ctx, step, st.Clone(), e.opts.StepTimeout)
		}
		elapsed := time.Since(wallStart)

		e.record(st, node, res, started, elapsed)

		if !res.Success {
			e.terminate(st, res.Error)
			return
		}
		st.Data = merge(st.Data, res.Data)

		if e.graph.IsSuspension(node) {
			e.suspend(st)
			return
		}
		if e.graph.IsTerminal(node) {
			e.complete(st)
			return
		}

		next, ok := e.route(st, node)
		if !ok {
			return
		}
		node = next
	}
}

// record appends the history entry for one step and reports it.
func (e *Engine) record(st *WorkflowState, node string, res StepResult, at time.Time, elapsed time.Duration) {
	entry := HistoryEntry{
		Seq:       len(st.History) + 1,
		Node:      node,
		Timestamp: at,
		Result:    res.clone(),
	}
	st.History = append(st.History, entry)
	st.Version++
	st.UpdatedAt = e.opts.Clock()

	status := "success"
	msg := emit.MsgStepCompleted
	meta := map[string]interface{}{
		"duration_ms": elapsed.Milliseconds(),
		"version":     st.Version,
	}
	if !res.Success {
		status = "error"
		if res.Error == FailureTimeout || res.Error == FailureInternal || res.Error == FailureCanceled {
			status = res.Error
		}
		msg = emit.MsgStepFailed
		meta["error"] = res.Error
	}
	for _, k := range []string{"model", "tokens_in", "tokens_out", "cost_usd"} {
		if v, ok := res.Metadata[k]; ok {
			meta[k] = v
		}
	}

	e.opts.Metrics.RecordStep(node, elapsed, status)
	e.opts.Emitter.Emit(emit.Event{WorkID: st.WorkID, Step: entry.Seq, Node: node, Msg: msg, Meta: meta})
	e.opts.Logger.Debug("step executed",
		"work_id", st.WorkID,
		"node", node,
		"seq", entry.Seq,
		"status", status,
		"duration", elapsed,
	)
}

// route evaluates the router after node. On a fault it terminates st and
// reports false.
func (e *Engine) route(st *WorkflowState, node string) (string, bool) {
	next, err := e.graph.Route(node, st)
	if err != nil {
		msg := err.Error()
		if ee, ok := err.(*EngineError); ok {
			msg = ee.Message
		}
		e.terminate(st, "routing: "+msg)
		return "", false
	}
	return next, true
}

func (e *Engine) suspend(st *WorkflowState) {
	st.Suspended = true
	st.SuspensionToken = e.opts.TokenSource()

	e.opts.Metrics.IncrementSuspensions(st.CurrentNode)
	e.opts.Emitter.Emit(emit.Event{
		WorkID: st.WorkID,
		Step:   len(st.History),
		Node:   st.CurrentNode,
		Msg:    emit.MsgWorkflowSuspended,
		Meta:   map[string]interface{}{"version": st.Version},
	})
	e.opts.Logger.Info("workflow suspended", "work_id", st.WorkID, "node", st.CurrentNode)
}

func (e *Engine) complete(st *WorkflowState) {
	st.Terminal = true

	e.opts.Metrics.IncrementFinished(string(StatusCompleted))
	e.opts.Emitter.Emit(emit.Event{
		WorkID: st.WorkID,
		Step:   len(st.History),
		Node:   st.CurrentNode,
		Msg:    emit.MsgWorkflowCompleted,
		Meta:   map[string]interface{}{"version": st.Version},
	})
	e.opts.Logger.Info("workflow completed", "work_id", st.WorkID, "node", st.CurrentNode, "steps", len(st.History))
}

func (e *Engine) terminate(st *WorkflowState, reason string) {
	st.Terminal = true
	st.Suspended = false
	st.SuspensionToken = ""
	st.Error = reason
	st.UpdatedAt = e.opts.Clock()

	e.opts.Metrics.IncrementFinished(string(StatusFailed))
	e.opts.Emitter.Emit(emit.Event{
		WorkID: st.WorkID,
		Step:   len(st.History),
		Node:   st.CurrentNode,
		Msg:    emit.MsgWorkflowFailed,
		Meta:   map[string]interface{}{"error": reason, "version": st.Version},
	})
	e.opts.Logger.Warn("workflow failed", "work_id", st.WorkID, "node", st.CurrentNode, "error", reason)
}

func (e *Engine) validate(state *WorkflowState) error {
	switch {
	case state == nil:
		return e.refuse("invalid", &EngineError{Code: "INVALID_STATE", Message: "state is nil", Err: ErrInvalidState})
	case state.WorkID == "":
		return e.refuse("invalid", &EngineError{Code: "INVALID_STATE", Message: "work ID cannot be empty", Err: ErrInvalidState})
	case !e.graph.Has(state.CurrentNode):
		return e.refuse("invalid", &EngineError{
			Code:    "NODE_NOT_FOUND",
			Message: fmt.Sprintf("workflow %s is at unknown node %q", state.WorkID, state.CurrentNode),
			Err:     ErrInvalidState,
		})
	}
	return nil
}

// acquire marks workID in flight. version is the version of the state the
// call starts from; -1 means a fresh start.
func (e *Engine) acquire(workID string, version int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.inflight[workID]; busy {
		return e.refuse("concurrent", &EngineError{
			Code:    "CONCURRENT_UPDATE",
			Message: "another call is already driving workflow " + workID,
			Err:     ErrConcurrentUpdate,
		})
	}
	if latest, seen := e.latest[workID]; seen && version >= 0 && version < latest {
		return e.refuse("stale", &EngineError{
			Code:    "CONCURRENT_UPDATE",
			Message: fmt.Sprintf("workflow %s state version %d is older than %d", workID, version, latest),
			Err:     ErrConcurrentUpdate,
		})
	}
	e.inflight[workID] = struct{}{}
	e.opts.Metrics.AddInflight(1)
	return nil
}

// release clears the in-flight mark and remembers the produced version.
// Terminal work is not remembered: no call can advance it, and stale saves
// are refused by the store.
func (e *Engine) release(st *WorkflowState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.inflight, st.WorkID)
	if st.Terminal {
		delete(e.latest, st.WorkID)
	} else {
		e.latest[st.WorkID] = st.Version
	}
	e.opts.Metrics.AddInflight(-1)
}

// Forget drops the version this engine remembers for workID. Call it when a
// produced state was not persisted or the work unit was deleted.
func (e *Engine) Forget(workID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.latest, workID)
}

func (e *Engine) refuse(reason string, err *EngineError) error {
	e.opts.Metrics.IncrementRejected(reason)
	e.opts.Logger.LogAttrs(context.Background(), slog.LevelWarn, "engine call refused",
		slog.String("reason", reason),
		slog.String("error", err.Error()),
	)
	return err
}
