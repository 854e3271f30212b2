package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// recordStep succeeds with fixed data and counts invocations.
type recordStep struct {
	name  string
	data  map[string]any
	calls atomic.Int32
}

func (s *recordStep) Name() string { return s.name }

func (s *recordStep) Run(_ context.Context, _ *WorkflowState) StepResult {
	s.calls.Add(1)
	return Succeed(s.data)
}

func okStep(name string, data map[string]any) *recordStep {
	return &recordStep{name: name, data: data}
}

func ctxBG() context.Context { return context.Background() }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedClock returns a clock that advances one second per call.
func fixedClock() func() time.Time {
	var n atomic.Int64
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return func() time.Time {
		return base.Add(time.Duration(n.Add(1)) * time.Second)
	}
}

// sequentialTokens mints tok-1, tok-2, ...
func sequentialTokens() func() string {
	var n atomic.Int64
	return func() string { return fmt.Sprintf("tok-%d", n.Add(1)) }
}

// reviewDecision mirrors the document pipeline's review routing: approved
// documents export (through version_diff when changes are flagged), rejected
// ones go to objection, revision requests return to generation, and anything
// else waits at review again.
func reviewDecision(s *WorkflowState) string {
	switch s.String("decision") {
	case "approved":
		if s.Bool("has_changes") {
			return "version_diff"
		}
		return "export"
	case "rejected":
		return "objection"
	case "negotiate", "request_changes":
		return "generate"
	default:
		return "review"
	}
}

// pipelineBuilder returns a builder for the document pipeline shape using
// trivial steps.
func pipelineBuilder() *Builder {
	return NewBuilder().
		Add(okStep("intake", map[string]any{"intake_complete": true})).
		Add(okStep("generate", map[string]any{"document": "draft"})).
		Add(okStep("analyze", map[string]any{"analysis": "ok"})).
		Add(okStep("review", map[string]any{"decision": "pending"})).
		Add(okStep("objection", map[string]any{"objection_filed": true})).
		Add(okStep("version_diff", map[string]any{"diff": "v1..v2"})).
		Add(okStep("export", map[string]any{"exported": true})).
		StartAt("intake").
		Connect("intake", OnValue("document_type", map[string]string{
			"new_contract_request": "generate",
			"contract_analysis":    "analyze",
			"objection_document":   "objection",
		}, "analyze")).
		Connect("generate", Always("review")).
		Connect("analyze", Always("review")).
		Connect("review", RouterFunc(
			[]string{"export", "version_diff", "objection", "generate", "review"},
			"review",
			reviewDecision,
		)).
		Connect("objection", Always("review")).
		Connect("version_diff", Always("export")).
		Suspend("review").
		Suspend("objection")
}

func mustCompile(t *testing.T, b *Builder) *Graph {
	t.Helper()
	g, err := b.Compile()
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return g
}

func newTestEngine(t *testing.T, g *Graph, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithLogger(quietLogger()),
		WithClock(fixedClock()),
		WithTokenSource(sequentialTokens()),
	}
	e, err := NewEngine(g, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	return e
}

func assertPath(t *testing.T, st *WorkflowState, want ...string) {
	t.Helper()
	got := Path(st)
	if len(got) != len(want) {
		t.Fatalf("path = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("path = %v, want %v", got, want)
		}
	}
}
