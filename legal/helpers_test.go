package legal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/review"
)

// scriptedLLM answers by system prompt, so each step gets its own canned reply.
type scriptedLLM struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	calls   []scriptedCall
}

type scriptedCall struct {
	System string
	Prompt string
}

func (s *scriptedLLM) Call(ctx context.Context, prompt, system string, _ float64, _ int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, scriptedCall{System: system, Prompt: prompt})
	if s.err != nil {
		return "", s.err
	}
	reply, ok := s.replies[system]
	if !ok {
		return "", fmt.Errorf("no scripted reply")
	}
	return reply, nil
}

func (s *scriptedLLM) callsFor(system string) []scriptedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scriptedCall
	for _, c := range s.calls {
		if c.System == system {
			out = append(out, c)
		}
	}
	return out
}

func defaultLLM() *scriptedLLM {
	return &scriptedLLM{replies: map[string]string{
		classifySystemPrompt:          `{"document_type": "new_contract_request", "risk_level": "high", "summary": "NDA request"}`,
		generateSystemPrompt:          "1. Confidentiality.\n2. Term.",
		analyzeSystemPrompt:           "```json\n{\"summary\": \"one-sided\", \"risk_level\": \"critical\", \"issues\": [\"clause 4\"]}\n```",
		objectionSystemPrompt:         "We object to clause 4.",
		objectionResponseSystemPrompt: "We respond to your objection.",
		diffSystemPrompt:              "- Term shortened",
	}}
}

// memExporter records exported documents.
type memExporter struct {
	mu   sync.Mutex
	docs []ExportDocument
	err  error
}

func (m *memExporter) Export(_ context.Context, doc ExportDocument) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.docs = append(m.docs, doc)
	return "mem://" + doc.WorkID, nil
}

func (m *memExporter) exported() []ExportDocument {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExportDocument(nil), m.docs...)
}

var testNow = time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	llm      *scriptedLLM
	queue    *review.MemQueue
	exporter *memExporter
	cfg      Config
}

func newFixture() *fixture {
	f := &fixture{
		llm:      defaultLLM(),
		queue:    review.NewMemQueue(),
		exporter: &memExporter{},
	}
	f.cfg = Config{
		LLM:      f.llm,
		Reviews:  f.queue,
		Exporter: f.exporter,
		Logger:   quietLogger(),
		Now:      func() time.Time { return testNow },
	}
	return f
}

func (f *fixture) engine(t *testing.T) *graph.Engine {
	t.Helper()
	g, err := Build(f.cfg)
	require.NoError(t, err)

	var n int
	var mu sync.Mutex
	e, err := graph.NewEngine(g,
		graph.WithLogger(quietLogger()),
		graph.WithTokenSource(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("tok-%d", n)
		}),
	)
	require.NoError(t, err)
	return e
}

func stateWith(data map[string]any) *graph.WorkflowState {
	return &graph.WorkflowState{WorkID: "doc-1", Data: data}
}
