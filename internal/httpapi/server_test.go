package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/model"
	"github.com/dshills/lexgraph/graph/store"
	"github.com/dshills/lexgraph/legal"
	"github.com/dshills/lexgraph/review"
	"github.com/dshills/lexgraph/workflow"
)

type discardExporter struct{}

func (discardExporter) Export(_ context.Context, doc legal.ExportDocument) (string, error) {
	return "mem://" + doc.WorkID, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	queue := review.NewMemQueue()

	g, err := legal.Build(legal.Config{
		LLM:      &model.StaticCaller{Text: "1. Parties."},
		Reviews:  queue,
		Exporter: discardExporter{},
		Logger:   logger,
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	e, err := graph.NewEngine(g,
		graph.WithLogger(logger),
		graph.WithMetrics(graph.NewPrometheusMetrics(reg)),
	)
	require.NoError(t, err)

	svc := workflow.New(e, store.NewMemStore(), queue, workflow.WithLogger(logger))
	srv := httptest.NewServer(NewHandler(svc, WithLogger(logger), WithMetrics(reg)))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

func decodeState(t *testing.T, b []byte) graph.WorkflowState {
	t.Helper()
	var st graph.WorkflowState
	require.NoError(t, json.Unmarshal(b, &st))
	return st
}

var submitBody = map[string]any{
	"work_id": "doc-1",
	"input": map[string]any{
		"document_type": "new_contract_request",
		"request":       "Consulting agreement",
	},
}

func TestSubmitAndApproveViaTask(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, srv, http.MethodPost, "/work", submitBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	st := decodeState(t, body)
	assert.True(t, st.Suspended)
	assert.Equal(t, legal.NodeReview, st.CurrentNode)

	resp, body = do(t, srv, http.MethodPost, "/work", submitBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, string(body))

	resp, body = do(t, srv, http.MethodGet, "/tasks", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tasks []review.Task
	require.NoError(t, json.Unmarshal(body, &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "doc-1", tasks[0].WorkID)

	resp, body = do(t, srv, http.MethodPost, "/tasks/"+tasks[0].ID+"/complete", map[string]any{
		"decision": map[string]any{"decision": "approved"},
		"comments": "ship it",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	st = decodeState(t, body)
	assert.True(t, st.Terminal)
	assert.Len(t, st.History, 4)

	resp, _ = do(t, srv, http.MethodGet, "/work/doc-1", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodPost, "/tasks/"+tasks[0].ID+"/complete", map[string]any{
		"decision": map[string]any{"decision": "approved"},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestResumeByTokenAndErrors(t *testing.T) {
	srv := newTestServer(t)

	_, body := do(t, srv, http.MethodPost, "/work", submitBody)
	st := decodeState(t, body)

	resp, body := do(t, srv, http.MethodPost, "/resume/"+st.SuspensionToken, map[string]any{"has_changes": true})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "decision is required: %s", body)

	resp, body = do(t, srv, http.MethodPost, "/resume/"+st.SuspensionToken, map[string]any{"decision": "rejected"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	st = decodeState(t, body)
	assert.Equal(t, legal.NodeObjection, st.CurrentNode)

	resp, _ = do(t, srv, http.MethodPost, "/resume/nope", map[string]any{"decision": "approved"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodGet, "/work/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodDelete, "/work/doc-1", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "suspended work cannot be deleted")

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/work/doc-1/resume", strings.NewReader("{"))
	require.NoError(t, err)
	raw, err := srv.Client().Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestListFiltersByStatus(t *testing.T) {
	srv := newTestServer(t)

	for _, id := range []string{"doc-1", "doc-2"} {
		resp, body := do(t, srv, http.MethodPost, "/work", map[string]any{
			"work_id": id,
			"input":   map[string]any{"document_type": "new_contract_request"},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	}
	resp, _ := do(t, srv, http.MethodPost, "/work/doc-2/resume", map[string]any{"decision": "approved"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := do(t, srv, http.MethodGet, "/work?status=completed", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var items []store.Summary
	require.NoError(t, json.Unmarshal(body, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "doc-2", items[0].WorkID)

	resp, _ = do(t, srv, http.MethodGet, "/work?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = do(t, srv, http.MethodGet, "/work?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = do(t, srv, http.MethodDelete, "/work/doc-2", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestGraphAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, srv, http.MethodGet, "/graph", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var g graphResponse
	require.NoError(t, json.Unmarshal(body, &g))
	assert.Equal(t, legal.NodeIntake, g.Entry)
	byName := map[string]graphNode{}
	for _, n := range g.Nodes {
		byName[n.Name] = n
	}
	assert.True(t, byName[legal.NodeReview].Suspension)
	assert.True(t, byName[legal.NodeObjection].Suspension)
	assert.True(t, byName[legal.NodeExport].Terminal)

	do(t, srv, http.MethodPost, "/work", submitBody)
	resp, body = do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "lexgraph_steps_total")
	assert.Contains(t, string(body), "lexgraph_suspensions_total")

	resp, _ = do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusFor(store.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(&graph.EngineError{Code: "TERMINAL", Err: graph.ErrTerminal}))
	assert.Equal(t, http.StatusConflict, statusFor(store.ErrVersionConflict))
	assert.Equal(t, http.StatusBadRequest, statusFor(legal.ErrInvalidDecision))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(workflow.ErrLockAcquire))
	assert.Equal(t, http.StatusInternalServerError, statusFor(io.ErrUnexpectedEOF))
}
