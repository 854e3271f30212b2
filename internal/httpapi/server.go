// Package httpapi exposes the workflow service over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/store"
	"github.com/dshills/lexgraph/legal"
	"github.com/dshills/lexgraph/review"
	"github.com/dshills/lexgraph/workflow"
)

// maxBodyBytes bounds request bodies; documents are submitted inline.
const maxBodyBytes = 8 << 20

// Server handles the HTTP API.
type Server struct {
	svc    *workflow.Service
	logger *slog.Logger
}

// Option configures NewHandler.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics serves the registry's metrics at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(o *options) { o.gatherer = g }
}

// NewHandler builds the router:
//
//	GET    /health
//	GET    /graph
//	GET    /metrics                     (WithMetrics only)
//	POST   /work                        submit
//	GET    /work                        list (?status=&limit=)
//	GET    /work/{id}                   full state
//	DELETE /work/{id}                   delete finished work
//	POST   /work/{id}/resume            resume with a decision
//	POST   /resume/{token}              resume by suspension token
//	GET    /tasks                       open review tasks (?limit=)
//	GET    /tasks/{id}
//	POST   /tasks/{id}/complete         complete a review task
func NewHandler(svc *workflow.Service, opts ...Option) http.Handler {
	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	s := &Server{svc: svc, logger: o.logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(o.logger))

	r.Get("/health", s.health)
	r.Get("/graph", s.getGraph)
	if o.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(o.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/work", func(r chi.Router) {
		r.Post("/", s.submit)
		r.Get("/", s.list)
		r.Get("/{id}", s.get)
		r.Delete("/{id}", s.delete)
		r.Post("/{id}/resume", s.resume)
	})
	r.Post("/resume/{token}", s.resumeByToken)

	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.tasks)
		r.Get("/{id}", s.task)
		r.Post("/{id}/complete", s.completeTask)
	})
	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("request",
				"method", r.Method,
				"uri", r.URL.RequestURI(),
				"status", ww.Status(),
				"request_id", middleware.GetReqID(r.Context()),
				"duration", time.Since(start),
			)
		})
	}
}

type submitRequest struct {
	WorkID string         `json:"work_id"`
	Input  map[string]any `json:"input"`
}

type completeRequest struct {
	Decision map[string]any `json:"decision"`
	Comments string         `json:"comments"`
}

type graphNode struct {
	Name       string   `json:"name"`
	Targets    []string `json:"targets,omitempty"`
	Suspension bool     `json:"suspension,omitempty"`
	Terminal   bool     `json:"terminal,omitempty"`
}

type graphResponse struct {
	Entry string      `json:"entry"`
	Nodes []graphNode `json:"nodes"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getGraph(w http.ResponseWriter, _ *http.Request) {
	g := s.svc.Graph()
	resp := graphResponse{Entry: g.Entry()}
	for _, name := range g.Nodes() {
		resp.Nodes = append(resp.Nodes, graphNode{
			Name:       name,
			Targets:    g.Targets(name),
			Suspension: g.IsSuspension(name),
			Terminal:   g.IsTerminal(name),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if !s.decode(w, r, &body) {
		return
	}
	st, err := s.svc.Submit(r.Context(), body.WorkID, body.Input)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	opts := store.ListOptions{Status: graph.Status(r.URL.Query().Get("status"))}
	switch opts.Status {
	case "", graph.StatusActive, graph.StatusSuspended, graph.StatusCompleted, graph.StatusFailed:
	default:
		writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(string(opts.Status)))
		return
	}
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	opts.Limit = limit

	items, err := s.svc.List(r.Context(), opts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []store.Summary{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resume(w http.ResponseWriter, r *http.Request) {
	var decision map[string]any
	if !s.decode(w, r, &decision) {
		return
	}
	st, err := s.svc.Resume(r.Context(), chi.URLParam(r, "id"), decision)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) resumeByToken(w http.ResponseWriter, r *http.Request) {
	var decision map[string]any
	if !s.decode(w, r, &decision) {
		return
	}
	st, err := s.svc.ResumeByToken(r.Context(), chi.URLParam(r, "token"), decision)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) tasks(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r)
	if !ok {
		return
	}
	tasks, err := s.svc.Tasks(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []review.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) task(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Task(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	var body completeRequest
	if !s.decode(w, r, &body) {
		return
	}
	st, err := s.svc.CompleteReview(r.Context(), chi.URLParam(r, "id"), body.Decision, body.Comments)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		s.logger.Warn("invalid request body", "uri", r.URL.RequestURI(), "error", err)
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// fail maps service errors onto status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "uri", r.URL.RequestURI(), "error", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, review.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrWorkExists),
		errors.Is(err, store.ErrVersionConflict),
		errors.Is(err, graph.ErrConcurrentUpdate),
		errors.Is(err, graph.ErrTerminal),
		errors.Is(err, graph.ErrNotSuspended),
		errors.Is(err, graph.ErrSuspended),
		errors.Is(err, review.ErrTaskClosed),
		errors.Is(err, workflow.ErrTaskMismatch):
		return http.StatusConflict
	case errors.Is(err, legal.ErrInvalidDecision),
		errors.Is(err, graph.ErrInvalidState),
		errors.Is(err, review.ErrInvalidTask):
		return http.StatusBadRequest
	case errors.Is(err, workflow.ErrLockAcquire):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit "+strconv.Quote(v))
		return 0, false
	}
	return n, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
