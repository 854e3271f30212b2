package graph

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/lexgraph/graph/emit"
)

// Default execution limits.
const (
	DefaultStepTimeout = 2 * time.Minute
	DefaultMaxSteps    = 100
)

// Options configures Engine execution behavior.
//
// Zero values are valid; NewEngine fills in defaults for anything unset.
type Options struct {
	// StepTimeout bounds each step's Run. A step that exceeds it is recorded
	// as failed with error "timeout". Zero disables the bound.
	StepTimeout time.Duration

	// MaxSteps limits how many steps a single Start, Tick or Resume call may
	// execute. Exceeding it terminates the workflow with "max steps exceeded".
	MaxSteps int

	// Emitter receives observability events. Defaults to emit.NullEmitter.
	Emitter emit.Emitter

	// Metrics records Prometheus metrics. Nil disables metrics.
	Metrics *PrometheusMetrics

	// Logger receives engine diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// Clock supplies history timestamps. Defaults to time.Now.
	Clock func() time.Time

	// TokenSource mints suspension tokens. Defaults to random UUIDs.
	TokenSource func() string
}

// Option is a functional option for configuring an Engine.
//
// Example:
//
//	engine, err := graph.NewEngine(g,
//	    graph.WithStepTimeout(30*time.Second),
//	    graph.WithMaxSteps(50),
//	    graph.WithEmitter(emit.NewLogEmitter(logger)),
//	)
type Option func(*engineConfig) error

// engineConfig collects options before they are applied to an Engine so
// each option can validate its input.
type engineConfig struct {
	opts Options
}

// WithStepTimeout sets the per-step deadline. Zero disables it.
func WithStepTimeout(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < 0 {
			return errors.New("step timeout must be >= 0")
		}
		cfg.opts.StepTimeout = d
		return nil
	}
}

// WithMaxSteps limits steps executed per engine call.
//
// Workflow loops (review → generate → review) are supported; MaxSteps keeps a
// misconfigured loop from running forever.
func WithMaxSteps(n int) Option {
	return func(cfg *engineConfig) error {
		if n <= 0 {
			return errors.New("max steps must be > 0")
		}
		cfg.opts.MaxSteps = n
		return nil
	}
}

// WithEmitter sets the event emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Emitter = e
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	engine, _ := graph.NewEngine(g, graph.WithMetrics(graph.NewPrometheusMetrics(registry)))
func WithMetrics(m *PrometheusMetrics) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Metrics = m
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(cfg *engineConfig) error {
		cfg.opts.Logger = l
		return nil
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(cfg *engineConfig) error {
		if now == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.opts.Clock = now
		return nil
	}
}

// WithTokenSource overrides how suspension tokens are minted. Tokens must be
// unique across all work units sharing a store.
func WithTokenSource(fn func() string) Option {
	return func(cfg *engineConfig) error {
		if fn == nil {
			return errors.New("token source cannot be nil")
		}
		cfg.opts.TokenSource = fn
		return nil
	}
}

func (o *Options) applyDefaults() {
	if o.MaxSteps == 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.Emitter == nil {
		o.Emitter = emit.NewNullEmitter()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.TokenSource == nil {
		o.TokenSource = func() string { return uuid.NewString() }
	}
}
