package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	backend "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/dshills/lexgraph/graph"
	"github.com/dshills/lexgraph/graph/emit"
	"github.com/dshills/lexgraph/graph/model"
	"github.com/dshills/lexgraph/graph/model/anthropic"
	"github.com/dshills/lexgraph/graph/model/google"
	"github.com/dshills/lexgraph/graph/model/openai"
	"github.com/dshills/lexgraph/graph/store"
	"github.com/dshills/lexgraph/internal/config"
	"github.com/dshills/lexgraph/legal"
	"github.com/dshills/lexgraph/review"
	"github.com/dshills/lexgraph/workflow"
)

// app holds everything a command needs. close releases it in reverse order.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	costs    *model.CostTracker
	svc      *workflow.Service
	closers  []func() error
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func newApp(ctx context.Context, cfg *config.Config) (a *app, err error) {
	a = &app{
		cfg:      cfg,
		logger:   newLogger(cfg.Log, os.Stderr),
		registry: prometheus.NewRegistry(),
		costs:    model.NewCostTracker("USD"),
	}
	defer func() {
		if err != nil {
			_ = a.close()
		}
	}()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var redis *backend.Client
	if cfg.Store.RedisAddr != "" {
		redis = backend.NewClient(&backend.Options{
			Addr:     cfg.Store.RedisAddr,
			Password: cfg.Store.RedisPassword,
			DB:       cfg.Store.RedisDB,
		})
		a.closers = append(a.closers, redis.Close)
	}

	st, err := openStore(ctx, cfg.Store, redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, st.Close)

	llm, err := a.newCaller(ctx)
	if err != nil {
		return nil, err
	}

	reviews := review.NewMemQueue()
	g, err := legal.Build(legal.Config{
		LLM:         llm,
		Reviews:     reviews,
		Exporter:    &legal.FileExporter{Dir: cfg.Export.Dir},
		Logger:      a.logger,
		Temperature: cfg.LLM.TemperatureValue(),
		MaxTokens:   cfg.LLM.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	emitters := []emit.Emitter{emit.NewLogEmitter(a.logger)}
	spans, err := a.newTracing(cfg.Trace)
	if err != nil {
		return nil, err
	}
	if spans != nil {
		emitters = append(emitters, spans)
	}

	engine, err := graph.NewEngine(g,
		graph.WithStepTimeout(cfg.Engine.StepTimeoutDuration()),
		graph.WithMaxSteps(cfg.Engine.MaxSteps),
		graph.WithLogger(a.logger),
		graph.WithMetrics(graph.NewPrometheusMetrics(a.registry)),
		graph.WithEmitter(emit.NewMultiEmitter(emitters...)),
	)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	opts := []workflow.Option{workflow.WithLogger(a.logger)}
	if redis != nil {
		opts = append(opts, workflow.WithLocker(workflow.NewRedisLocker(redis, cfg.Store.RedisPrefix, cfg.Store.LockTTLDuration())))
	}
	a.svc = workflow.New(engine, st, reviews, opts...)

	a.logger.Debug("lexgraph initialized",
		"env", cfg.Env(),
		"store", cfg.Store.Driver,
		"llm", cfg.LLM.Provider,
		"model", cfg.LLM.Model,
	)
	return a, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, redis *backend.Client) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return store.NewMemStore(), nil
	case config.DriverSQLite:
		return store.NewSQLiteStore(cfg.DSN)
	case config.DriverMySQL:
		return store.NewMySQLStore(cfg.DSN)
	case config.DriverPostgres:
		return store.NewPostgresStore(cfg.DSN)
	case config.DriverRedis:
		s := store.NewRedisStoreFromClient(redis,
			store.WithPrefix(cfg.RedisPrefix),
			store.WithTTL(cfg.RedisTTLDuration()),
		)
		if err := redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// newCaller builds the configured chat model behind a retrying, cost-tracking
// client. Provider "none" returns a nil Caller.
func (a *app) newCaller(ctx context.Context) (model.Caller, error) {
	cfg := a.cfg.LLM

	var chat model.ChatModel
	switch cfg.Provider {
	case config.ProviderNone:
		return nil, nil
	case config.ProviderAnthropic:
		chat = anthropic.NewChatModel(cfg.APIKey, cfg.Model)
	case config.ProviderOpenAI:
		chat = openai.NewChatModel(cfg.APIKey, cfg.Model)
	case config.ProviderGoogle:
		m, err := google.New(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		a.closers = append(a.closers, m.Close)
		chat = m
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	retry := model.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.MaxRetries
	return model.NewClient(chat,
		model.WithRetry(retry),
		model.WithCostTracker(a.costs),
		model.WithLogger(a.logger),
		model.WithModelName(cfg.Model),
	), nil
}

// newTracing returns an emitter that exports one span per engine event, or
// nil when tracing is off. Spans are batched and flushed on close.
func (a *app) newTracing(cfg config.TraceConfig) (emit.Emitter, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	var w io.Writer = os.Stderr
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open trace output: %w", err)
		}
		a.closers = append(a.closers, f.Close)
		w = f
	}

	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	a.closers = append(a.closers, func() error { return tp.Shutdown(context.Background()) })
	return emit.NewOTelEmitter(tp.Tracer("github.com/dshills/lexgraph")), nil
}

func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if a.costs != nil {
		if in, out := a.costs.GetTokenUsage(); in+out > 0 {
			a.logger.Info("llm usage", "input_tokens", in, "output_tokens", out, "cost_usd", a.costs.GetTotalCost())
		}
	}
	return errors.Join(errs...)
}
