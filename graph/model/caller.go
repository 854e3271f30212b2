package model

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"
)

// Caller is the text-in, text-out service steps use to reach a model.
type Caller interface {
	Call(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int) (string, error)
}

// Request is a single completion request.
type Request struct {
	Prompt       string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int

	// WorkID and Node attribute the spend in the CostTracker.
	WorkID string
	Node   string
}

// Completion is the detailed result of a request.
type Completion struct {
	Text     string
	Model    string
	Usage    Usage
	CostUSD  float64
	Attempts int
}

// Metadata returns the completion fields steps attach to their result.
func (c Completion) Metadata() map[string]any {
	return map[string]any{
		"model":      c.Model,
		"tokens_in":  c.Usage.InputTokens,
		"tokens_out": c.Usage.OutputTokens,
		"cost_usd":   c.CostUSD,
		"attempts":   c.Attempts,
	}
}

// Completer is implemented by callers that can report usage along with text.
type Completer interface {
	Complete(ctx context.Context, req Request) (Completion, error)
}

// Invoke sends req through c, using Complete when c supports it so usage and
// cost are reported. Plain callers yield a Completion with only Text set.
func Invoke(ctx context.Context, c Caller, req Request) (Completion, error) {
	if cc, ok := c.(Completer); ok {
		return cc.Complete(ctx, req)
	}
	text, err := c.Call(ctx, req.Prompt, req.SystemPrompt, req.Temperature, req.MaxTokens)
	if err != nil {
		return Completion{}, err
	}
	return Completion{Text: text, Attempts: 1}, nil
}

// Client adapts a ChatModel to Caller, adding retries and cost tracking.
type Client struct {
	model  ChatModel
	name   string
	retry  RetryPolicy
	costs  *CostTracker
	logger *slog.Logger
	rng    *rand.Rand
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithRetry sets the retry policy. Invalid policies are ignored.
func WithRetry(rp RetryPolicy) ClientOption {
	return func(c *Client) {
		if rp.Validate() == nil {
			c.retry = rp
		}
	}
}

// WithCostTracker records every successful completion in ct.
func WithCostTracker(ct *CostTracker) ClientOption {
	return func(c *Client) { c.costs = ct }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithModelName sets the name used for pricing when the provider does not
// report one.
func WithModelName(name string) ClientOption {
	return func(c *Client) { c.name = name }
}

// withRand fixes the jitter source. Used by tests.
func withRand(rng *rand.Rand) ClientOption {
	return func(c *Client) { c.rng = rng }
}

// NewClient wraps m.
func NewClient(m ChatModel, opts ...ClientOption) *Client {
	c := &Client{
		model:  m,
		retry:  DefaultRetryPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call implements Caller.
func (c *Client) Call(ctx context.Context, prompt, systemPrompt string, temperature float64, maxTokens int) (string, error) {
	out, err := c.Complete(ctx, Request{
		Prompt:       prompt,
		SystemPrompt: systemPrompt,
		Temperature:  temperature,
		MaxTokens:    maxTokens,
	})
	return out.Text, err
}

// Complete implements Completer. Transient failures are retried according to
// the retry policy; the wait between attempts honors ctx.
func (c *Client) Complete(ctx context.Context, req Request) (Completion, error) {
	messages := make([]Message, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: req.Prompt})
	params := Params{Temperature: req.Temperature, MaxTokens: req.MaxTokens}

	var lastErr error
	for attempt := 0; attempt < c.retry.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Completion{}, err
		}

		out, err := c.model.Chat(ctx, messages, params)
		if err == nil {
			return c.complete(out, req, attempt+1), nil
		}
		lastErr = err

		if !c.retry.retryable(err) || attempt+1 >= c.retry.MaxAttempts {
			break
		}

		delay := computeBackoff(attempt, c.retry.BaseDelay, c.retry.MaxDelay, c.rng)
		c.logger.LogAttrs(ctx, slog.LevelWarn, "model call failed, retrying",
			slog.String("work_id", req.WorkID),
			slog.String("node", req.Node),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", delay),
			slog.Any("error", err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Completion{}, ctx.Err()
		}
	}

	return Completion{}, fmt.Errorf("model call failed: %w", lastErr)
}

func (c *Client) complete(out ChatOut, req Request, attempts int) Completion {
	name := out.Model
	if name == "" {
		name = c.name
	}
	comp := Completion{
		Text:     out.Text,
		Model:    name,
		Usage:    out.Usage,
		Attempts: attempts,
	}
	if c.costs != nil {
		comp.CostUSD = c.costs.Record(name, out.Usage, req.WorkID, req.Node)
	}
	return comp
}
