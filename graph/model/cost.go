package model

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ModelPricing is the USD price per million tokens for one model.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Cost returns the USD cost of u under p.
func (p ModelPricing) Cost(u Usage) float64 {
	return float64(u.InputTokens)/1_000_000.0*p.InputPer1M +
		float64(u.OutputTokens)/1_000_000.0*p.OutputPer1M
}

// defaultModelPricing holds published list prices. Dated model names are
// resolved by prefix, so "claude-sonnet-4-5-20250929" prices as
// "claude-sonnet-4-5".
var defaultModelPricing = map[string]ModelPricing{
	"claude-opus-4-1":   {InputPer1M: 15.00, OutputPer1M: 75.00},
	"claude-opus-4":     {InputPer1M: 15.00, OutputPer1M: 75.00},
	"claude-sonnet-4-5": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-sonnet-4":   {InputPer1M: 3.00, OutputPer1M: 15.00},
	"claude-haiku-4-5":  {InputPer1M: 1.00, OutputPer1M: 5.00},
	"claude-3-5-haiku":  {InputPer1M: 0.80, OutputPer1M: 4.00},

	"gpt-4.1":      {InputPer1M: 2.00, OutputPer1M: 8.00},
	"gpt-4.1-mini": {InputPer1M: 0.40, OutputPer1M: 1.60},
	"gpt-4o":       {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":  {InputPer1M: 0.15, OutputPer1M: 0.60},

	"gemini-2.0-flash": {InputPer1M: 0.10, OutputPer1M: 0.40},
	"gemini-1.5-pro":   {InputPer1M: 1.25, OutputPer1M: 5.00},
	"gemini-1.5-flash": {InputPer1M: 0.075, OutputPer1M: 0.30},
}

// LLMCall is one recorded completion.
type LLMCall struct {
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
	WorkID       string
	Node         string
}

// CostTracker accumulates token usage and spend across completions.
//
// Unknown models are recorded with zero cost so usage is never lost. The
// tracker is safe for concurrent use.
type CostTracker struct {
	Currency string

	mu           sync.RWMutex
	pricing      map[string]ModelPricing
	calls        []LLMCall
	totalCost    float64
	modelCosts   map[string]float64
	workCosts    map[string]float64
	inputTokens  int64
	outputTokens int64
	enabled      bool
}

// NewCostTracker creates a tracker seeded with the default price table.
func NewCostTracker(currency string) *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}
	return &CostTracker{
		Currency:   currency,
		pricing:    pricing,
		calls:      make([]LLMCall, 0, 64),
		modelCosts: make(map[string]float64),
		workCosts:  make(map[string]float64),
		enabled:    true,
	}
}

// Price returns the pricing for model, matching the longest known prefix.
func (ct *CostTracker) Price(model string) (ModelPricing, bool) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.price(model)
}

func (ct *CostTracker) price(model string) (ModelPricing, bool) {
	if p, ok := ct.pricing[model]; ok {
		return p, true
	}
	best := ""
	for name := range ct.pricing {
		if strings.HasPrefix(model, name) && len(name) > len(best) {
			best = name
		}
	}
	if best == "" {
		return ModelPricing{}, false
	}
	return ct.pricing[best], true
}

// Record adds a completion and returns its cost. A disabled tracker records
// nothing and returns zero.
func (ct *CostTracker) Record(model string, usage Usage, workID, node string) float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	if !ct.enabled {
		return 0
	}

	pricing, _ := ct.price(model)
	cost := pricing.Cost(usage)

	ct.calls = append(ct.calls, LLMCall{
		Model:        model,
		InputTokens:  usage.InputTokens,
		OutputTokens: usage.OutputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
		WorkID:       workID,
		Node:         node,
	})
	ct.totalCost += cost
	ct.modelCosts[model] += cost
	if workID != "" {
		ct.workCosts[workID] += cost
	}
	ct.inputTokens += int64(usage.InputTokens)
	ct.outputTokens += int64(usage.OutputTokens)
	return cost
}

// GetTotalCost returns the cumulative spend.
func (ct *CostTracker) GetTotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.totalCost
}

// GetCostByModel returns a copy of the spend per model.
func (ct *CostTracker) GetCostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	costs := make(map[string]float64, len(ct.modelCosts))
	for m, c := range ct.modelCosts {
		costs[m] = c
	}
	return costs
}

// GetWorkCost returns the spend attributed to one work unit.
func (ct *CostTracker) GetWorkCost(workID string) float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.workCosts[workID]
}

// GetCallHistory returns a copy of every recorded call.
func (ct *CostTracker) GetCallHistory() []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	calls := make([]LLMCall, len(ct.calls))
	copy(calls, ct.calls)
	return calls
}

// GetTokenUsage returns cumulative input and output tokens.
func (ct *CostTracker) GetTokenUsage() (inputTokens, outputTokens int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.inputTokens, ct.outputTokens
}

// SetCustomPricing overrides or adds pricing for model.
func (ct *CostTracker) SetCustomPricing(model string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[model] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

func (ct *CostTracker) Disable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = false
}

func (ct *CostTracker) Enable() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.enabled = true
}

// Reset clears recorded calls and totals. Pricing is kept.
func (ct *CostTracker) Reset() {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	ct.calls = make([]LLMCall, 0, 64)
	ct.totalCost = 0
	ct.modelCosts = make(map[string]float64)
	ct.workCosts = make(map[string]float64)
	ct.inputTokens = 0
	ct.outputTokens = 0
}

func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	return fmt.Sprintf("CostTracker{Calls: %d, TotalCost: %.4f %s, InputTokens: %d, OutputTokens: %d}",
		len(ct.calls), ct.totalCost, ct.Currency, ct.inputTokens, ct.outputTokens)
}
