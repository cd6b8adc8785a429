package agent

import "sync"

// modelCost holds per-million-token pricing for one model.
type modelCost struct {
	InputPer1M  float64
	OutputPer1M float64
}

// anthropicCosts mirrors published per-model pricing; unlisted models fall
// back to the sonnet tier in BudgetTracker.costFor.
var anthropicCosts = map[string]modelCost{
	"claude-3-5-sonnet-20241022": {InputPer1M: 3.0, OutputPer1M: 15.0},
	"claude-3-5-sonnet-latest":   {InputPer1M: 3.0, OutputPer1M: 15.0},
	"claude-sonnet-4-20250514":   {InputPer1M: 3.0, OutputPer1M: 15.0},
	"claude-3-5-haiku-20241022":  {InputPer1M: 1.0, OutputPer1M: 5.0},
	"claude-3-5-haiku-latest":    {InputPer1M: 1.0, OutputPer1M: 5.0},
	"claude-3-opus-20240229":     {InputPer1M: 15.0, OutputPer1M: 75.0},
	"claude-opus-4-20250514":     {InputPer1M: 15.0, OutputPer1M: 75.0},
	"claude-3-haiku-20240307":    {InputPer1M: 0.25, OutputPer1M: 1.25},
}

// BudgetTracker implements CostTracker, converting recorded token usage
// into a running dollar spend and comparing it against a ceiling.
type BudgetTracker struct {
	mu         sync.Mutex
	model      string
	spentUSD   float64
	maxCostUSD float64
}

// NewBudgetTracker builds a tracker for model, with maxCostUSD<=0 disabling
// the budget check entirely (BudgetExceeded always returns false).
func NewBudgetTracker(model string, maxCostUSD float64) *BudgetTracker {
	return &BudgetTracker{model: model, maxCostUSD: maxCostUSD}
}

// RecordUsage accumulates the dollar cost of one LLM call.
func (b *BudgetTracker) RecordUsage(usage Usage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	cost := b.costFor(b.model)
	b.spentUSD += float64(usage.InputTokens)/1_000_000*cost.InputPer1M +
		float64(usage.OutputTokens)/1_000_000*cost.OutputPer1M
}

// BudgetExceeded reports whether accumulated spend has crossed the ceiling.
func (b *BudgetTracker) BudgetExceeded() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxCostUSD <= 0 {
		return false
	}
	return b.spentUSD >= b.maxCostUSD
}

// SpentUSD returns the running total spend, for reporting.
func (b *BudgetTracker) SpentUSD() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.spentUSD
}

func (b *BudgetTracker) costFor(model string) modelCost {
	if cost, ok := anthropicCosts[model]; ok {
		return cost
	}
	return anthropicCosts["claude-sonnet-4-20250514"]
}
