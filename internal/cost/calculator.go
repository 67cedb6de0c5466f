// Package cost prices LLM token usage for run summaries.
package cost

import (
	"github.com/sells-group/qbank-cli/internal/config"
	"github.com/sells-group/qbank-cli/internal/model"
)

// Calculator computes costs for API usage.
type Calculator struct {
	rates map[string]config.ModelPricing
}

// NewCalculator creates a Calculator from the pricing section. Models not
// configured fall back to DefaultPricing.
func NewCalculator(pricing config.PricingConfig) *Calculator {
	rates := DefaultPricing()
	for name, r := range pricing.Anthropic {
		rates[name] = r
	}
	return &Calculator{rates: rates}
}

// Claude computes the cost in USD for one Claude call.
func (c *Calculator) Claude(modelName string, input, output, cacheWrite, cacheRead int) float64 {
	if c == nil {
		return 0
	}
	rate, ok := c.rates[modelName]
	if !ok {
		return 0
	}

	inCost := (float64(input) / 1e6) * rate.Input
	outCost := (float64(output) / 1e6) * rate.Output
	cwCost := (float64(cacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(cacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Price fills in the Cost of a usage record produced by modelName.
func (c *Calculator) Price(modelName string, u model.TokenUsage) model.TokenUsage {
	u.Cost = c.Claude(modelName, u.InputTokens, u.OutputTokens, u.CacheCreationTokens, u.CacheReadTokens)
	return u
}

// DefaultPricing returns the built-in per-model rates.
func DefaultPricing() map[string]config.ModelPricing {
	return map[string]config.ModelPricing{
		"claude-haiku-4-5-20251001": {
			Input: 1.00, Output: 5.00,
			CacheWriteMul: 2.0, CacheReadMul: 0.1,
		},
		"claude-sonnet-4-5-20250929": {
			Input: 3.00, Output: 15.00,
			CacheWriteMul: 2.0, CacheReadMul: 0.1,
		},
	}
}
