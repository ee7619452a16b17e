package metering

import (
	"strings"

	"github.com/solpumpai/backend/internal/anthropic"
)

// Model identifiers for the two routing tiers.
const (
	ModelLight = "claude-haiku-4-5-20251001"
	ModelHeavy = "claude-sonnet-4-5-20250929"
)

// sonnetEvery routes every Nth request to the heavier tier.
const sonnetEvery = 10

// Rate is USD per million tokens.
type Rate struct {
	Input  float64
	Output float64
}

// PricingTable maps a model-family substring to its rate. An unknown
// model prices at zero; that is a configuration gap, not an error.
type PricingTable map[string]Rate

// DefaultPricing mirrors the provider's published per-million rates.
func DefaultPricing() PricingTable {
	return PricingTable{
		"haiku":  {Input: 0.25, Output: 1.25},
		"sonnet": {Input: 3, Output: 15},
		"opus":   {Input: 15, Output: 75},
	}
}

// Cost computes the deterministic tiered linear cost for one completion.
func (p PricingTable) Cost(model string, usage anthropic.Usage) float64 {
	for family, rate := range p {
		if strings.Contains(model, family) {
			return (float64(usage.InputTokens)*rate.Input + float64(usage.OutputTokens)*rate.Output) / 1_000_000
		}
	}
	return 0
}

// pickModel selects the tier for a request. The light model is the
// default; every sonnetEvery-th request (by submitted history length)
// goes to the heavy model.
func pickModel(historyLen int) string {
	if historyLen > 0 && historyLen%sonnetEvery == 0 {
		return ModelHeavy
	}
	return ModelLight
}
