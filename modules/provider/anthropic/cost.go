package anthropic

import "strings"

// modelPricing holds per-million-token prices in cents.
type modelPricing struct {
	inputCents  float64
	outputCents float64
}

// pricingTable maps model name prefixes to published per-million-token
// prices. Matched longest-prefix-first by lookupPricing.
var pricingTable = map[string]modelPricing{
	"claude-opus":   {inputCents: 1500, outputCents: 7500},
	"claude-sonnet": {inputCents: 300, outputCents: 1500},
	"claude-haiku":  {inputCents: 100, outputCents: 500},
	"claude-3-5-haiku": {inputCents: 80, outputCents: 400},
}

// fallbackPricing is used for unrecognized models so cost bookkeeping
// never silently reports zero. Sonnet pricing is the mid-tier guess.
var fallbackPricing = modelPricing{inputCents: 300, outputCents: 1500}

func lookupPricing(model string) modelPricing {
	best := fallbackPricing
	bestLen := 0
	for prefix, p := range pricingTable {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best = p
			bestLen = len(prefix)
		}
	}
	return best
}

// EstimateCost implements provider.Provider. The result is in cents.
func (a *Anthropic) EstimateCost(inputTokens, outputTokens int) float64 {
	p := lookupPricing(a.config.Model)
	return float64(inputTokens)*p.inputCents/1_000_000 +
		float64(outputTokens)*p.outputCents/1_000_000
}
