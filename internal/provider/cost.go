package provider

import (
	"strings"

	"github.com/merchly-ai/attest/internal/model"
)

// modelPricing holds USD rates per million tokens.
type modelPricing struct {
	InputPerMTok  float64
	OutputPerMTok float64
}

// remotePricing maps model family prefixes to published rates. Matched by
// longest prefix so "gpt-4o-mini" wins over "gpt-4o". Local and mock
// providers cost nothing and are handled before this table is consulted.
var remotePricing = map[string]modelPricing{
	"gpt-4o-mini":       {InputPerMTok: 0.15, OutputPerMTok: 0.60},
	"gpt-4o":            {InputPerMTok: 2.50, OutputPerMTok: 10.00},
	"gpt-4.1-mini":      {InputPerMTok: 0.40, OutputPerMTok: 1.60},
	"gpt-4.1":           {InputPerMTok: 2.00, OutputPerMTok: 8.00},
	"o3-mini":           {InputPerMTok: 1.10, OutputPerMTok: 4.40},
	"claude-opus-4":     {InputPerMTok: 15.00, OutputPerMTok: 75.00},
	"claude-sonnet-4":   {InputPerMTok: 3.00, OutputPerMTok: 15.00},
	"claude-3-5-haiku":  {InputPerMTok: 0.80, OutputPerMTok: 4.00},
	"claude-3-5-sonnet": {InputPerMTok: 3.00, OutputPerMTok: 15.00},
}

// defaultRemotePricing is used for remote models absent from the table, so
// unrecognized models still accrue a nonzero cost instead of reading as free.
var defaultRemotePricing = modelPricing{InputPerMTok: 1.00, OutputPerMTok: 4.00}

// EstimateCostUSD computes the dollar cost of a completion. Local and
// mock providers return 0.
func EstimateCostUSD(provider model.ProviderName, modelName string, usage model.TokenUsage) float64 {
	switch provider {
	case model.ProviderOpenAI, model.ProviderAnthropic:
	default:
		return 0
	}

	pricing := defaultRemotePricing
	bestLen := 0
	for prefix, p := range remotePricing {
		if strings.HasPrefix(modelName, prefix) && len(prefix) > bestLen {
			pricing = p
			bestLen = len(prefix)
		}
	}

	return float64(usage.Input)*pricing.InputPerMTok/1e6 +
		float64(usage.Output)*pricing.OutputPerMTok/1e6
}
