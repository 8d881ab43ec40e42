// Package pricing computes generation cost and cost-based routing scores.
// Rates are USD per million tokens. A models.dev-synced reference row takes
// precedence over the static per-provider table when present.
package pricing

import (
	"context"
	"math"
	"strings"

	"github.com/lumenlabs/llm-gateway/internal/catalog"
	"github.com/lumenlabs/llm-gateway/internal/models"
	"gorm.io/gorm"
)

// Rates holds USD-per-million-token prices for one provider or model.
type Rates struct {
	Input  float64 // USD per 1M input tokens.
	Output float64 // USD per 1M output tokens.
}

// Static per-provider-type rates, representative of each vendor's default
// chat model.
var providerRates = map[string]Rates{
	catalog.ProviderAnthropic:  {Input: 3.0, Output: 15.0},
	catalog.ProviderOpenAI:     {Input: 2.5, Output: 10.0},
	catalog.ProviderGoogle:     {Input: 0.3, Output: 2.5},
	catalog.ProviderOllama:     {Input: 0, Output: 0},
	catalog.ProviderDeepSeek:   {Input: 0.27, Output: 1.1},
	catalog.ProviderMistral:    {Input: 2.0, Output: 6.0},
	catalog.ProviderCohere:     {Input: 2.5, Output: 10.0},
	catalog.ProviderXAI:        {Input: 3.0, Output: 15.0},
	catalog.ProviderZhipu:      {Input: 0.6, Output: 2.2},
	catalog.ProviderMoonshot:   {Input: 2.0, Output: 5.0},
	catalog.ProviderOpenRouter: {Input: 1.0, Output: 3.0},
}

// ProviderRates returns the static rates for a provider type. Unknown types
// are priced at zero.
func ProviderRates(providerType string) Rates {
	return providerRates[strings.ToLower(strings.TrimSpace(providerType))]
}

// Cost computes the cost of one attempt, rounded to 6 decimal places.
func Cost(inputTokens, outputTokens int, rates Rates) float64 {
	cost := float64(inputTokens)/1e6*rates.Input + float64(outputTokens)/1e6*rates.Output
	return math.Round(cost*1e6) / 1e6
}

// RouteScore scores a provider for cost-based ordering using a fixed 1:2
// input:output token weighting. Lower is cheaper.
func RouteScore(rates Rates) float64 {
	return rates.Input + 2*rates.Output
}

// LookupRates resolves rates for (providerType, modelID), preferring a synced
// model price reference row over the static table. Lookup failures fall back
// to the static table.
func LookupRates(ctx context.Context, db *gorm.DB, providerType, modelID string) Rates {
	static := ProviderRates(providerType)
	if db == nil {
		return static
	}

	var row models.ModelPrice
	errFind := db.WithContext(ctx).
		Where("provider_name = ? AND model_name = ?", strings.ToLower(strings.TrimSpace(providerType)), strings.TrimSpace(modelID)).
		Take(&row).Error
	if errFind != nil {
		return static
	}

	out := static
	if row.InputPrice != nil {
		out.Input = *row.InputPrice
	}
	if row.OutputPrice != nil {
		out.Output = *row.OutputPrice
	}
	return out
}
