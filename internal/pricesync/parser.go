// Package pricesync keeps the model_prices reference table in step with the
// models.dev catalog. Synced rows take precedence over the static
// per-provider rate table when computing request cost.
package pricesync

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/lumenlabs/llm-gateway/internal/models"
)

type providerPayload struct {
	Models map[string]json.RawMessage `json:"models"`
}

type modelPayload struct {
	Cost  *modelCost  `json:"cost"`
	Limit *modelLimit `json:"limit"`
}

type modelCost struct {
	Input  *float64 `json:"input"`
	Output *float64 `json:"output"`
}

type modelLimit struct {
	Context *int `json:"context"`
	Output  *int `json:"output"`
}

type priceKey struct {
	provider string
	model    string
}

// ParsePricesPayload converts the models.dev payload into price rows. The
// provider key is lowercased so rows join against provider type tags.
func ParsePricesPayload(data []byte) ([]models.ModelPrice, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("pricesync: empty payload")
	}

	var providers map[string]json.RawMessage
	if errDecode := json.Unmarshal(data, &providers); errDecode != nil {
		return nil, fmt.Errorf("pricesync: decode providers: %w", errDecode)
	}

	rowsByKey := make(map[priceKey]models.ModelPrice)
	providerIDs := make([]string, 0, len(providers))
	for providerID := range providers {
		providerIDs = append(providerIDs, providerID)
	}
	sort.Strings(providerIDs)

	for _, providerID := range providerIDs {
		providerRaw := providers[providerID]
		if len(providerRaw) == 0 {
			continue
		}

		var provider providerPayload
		if errDecode := json.Unmarshal(providerRaw, &provider); errDecode != nil {
			return nil, fmt.Errorf("pricesync: decode provider %s: %w", providerID, errDecode)
		}
		providerName := strings.ToLower(strings.TrimSpace(providerID))
		if providerName == "" || len(provider.Models) == 0 {
			continue
		}

		modelIDs := make([]string, 0, len(provider.Models))
		for modelID := range provider.Models {
			modelIDs = append(modelIDs, modelID)
		}
		sort.Strings(modelIDs)

		for _, modelID := range modelIDs {
			modelRaw := provider.Models[modelID]
			if len(modelRaw) == 0 {
				continue
			}

			var model modelPayload
			if errDecode := json.Unmarshal(modelRaw, &model); errDecode != nil {
				return nil, fmt.Errorf("pricesync: decode model %s: %w", modelID, errDecode)
			}
			modelName := strings.TrimSpace(modelID)
			if modelName == "" {
				continue
			}

			row := models.ModelPrice{
				ProviderName: providerName,
				ModelName:    modelName,
			}
			if model.Limit != nil {
				if model.Limit.Context != nil {
					row.ContextLimit = *model.Limit.Context
				}
				if model.Limit.Output != nil {
					row.OutputLimit = *model.Limit.Output
				}
			}
			if model.Cost != nil {
				row.InputPrice = model.Cost.Input
				row.OutputPrice = model.Cost.Output
			}

			key := priceKey{provider: providerName, model: modelName}
			if existing, ok := rowsByKey[key]; ok {
				rowsByKey[key] = mergePriceRow(existing, row)
			} else {
				rowsByKey[key] = row
			}
		}
	}

	if len(rowsByKey) == 0 {
		return nil, nil
	}

	keys := make([]priceKey, 0, len(rowsByKey))
	for key := range rowsByKey {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].provider == keys[j].provider {
			return keys[i].model < keys[j].model
		}
		return keys[i].provider < keys[j].provider
	})

	rows := make([]models.ModelPrice, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, rowsByKey[key])
	}
	return rows, nil
}

func mergePriceRow(base, incoming models.ModelPrice) models.ModelPrice {
	if base.ContextLimit == 0 && incoming.ContextLimit != 0 {
		base.ContextLimit = incoming.ContextLimit
	}
	if base.OutputLimit == 0 && incoming.OutputLimit != 0 {
		base.OutputLimit = incoming.OutputLimit
	}
	if base.InputPrice == nil {
		base.InputPrice = incoming.InputPrice
	}
	if base.OutputPrice == nil {
		base.OutputPrice = incoming.OutputPrice
	}
	return base
}
