// Package resolver evaluates feature mapping rules against the enabled
// provider/model configuration to produce a priority-ordered, deduplicated
// candidate list.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/catalog"
	"github.com/lumenlabs/llm-gateway/internal/models"
)

// Requirements further constrain tag-matched candidates. All set fields are
// ANDed with the rule's tag filters.
type Requirements struct {
	NeedsVision      bool
	NeedsTools       bool
	CostTier         string // Exact provider cost tier match when set.
	QualityTier      string // Exact provider quality tier match when set.
	MinContextWindow int    // Minimum model context window when positive.
}

// Candidate is a resolved (provider, model) pairing carrying the originating
// rule's priority and fallback mode.
type Candidate struct {
	Provider     models.Provider
	Model        models.Model
	Priority     int
	FallbackMode string
}

// Resolver resolves feature types into ordered candidate lists.
type Resolver struct {
	db *gorm.DB
}

// New constructs a Resolver.
func New(db *gorm.DB) *Resolver {
	return &Resolver{db: db}
}

// Resolve returns the best candidate for a feature, or nil when none exists.
func (r *Resolver) Resolve(ctx context.Context, featureType string, req *Requirements) (*Candidate, error) {
	list, err := r.ResolveWithFallback(ctx, featureType, req)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return &list[0], nil
}

// ResolveWithFallback evaluates every mapping rule for the feature in
// priority order and returns the ordered, deduplicated candidate list.
// Unknown feature types and empty rule sets yield an empty list, not an
// error.
func (r *Resolver) ResolveWithFallback(ctx context.Context, featureType string, req *Requirements) ([]Candidate, error) {
	var rules []models.FeatureMapping
	errFind := r.db.WithContext(ctx).
		Preload("ModelRef").
		Where("feature_type = ?", strings.TrimSpace(featureType)).
		Order("priority DESC, id ASC").
		Find(&rules).Error
	if errFind != nil {
		return nil, fmt.Errorf("resolver: load mappings: %w", errFind)
	}

	accumulated := make([]Candidate, 0)
	for i := range rules {
		rule := &rules[i]

		switch rule.MatchMode {
		case models.MatchModeSpecificModel:
			candidate, errPinned := r.resolvePinned(ctx, rule)
			if errPinned != nil {
				return nil, errPinned
			}
			if candidate != nil {
				accumulated = append(accumulated, *candidate)
			}
		default:
			matched, errMatch := r.matchByTags(ctx, rule, req)
			if errMatch != nil {
				return nil, errMatch
			}
			accumulated = append(accumulated, matched...)
		}

		// A fail rule halts evaluation of lower-priority rules even when it
		// produced zero candidates.
		if rule.FallbackMode == models.FallbackFail {
			break
		}
	}

	return dedupe(accumulated), nil
}

// resolvePinned resolves a specific_model rule. The pinned model is included
// only when its owning provider is enabled.
func (r *Resolver) resolvePinned(ctx context.Context, rule *models.FeatureMapping) (*Candidate, error) {
	if rule.ModelRefID == nil {
		return nil, nil
	}

	model := rule.ModelRef
	if model == nil {
		var fresh models.Model
		errFind := r.db.WithContext(ctx).Where("id = ?", *rule.ModelRefID).Take(&fresh).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return nil, nil
			}
			return nil, fmt.Errorf("resolver: load pinned model: %w", errFind)
		}
		model = &fresh
	}

	var provider models.Provider
	errProvider := r.db.WithContext(ctx).Where("id = ?", model.ProviderID).Take(&provider).Error
	if errProvider != nil {
		if errors.Is(errProvider, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolver: load pinned provider: %w", errProvider)
	}
	if !provider.IsEnabled {
		return nil, nil
	}

	return &Candidate{
		Provider:     provider,
		Model:        *model,
		Priority:     rule.Priority,
		FallbackMode: rule.FallbackMode,
	}, nil
}

// matchByTags scans every model belonging to an enabled provider and keeps
// those satisfying the rule's tag filters and the caller requirements.
func (r *Resolver) matchByTags(ctx context.Context, rule *models.FeatureMapping, req *Requirements) ([]Candidate, error) {
	var providers []models.Provider
	errFind := r.db.WithContext(ctx).
		Preload("Models").
		Where("is_enabled = ?", true).
		Order("id ASC").
		Find(&providers).Error
	if errFind != nil {
		return nil, fmt.Errorf("resolver: load providers: %w", errFind)
	}

	required := decodeTags(rule.RequiredTags)
	excluded := decodeTags(rule.ExcludedTags)

	matched := make([]Candidate, 0)
	for i := range providers {
		provider := &providers[i]
		for j := range provider.Models {
			model := &provider.Models[j]
			if !tagsSatisfied(provider, model, required, excluded) {
				continue
			}
			if !requirementsSatisfied(provider, model, req) {
				continue
			}
			matched = append(matched, Candidate{
				Provider:     *provider,
				Model:        *model,
				Priority:     rule.Priority,
				FallbackMode: rule.FallbackMode,
			})
		}
	}

	sortCandidates(matched)
	return matched, nil
}

// tagsSatisfied checks the rule's tag filters: every required tag must hold
// and no excluded tag may hold.
func tagsSatisfied(provider *models.Provider, model *models.Model, required, excluded []string) bool {
	for _, tag := range required {
		if !tagMatches(provider, model, tag) {
			return false
		}
	}
	for _, tag := range excluded {
		if tagMatches(provider, model, tag) {
			return false
		}
	}
	return true
}

// tagMatches maps one tag onto capability flags, tier equality, or the
// provider's free-form capability set.
func tagMatches(provider *models.Provider, model *models.Model, tag string) bool {
	switch tag {
	case "vision":
		return model.SupportsVision
	case "tools":
		return model.SupportsTools
	case catalog.QualityTierFast, catalog.QualityTierBalanced, catalog.QualityTierPremium:
		return provider.QualityTier == tag
	case "cheap", catalog.CostTierLow:
		// Free providers fold into the low cost tier.
		return provider.CostTier == catalog.CostTierLow || provider.CostTier == catalog.CostTierFree
	case catalog.CostTierMedium:
		return provider.CostTier == catalog.CostTierMedium
	case "expensive", catalog.CostTierHigh:
		return provider.CostTier == catalog.CostTierHigh
	}

	for _, capability := range decodeTags(provider.Capabilities) {
		if capability == tag {
			return true
		}
	}
	return false
}

// requirementsSatisfied applies the caller's scalar requirements.
func requirementsSatisfied(provider *models.Provider, model *models.Model, req *Requirements) bool {
	if req == nil {
		return true
	}
	if req.NeedsVision && !model.SupportsVision {
		return false
	}
	if req.NeedsTools && !model.SupportsTools {
		return false
	}
	if tier := strings.ToLower(strings.TrimSpace(req.CostTier)); tier != "" && provider.CostTier != tier {
		return false
	}
	if tier := strings.ToLower(strings.TrimSpace(req.QualityTier)); tier != "" && provider.QualityTier != tier {
		return false
	}
	if req.MinContextWindow > 0 && contextWindow(model) < req.MinContextWindow {
		return false
	}
	return true
}

// sortCandidates orders one rule's matches: free-marked models last, then
// larger context window first. The sort is stable so equal candidates keep
// scan order.
func sortCandidates(list []Candidate) {
	sort.SliceStable(list, func(i, j int) bool {
		freeI := isFreeModel(&list[i].Model)
		freeJ := isFreeModel(&list[j].Model)
		if freeI != freeJ {
			return !freeI
		}
		return contextWindow(&list[i].Model) > contextWindow(&list[j].Model)
	})
}

// isFreeModel reports whether the model identifier carries a free marker.
func isFreeModel(model *models.Model) bool {
	return strings.Contains(strings.ToLower(model.ModelID), "free")
}

// contextWindow treats a missing context window as zero.
func contextWindow(model *models.Model) int {
	if model.ContextWindow == nil {
		return 0
	}
	return *model.ContextWindow
}

// dedupe keeps the first occurrence of each (provider, model) pair,
// preserving priority order.
func dedupe(list []Candidate) []Candidate {
	type key struct {
		providerID uint64
		modelID    uint64
	}
	seen := make(map[key]struct{}, len(list))
	out := make([]Candidate, 0, len(list))
	for _, candidate := range list {
		k := key{providerID: candidate.Provider.ID, modelID: candidate.Model.ID}
		if _, exists := seen[k]; exists {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

func decodeTags(value []byte) []string {
	if len(value) == 0 {
		return nil
	}
	var raw []string
	if errUnmarshal := json.Unmarshal(value, &raw); errUnmarshal != nil {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, tag := range raw {
		if trimmed := strings.ToLower(strings.TrimSpace(tag)); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
