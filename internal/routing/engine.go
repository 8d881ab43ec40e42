// Package routing executes generation requests against an ordered candidate
// list with automatic failover: candidates are attempted strictly
// sequentially, errors are classified for retryability, refusal-shaped
// responses count as failures, and every attempt is recorded.
package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/adapters"
	"github.com/lumenlabs/llm-gateway/internal/catalog"
	"github.com/lumenlabs/llm-gateway/internal/models"
	"github.com/lumenlabs/llm-gateway/internal/pricing"
	"github.com/lumenlabs/llm-gateway/internal/resolver"
	"github.com/lumenlabs/llm-gateway/internal/usage"
)

// CandidateSource resolves feature types into ordered candidate lists.
type CandidateSource interface {
	ResolveWithFallback(ctx context.Context, featureType string, req *resolver.Requirements) ([]resolver.Candidate, error)
}

// ConnectionSource supplies adapters and decrypted connection configs.
type ConnectionSource interface {
	AdapterFor(providerType string) (adapters.Adapter, bool)
	ConnectionConfig(provider *models.Provider) (adapters.Config, error)
}

// UsageSink records generation attempts.
type UsageSink interface {
	TrackUsage(ctx context.Context, attempt usage.Attempt) error
	TrackFailure(ctx context.Context, attempt usage.Attempt) error
}

// BudgetGate reports whether spending ceilings block generation.
type BudgetGate interface {
	Exhausted(ctx context.Context, now time.Time) (bool, error)
}

// Options carries one logical generation request. Either ProviderID pins a
// single provider or FeatureType routes through the resolver.
type Options struct {
	FeatureType string
	ProviderID  *uint64

	Prompt   string
	System   string
	Messages []adapters.Message
	Images   []adapters.Image

	MaxTokens   int
	Temperature *float64
	TopP        *float64

	// Requirements constrain resolver-produced candidates.
	Requirements *resolver.Requirements

	// CostOptimize re-orders candidates cheapest-first before attempting.
	CostOptimize bool

	APIKeyID *uint64
}

// Result is an annotated successful generation.
type Result struct {
	Text         string
	ProviderID   uint64
	Provider     string // Serving provider type.
	ModelID      string
	InputTokens  int
	OutputTokens int
	RequestID    string
	Latency      time.Duration

	// WasFailover reports whether the serving candidate followed at least
	// one failed attempt; FailoverFrom names the provider first attempted.
	WasFailover  bool
	FailoverFrom string
}

// StreamChunk re-exports the adapter chunk type for callers.
type StreamChunk = adapters.StreamChunk

// Engine is the routing/failover engine.
type Engine struct {
	db         *gorm.DB
	candidates CandidateSource
	conns      ConnectionSource
	tracker    UsageSink
	gate       BudgetGate
	smartOrder func([]resolver.Candidate, bool) []resolver.Candidate
	now        func() time.Time
}

// NewEngine constructs an Engine. gate and smartOrder may be nil.
func NewEngine(db *gorm.DB, candidates CandidateSource, conns ConnectionSource, tracker UsageSink, gate BudgetGate, smartOrder func([]resolver.Candidate, bool) []resolver.Candidate) *Engine {
	return &Engine{
		db:         db,
		candidates: candidates,
		conns:      conns,
		tracker:    tracker,
		gate:       gate,
		smartOrder: smartOrder,
		now:        time.Now,
	}
}

// Generate runs one generation request through the failover loop.
func (e *Engine) Generate(ctx context.Context, opts Options) (*Result, error) {
	return e.run(ctx, opts, false, nil)
}

// GenerateStream runs one streaming generation request. Refusal detection is
// skipped (refusals cannot be inspected before the first token) and usage is
// tracked when the stream completes.
func (e *Engine) GenerateStream(ctx context.Context, opts Options, onChunk func(StreamChunk)) (*Result, error) {
	return e.run(ctx, opts, false, onChunk)
}

// GenerateWithVision runs one generation request restricted to
// vision-capable models; models without the flag are skipped before any
// attempt is made.
func (e *Engine) GenerateWithVision(ctx context.Context, opts Options) (*Result, error) {
	return e.run(ctx, opts, true, nil)
}

func (e *Engine) run(ctx context.Context, opts Options, needsVision bool, onChunk func(StreamChunk)) (*Result, error) {
	if e.gate != nil {
		exhausted, errGate := e.gate.Exhausted(ctx, e.now())
		if errGate != nil {
			log.WithError(errGate).Warn("budget gate check failed")
		} else if exhausted {
			return nil, ErrBudgetExhausted
		}
	}

	list, errCandidates := e.buildCandidates(ctx, opts, needsVision)
	if errCandidates != nil {
		return nil, errCandidates
	}
	if opts.CostOptimize && e.smartOrder != nil {
		list = e.smartOrder(list, needsVision)
	}

	requestID := uuid.NewString()
	aggregate := &ExhaustedError{FeatureType: opts.FeatureType}
	failoverFrom := ""
	firstAttempted := ""

	for i := range list {
		candidate := &list[i]

		if needsVision && !candidate.Model.SupportsVision {
			continue
		}

		cfg, ready := e.readiness(candidate)
		if !ready {
			// Not-ready candidates are skipped without a tracked failure.
			continue
		}

		adapter, ok := e.conns.AdapterFor(candidate.Provider.Type)
		if !ok {
			continue
		}

		if firstAttempted == "" {
			firstAttempted = candidate.Provider.Type
		}

		startedAt := e.now()
		result, errGenerate := e.invoke(ctx, adapter, cfg, candidate, opts, onChunk)
		elapsed := e.now().Sub(startedAt)

		attempt := usage.Attempt{
			ProviderID:   candidate.Provider.ID,
			Provider:     candidate.Provider.Type,
			ModelID:      candidate.Model.ModelID,
			FeatureType:  opts.FeatureType,
			RequestID:    requestID,
			APIKeyID:     opts.APIKeyID,
			Latency:      elapsed,
			FailoverFrom: failoverFrom,
			RequestedAt:  startedAt.UTC(),
			Rates:        pricing.LookupRates(ctx, e.db, candidate.Provider.Type, candidate.Model.ModelID),
		}

		if errGenerate == nil && onChunk == nil && IsRefusal(result.Text) {
			errGenerate = fmt.Errorf("model refused to answer")
		}

		if errGenerate == nil {
			attempt.InputTokens = result.InputTokens
			attempt.OutputTokens = result.OutputTokens
			if errTrack := e.tracker.TrackUsage(ctx, attempt); errTrack != nil {
				// Telemetry must never alter the generation outcome.
				log.WithError(errTrack).Warn("usage tracking failed")
			}
			return &Result{
				Text:         result.Text,
				ProviderID:   candidate.Provider.ID,
				Provider:     candidate.Provider.Type,
				ModelID:      candidate.Model.ModelID,
				InputTokens:  result.InputTokens,
				OutputTokens: result.OutputTokens,
				RequestID:    requestID,
				Latency:      elapsed,
				WasFailover:  failoverFrom != "",
				FailoverFrom: failoverFrom,
			}, nil
		}

		attempt.ErrorMessage = errGenerate.Error()
		if errTrack := e.tracker.TrackFailure(ctx, attempt); errTrack != nil {
			log.WithError(errTrack).Warn("failure tracking failed")
		}
		aggregate.Attempts = append(aggregate.Attempts, AttemptFailure{
			Provider:  candidate.Provider.Type,
			Message:   errGenerate.Error(),
			Timestamp: startedAt.UTC(),
			Duration:  elapsed,
		})

		if !IsRetryable(errGenerate.Error()) {
			// A caller-correctable failure must not be masked by a
			// misleading fallback success.
			log.Warnf("fatal error from %s, aborting failover chain: %v", candidate.Provider.Type, errGenerate)
			return nil, aggregate
		}

		log.Warnf("retryable error from %s, trying next candidate: %v", candidate.Provider.Type, errGenerate)
		failoverFrom = firstAttempted
	}

	return nil, aggregate
}

func (e *Engine) invoke(ctx context.Context, adapter adapters.Adapter, cfg adapters.Config, candidate *resolver.Candidate, opts Options, onChunk func(StreamChunk)) (*adapters.Result, error) {
	genOpts := adapters.GenerateOptions{
		ModelID:     candidate.Model.ModelID,
		System:      opts.System,
		Prompt:      opts.Prompt,
		Messages:    opts.Messages,
		Images:      opts.Images,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}
	applyModelDefaults(&genOpts, &candidate.Model)

	if onChunk != nil {
		return adapter.Stream(ctx, cfg, genOpts, onChunk)
	}
	return adapter.Generate(ctx, cfg, genOpts)
}

// buildCandidates produces the ordered candidate list: the pinned provider's
// default model, or the resolver's output.
func (e *Engine) buildCandidates(ctx context.Context, opts Options, needsVision bool) ([]resolver.Candidate, error) {
	if opts.ProviderID != nil {
		return e.pinnedCandidates(ctx, *opts.ProviderID)
	}

	req := opts.Requirements
	if needsVision {
		if req == nil {
			req = &resolver.Requirements{}
		}
		req.NeedsVision = true
	}
	return e.candidates.ResolveWithFallback(ctx, opts.FeatureType, req)
}

// pinnedCandidates builds a single-candidate list from an explicit provider:
// its default-marked model, falling back to its first model.
func (e *Engine) pinnedCandidates(ctx context.Context, providerID uint64) ([]resolver.Candidate, error) {
	var provider models.Provider
	errFind := e.db.WithContext(ctx).Preload("Models", func(db *gorm.DB) *gorm.DB {
		return db.Order("id ASC")
	}).Where("id = ?", providerID).Take(&provider).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("routing: load pinned provider: %w", errFind)
	}
	if len(provider.Models) == 0 {
		return nil, nil
	}

	selected := provider.Models[0]
	for _, model := range provider.Models {
		if model.IsDefault {
			selected = model
			break
		}
	}

	return []resolver.Candidate{{
		Provider:     provider,
		Model:        selected,
		FallbackMode: models.FallbackNextPriority,
	}}, nil
}

// readiness verifies a candidate can be attempted: provider enabled and
// credential present and decryptable. The zero-credential local provider is
// always ready.
func (e *Engine) readiness(candidate *resolver.Candidate) (adapters.Config, bool) {
	if !candidate.Provider.IsEnabled {
		return adapters.Config{}, false
	}

	cfg, errCfg := e.conns.ConnectionConfig(&candidate.Provider)
	if errCfg != nil {
		log.WithError(errCfg).Warnf("provider %s not ready, skipping", candidate.Provider.Type)
		return adapters.Config{}, false
	}
	if cfg.APIKey == "" && candidate.Provider.Type != catalog.ProviderOllama {
		return adapters.Config{}, false
	}
	return cfg, true
}

// applyModelDefaults fills unset generation parameters from the model's
// stored default parameter overrides.
func applyModelDefaults(genOpts *adapters.GenerateOptions, model *models.Model) {
	if len(model.DefaultParams) == 0 {
		return
	}
	var defaults map[string]any
	if errUnmarshal := json.Unmarshal(model.DefaultParams, &defaults); errUnmarshal != nil {
		return
	}
	if genOpts.MaxTokens <= 0 {
		if value, ok := numberFrom(defaults["max_tokens"]); ok {
			genOpts.MaxTokens = int(value)
		}
	}
	if genOpts.Temperature == nil {
		if value, ok := numberFrom(defaults["temperature"]); ok {
			genOpts.Temperature = &value
		}
	}
	if genOpts.TopP == nil {
		if value, ok := numberFrom(defaults["top_p"]); ok {
			genOpts.TopP = &value
		}
	}
}

func numberFrom(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case json.Number:
		parsed, errParse := v.Float64()
		return parsed, errParse == nil
	}
	return 0, false
}
