package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lumenlabs/llm-gateway/internal/adapters"
	"github.com/lumenlabs/llm-gateway/internal/models"
	"github.com/lumenlabs/llm-gateway/internal/resolver"
	"github.com/lumenlabs/llm-gateway/internal/usage"
)

type stubCandidates struct {
	list []resolver.Candidate
}

func (s stubCandidates) ResolveWithFallback(_ context.Context, _ string, _ *resolver.Requirements) ([]resolver.Candidate, error) {
	return s.list, nil
}

// scriptedAdapter returns canned outcomes per provider type.
type scriptedAdapter struct {
	providerType string
	text         string
	err          error
}

func (a *scriptedAdapter) Type() string                       { return a.providerType }
func (a *scriptedAdapter) Capabilities() adapters.Capabilities {
	return adapters.Capabilities{Streaming: true}
}
func (a *scriptedAdapter) DefaultBaseURL() string { return "" }

func (a *scriptedAdapter) Generate(_ context.Context, _ adapters.Config, _ adapters.GenerateOptions) (*adapters.Result, error) {
	if a.err != nil {
		return nil, a.err
	}
	return &adapters.Result{Text: a.text, InputTokens: 10, OutputTokens: 20}, nil
}

func (a *scriptedAdapter) Stream(ctx context.Context, cfg adapters.Config, opts adapters.GenerateOptions, onChunk func(adapters.StreamChunk)) (*adapters.Result, error) {
	result, errGenerate := a.Generate(ctx, cfg, opts)
	if errGenerate != nil {
		return nil, errGenerate
	}
	onChunk(adapters.StreamChunk{Text: result.Text})
	onChunk(adapters.StreamChunk{Done: true})
	return result, nil
}

func (a *scriptedAdapter) Validate(_ context.Context, _ adapters.Config) adapters.ValidationResult {
	return adapters.ValidationResult{IsValid: true}
}

func (a *scriptedAdapter) ListModels(_ context.Context, _ adapters.Config) ([]adapters.ModelInfo, error) {
	return nil, nil
}

func (a *scriptedAdapter) NormalizeParams(params map[string]any) map[string]any { return params }

type stubConns struct {
	adapters map[string]adapters.Adapter
}

func (s stubConns) AdapterFor(providerType string) (adapters.Adapter, bool) {
	adapter, ok := s.adapters[providerType]
	return adapter, ok
}

func (s stubConns) ConnectionConfig(provider *models.Provider) (adapters.Config, error) {
	return adapters.Config{APIKey: "test-key"}, nil
}

type recordingSink struct {
	successes []usage.Attempt
	failures  []usage.Attempt
}

func (s *recordingSink) TrackUsage(_ context.Context, attempt usage.Attempt) error {
	s.successes = append(s.successes, attempt)
	return nil
}

func (s *recordingSink) TrackFailure(_ context.Context, attempt usage.Attempt) error {
	s.failures = append(s.failures, attempt)
	return nil
}

type stubGate struct {
	exhausted bool
}

func (g stubGate) Exhausted(_ context.Context, _ time.Time) (bool, error) {
	return g.exhausted, nil
}

func candidate(providerID uint64, providerType string, vision bool) resolver.Candidate {
	return resolver.Candidate{
		Provider: models.Provider{ID: providerID, Type: providerType, IsEnabled: true},
		Model:    models.Model{ID: providerID * 10, ProviderID: providerID, ModelID: providerType + "-model", SupportsVision: vision},
	}
}

func newTestEngine(candidates []resolver.Candidate, conns stubConns, sink *recordingSink, gate BudgetGate) *Engine {
	return NewEngine(nil, stubCandidates{list: candidates}, conns, sink, gate, nil)
}

func TestGenerateFailoverOnRetryableError(t *testing.T) {
	conns := stubConns{adapters: map[string]adapters.Adapter{
		"anthropic": &scriptedAdapter{providerType: "anthropic", err: fmt.Errorf("503 service unavailable")},
		"openai":    &scriptedAdapter{providerType: "openai", text: "hello from fallback"},
	}}
	sink := &recordingSink{}
	engine := newTestEngine([]resolver.Candidate{
		candidate(1, "anthropic", false),
		candidate(2, "openai", false),
	}, conns, sink, nil)

	result, errRun := engine.Generate(context.Background(), Options{FeatureType: "chat", Prompt: "hi"})
	if errRun != nil {
		t.Fatalf("generate: %v", errRun)
	}
	if result.Provider != "openai" {
		t.Fatalf("expected openai to serve, got %s", result.Provider)
	}
	if !result.WasFailover || result.FailoverFrom != "anthropic" {
		t.Fatalf("expected failover provenance from anthropic, got %+v", result)
	}
	if len(sink.failures) != 1 || sink.failures[0].Provider != "anthropic" {
		t.Fatalf("expected one tracked failure for anthropic, got %+v", sink.failures)
	}
	if len(sink.successes) != 1 || sink.successes[0].FailoverFrom != "anthropic" {
		t.Fatalf("expected success row carrying failover provenance, got %+v", sink.successes)
	}
}

func TestGenerateFatalErrorAbortsChain(t *testing.T) {
	conns := stubConns{adapters: map[string]adapters.Adapter{
		"anthropic": &scriptedAdapter{providerType: "anthropic", err: fmt.Errorf("401 unauthorized")},
		"openai":    &scriptedAdapter{providerType: "openai", text: "never reached"},
	}}
	sink := &recordingSink{}
	engine := newTestEngine([]resolver.Candidate{
		candidate(1, "anthropic", false),
		candidate(2, "openai", false),
	}, conns, sink, nil)

	_, errRun := engine.Generate(context.Background(), Options{FeatureType: "chat", Prompt: "hi"})
	var exhausted *ExhaustedError
	if !errors.As(errRun, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", errRun)
	}
	if len(exhausted.Attempts) != 1 {
		t.Fatalf("expected chain to stop after the fatal attempt, got %d attempts", len(exhausted.Attempts))
	}
	if len(sink.successes) != 0 {
		t.Fatalf("no success should be tracked, got %+v", sink.successes)
	}
}

func TestGenerateRefusalAdvancesToNextCandidate(t *testing.T) {
	conns := stubConns{adapters: map[string]adapters.Adapter{
		"anthropic": &scriptedAdapter{providerType: "anthropic", text: "I'm sorry, I can't help with that."},
		"openai":    &scriptedAdapter{providerType: "openai", text: "Here is a real answer."},
	}}
	sink := &recordingSink{}
	engine := newTestEngine([]resolver.Candidate{
		candidate(1, "anthropic", false),
		candidate(2, "openai", false),
	}, conns, sink, nil)

	result, errRun := engine.Generate(context.Background(), Options{FeatureType: "chat", Prompt: "hi"})
	if errRun != nil {
		t.Fatalf("generate: %v", errRun)
	}
	if result.Provider != "openai" {
		t.Fatalf("expected fallback after refusal, got %s", result.Provider)
	}
	if len(sink.failures) != 1 {
		t.Fatalf("refusal should be tracked as a failure, got %+v", sink.failures)
	}
}

func TestGenerateBudgetGate(t *testing.T) {
	sink := &recordingSink{}
	engine := newTestEngine([]resolver.Candidate{candidate(1, "anthropic", false)},
		stubConns{adapters: map[string]adapters.Adapter{}}, sink, stubGate{exhausted: true})

	_, errRun := engine.Generate(context.Background(), Options{FeatureType: "chat", Prompt: "hi"})
	if !errors.Is(errRun, ErrBudgetExhausted) {
		t.Fatalf("expected ErrBudgetExhausted, got %v", errRun)
	}
}

func TestGenerateWithVisionSkipsNonVisionModels(t *testing.T) {
	conns := stubConns{adapters: map[string]adapters.Adapter{
		"openai": &scriptedAdapter{providerType: "openai", text: "should not serve"},
		"google": &scriptedAdapter{providerType: "google", text: "vision answer"},
	}}
	sink := &recordingSink{}
	engine := newTestEngine([]resolver.Candidate{
		candidate(1, "openai", false),
		candidate(2, "google", true),
	}, conns, sink, nil)

	result, errRun := engine.GenerateWithVision(context.Background(), Options{FeatureType: "vision", Prompt: "describe"})
	if errRun != nil {
		t.Fatalf("generate: %v", errRun)
	}
	if result.Provider != "google" {
		t.Fatalf("expected vision-capable candidate, got %s", result.Provider)
	}
	if len(sink.failures) != 0 {
		t.Fatalf("skipped candidates must not be tracked, got %+v", sink.failures)
	}
	if result.WasFailover {
		t.Fatalf("untracked skips are not failovers")
	}
}

func TestGenerateDisabledProviderSkippedUntracked(t *testing.T) {
	disabled := candidate(1, "anthropic", false)
	disabled.Provider.IsEnabled = false
	conns := stubConns{adapters: map[string]adapters.Adapter{
		"anthropic": &scriptedAdapter{providerType: "anthropic", text: "never"},
		"openai":    &scriptedAdapter{providerType: "openai", text: "served"},
	}}
	sink := &recordingSink{}
	engine := newTestEngine([]resolver.Candidate{disabled, candidate(2, "openai", false)}, conns, sink, nil)

	result, errRun := engine.Generate(context.Background(), Options{FeatureType: "chat", Prompt: "hi"})
	if errRun != nil {
		t.Fatalf("generate: %v", errRun)
	}
	if result.Provider != "openai" || result.WasFailover {
		t.Fatalf("disabled skip must not count as failover, got %+v", result)
	}
	if len(sink.failures) != 0 {
		t.Fatalf("disabled skip must not be tracked, got %+v", sink.failures)
	}
}

func TestGenerateNoCandidates(t *testing.T) {
	sink := &recordingSink{}
	engine := newTestEngine(nil, stubConns{adapters: map[string]adapters.Adapter{}}, sink, nil)

	_, errRun := engine.Generate(context.Background(), Options{FeatureType: "chat", Prompt: "hi"})
	var exhausted *ExhaustedError
	if !errors.As(errRun, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", errRun)
	}
	if len(exhausted.Attempts) != 0 {
		t.Fatalf("expected zero attempts, got %d", len(exhausted.Attempts))
	}
	if exhausted.UserMessage() == "" {
		t.Fatalf("user message must not be empty")
	}
}

func TestGenerateStreamTracksOnCompletion(t *testing.T) {
	conns := stubConns{adapters: map[string]adapters.Adapter{
		"anthropic": &scriptedAdapter{providerType: "anthropic", text: "streamed text"},
	}}
	sink := &recordingSink{}
	engine := newTestEngine([]resolver.Candidate{candidate(1, "anthropic", false)}, conns, sink, nil)

	var chunks []string
	result, errRun := engine.GenerateStream(context.Background(), Options{FeatureType: "chat", Prompt: "hi"}, func(chunk StreamChunk) {
		if chunk.Text != "" {
			chunks = append(chunks, chunk.Text)
		}
	})
	if errRun != nil {
		t.Fatalf("stream: %v", errRun)
	}
	if len(chunks) != 1 || chunks[0] != "streamed text" {
		t.Fatalf("unexpected chunks %v", chunks)
	}
	if result.OutputTokens != 20 {
		t.Fatalf("expected token counts from final result, got %+v", result)
	}
	if len(sink.successes) != 1 {
		t.Fatalf("stream completion must be tracked once, got %+v", sink.successes)
	}
}

func TestGenerateStreamSkipsRefusalDetection(t *testing.T) {
	conns := stubConns{adapters: map[string]adapters.Adapter{
		"anthropic": &scriptedAdapter{providerType: "anthropic", text: "I'm sorry, I can't help with that."},
	}}
	sink := &recordingSink{}
	engine := newTestEngine([]resolver.Candidate{candidate(1, "anthropic", false)}, conns, sink, nil)

	result, errRun := engine.GenerateStream(context.Background(), Options{FeatureType: "chat", Prompt: "hi"}, func(StreamChunk) {})
	if errRun != nil {
		t.Fatalf("stream: %v", errRun)
	}
	if result.Provider != "anthropic" {
		t.Fatalf("streamed refusal must not trigger fallback, got %+v", result)
	}
	if len(sink.failures) != 0 {
		t.Fatalf("no failure expected, got %+v", sink.failures)
	}
}
