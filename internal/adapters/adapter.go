// Package adapters defines the vendor adapter contract the routing engine
// depends on, plus thin HTTP shims for the supported vendors. Adapters never
// retry internally; retry and fallback policy is owned by the routing engine.
package adapters

import (
	"context"
	"strings"
	"time"

	"github.com/lumenlabs/llm-gateway/internal/catalog"
)

// Probe timeouts for connectivity checks and model listing.
const (
	validateTimeout   = 10 * time.Second
	listModelsTimeout = 15 * time.Second
)

// Capabilities describes what an adapter supports.
type Capabilities struct {
	Vision    bool // Image inputs.
	Streaming bool // Incremental token streaming.
	Tools     bool // Tool/function calling.
	JSONMode  bool // Structured JSON output mode.
}

// Config carries the per-provider connection settings for one call.
type Config struct {
	APIKey     string // Decrypted credential; may be empty for local providers.
	BaseURL    string // Base URL override; empty uses the adapter default.
	AuthScheme string // bearer, header or x-api-key.
	AuthHeader string // Custom header name when AuthScheme is header.
}

// Message is one chat turn.
type Message struct {
	Role    string // system, user or assistant.
	Content string
}

// Image is one vision input.
type Image struct {
	MimeType string // e.g. image/jpeg.
	Data     string // Base64-encoded bytes.
}

// GenerateOptions carries a uniform generation request.
type GenerateOptions struct {
	ModelID     string
	System      string
	Prompt      string
	Messages    []Message
	Images      []Image
	MaxTokens   int
	Temperature *float64
	TopP        *float64
}

// Result is a completed generation.
type Result struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// StreamChunk is one incremental piece of a streamed generation.
type StreamChunk struct {
	Text string
	Done bool
}

// ValidationResult reports a connectivity check outcome.
type ValidationResult struct {
	IsValid bool
	Error   string
}

// ModelInfo describes one model advertised by a vendor.
type ModelInfo struct {
	ID   string
	Name string
}

// Adapter is the per-vendor seam. One implementation exists per provider
// type, selected by a lookup table.
type Adapter interface {
	// Type returns the provider type this adapter serves.
	Type() string
	// Capabilities reports adapter-level feature support.
	Capabilities() Capabilities
	// DefaultBaseURL returns the vendor default API base URL.
	DefaultBaseURL() string
	// Generate performs one generation call with zero internal retries.
	Generate(ctx context.Context, cfg Config, opts GenerateOptions) (*Result, error)
	// Stream performs one streaming generation call, invoking onChunk for
	// each piece and returning the final result.
	Stream(ctx context.Context, cfg Config, opts GenerateOptions, onChunk func(StreamChunk)) (*Result, error)
	// Validate probes connectivity with the given config.
	Validate(ctx context.Context, cfg Config) ValidationResult
	// ListModels fetches the live vendor model list.
	ListModels(ctx context.Context, cfg Config) ([]ModelInfo, error)
	// NormalizeParams reshapes generic parameters into vendor form.
	NormalizeParams(params map[string]any) map[string]any
}

// Source resolves adapters by provider type.
type Source interface {
	AdapterFor(providerType string) (Adapter, bool)
}

// Registry is the default adapter lookup table.
type Registry struct {
	byType map[string]Adapter
}

// NewRegistry builds the lookup table with every supported provider type.
// OpenAI-compatible vendors share one shim parameterized by type.
func NewRegistry() *Registry {
	byType := make(map[string]Adapter)

	for _, providerType := range []string{
		catalog.ProviderOpenAI,
		catalog.ProviderOllama,
		catalog.ProviderDeepSeek,
		catalog.ProviderMistral,
		catalog.ProviderCohere,
		catalog.ProviderXAI,
		catalog.ProviderZhipu,
		catalog.ProviderMoonshot,
		catalog.ProviderOpenRouter,
		catalog.ProviderCustom,
	} {
		byType[providerType] = newOpenAICompat(providerType)
	}
	byType[catalog.ProviderAnthropic] = newAnthropic()
	byType[catalog.ProviderGoogle] = newGemini()

	return &Registry{byType: byType}
}

// AdapterFor returns the adapter for a provider type.
func (r *Registry) AdapterFor(providerType string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	adapter, ok := r.byType[strings.ToLower(strings.TrimSpace(providerType))]
	return adapter, ok
}
