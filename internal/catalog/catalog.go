// Package catalog holds static provider/model metadata: the known provider
// types, tier vocabularies, default base URLs, and per-type default model
// templates seeded at provider registration.
package catalog

import "strings"

// Known provider types. Type selects the vendor adapter and is immutable
// provider identity.
const (
	ProviderAnthropic  = "anthropic"
	ProviderOpenAI     = "openai"
	ProviderGoogle     = "google"
	ProviderOllama     = "ollama"
	ProviderDeepSeek   = "deepseek"
	ProviderMistral    = "mistral"
	ProviderCohere     = "cohere"
	ProviderXAI        = "xai"
	ProviderZhipu      = "zhipu"
	ProviderMoonshot   = "moonshot"
	ProviderOpenRouter = "openrouter"
	ProviderCustom     = "custom"
)

// Cost tiers.
const (
	CostTierFree   = "free"
	CostTierLow    = "low"
	CostTierMedium = "medium"
	CostTierHigh   = "high"
)

// Quality tiers.
const (
	QualityTierFast     = "fast"
	QualityTierBalanced = "balanced"
	QualityTierPremium  = "premium"
)

// ProviderTypes lists every known provider type.
var ProviderTypes = []string{
	ProviderAnthropic,
	ProviderOpenAI,
	ProviderGoogle,
	ProviderOllama,
	ProviderDeepSeek,
	ProviderMistral,
	ProviderCohere,
	ProviderXAI,
	ProviderZhipu,
	ProviderMoonshot,
	ProviderOpenRouter,
	ProviderCustom,
}

// IsKnownType reports whether the value names a known provider type.
func IsKnownType(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	for _, t := range ProviderTypes {
		if t == value {
			return true
		}
	}
	return false
}

// IsValidCostTier reports whether the value is a cost tier.
func IsValidCostTier(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case CostTierFree, CostTierLow, CostTierMedium, CostTierHigh:
		return true
	}
	return false
}

// IsValidQualityTier reports whether the value is a quality tier.
func IsValidQualityTier(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case QualityTierFast, QualityTierBalanced, QualityTierPremium:
		return true
	}
	return false
}

var defaultBaseURLs = map[string]string{
	ProviderAnthropic:  "https://api.anthropic.com",
	ProviderOpenAI:     "https://api.openai.com/v1",
	ProviderGoogle:     "https://generativelanguage.googleapis.com/v1beta",
	ProviderOllama:     "http://localhost:11434/v1",
	ProviderDeepSeek:   "https://api.deepseek.com/v1",
	ProviderMistral:    "https://api.mistral.ai/v1",
	ProviderCohere:     "https://api.cohere.ai/compatibility/v1",
	ProviderXAI:        "https://api.x.ai/v1",
	ProviderZhipu:      "https://open.bigmodel.cn/api/paas/v4",
	ProviderMoonshot:   "https://api.moonshot.ai/v1",
	ProviderOpenRouter: "https://openrouter.ai/api/v1",
}

// DefaultBaseURL returns the default API base URL for a provider type.
// Unknown and custom types return an empty string.
func DefaultBaseURL(providerType string) string {
	return defaultBaseURLs[strings.ToLower(strings.TrimSpace(providerType))]
}

// ModelTemplate describes one default model seeded at provider registration.
type ModelTemplate struct {
	ModelID        string // Vendor-specific model identifier.
	Name           string // Display name.
	ContextWindow  int    // Max context length; 0 when unknown.
	SupportsVision bool   // Vision capability flag.
	SupportsTools  bool   // Tool-calling capability flag.
	IsDefault      bool   // Marks the provider default.
}

var defaultModels = map[string][]ModelTemplate{
	ProviderAnthropic: {
		{ModelID: "claude-sonnet-4-5", Name: "Claude Sonnet 4.5", ContextWindow: 200000, SupportsVision: true, SupportsTools: true, IsDefault: true},
		{ModelID: "claude-haiku-4-5", Name: "Claude Haiku 4.5", ContextWindow: 200000, SupportsVision: true, SupportsTools: true},
		{ModelID: "claude-opus-4-1", Name: "Claude Opus 4.1", ContextWindow: 200000, SupportsVision: true, SupportsTools: true},
	},
	ProviderOpenAI: {
		{ModelID: "gpt-4o", Name: "GPT-4o", ContextWindow: 128000, SupportsVision: true, SupportsTools: true, IsDefault: true},
		{ModelID: "gpt-4o-mini", Name: "GPT-4o mini", ContextWindow: 128000, SupportsVision: true, SupportsTools: true},
		{ModelID: "gpt-4.1", Name: "GPT-4.1", ContextWindow: 1047576, SupportsVision: true, SupportsTools: true},
	},
	ProviderGoogle: {
		{ModelID: "gemini-2.5-flash", Name: "Gemini 2.5 Flash", ContextWindow: 1048576, SupportsVision: true, SupportsTools: true, IsDefault: true},
		{ModelID: "gemini-2.5-pro", Name: "Gemini 2.5 Pro", ContextWindow: 1048576, SupportsVision: true, SupportsTools: true},
	},
	ProviderOllama: {
		{ModelID: "llama3.1", Name: "Llama 3.1", ContextWindow: 131072, SupportsTools: true, IsDefault: true},
		{ModelID: "llava", Name: "LLaVA", ContextWindow: 32768, SupportsVision: true},
	},
	ProviderDeepSeek: {
		{ModelID: "deepseek-chat", Name: "DeepSeek Chat", ContextWindow: 65536, SupportsTools: true, IsDefault: true},
		{ModelID: "deepseek-reasoner", Name: "DeepSeek Reasoner", ContextWindow: 65536},
	},
	ProviderMistral: {
		{ModelID: "mistral-large-latest", Name: "Mistral Large", ContextWindow: 131072, SupportsTools: true, IsDefault: true},
		{ModelID: "pixtral-large-latest", Name: "Pixtral Large", ContextWindow: 131072, SupportsVision: true, SupportsTools: true},
		{ModelID: "mistral-small-latest", Name: "Mistral Small", ContextWindow: 32768, SupportsTools: true},
	},
	ProviderCohere: {
		{ModelID: "command-r-plus", Name: "Command R+", ContextWindow: 128000, SupportsTools: true, IsDefault: true},
		{ModelID: "command-r", Name: "Command R", ContextWindow: 128000, SupportsTools: true},
	},
	ProviderXAI: {
		{ModelID: "grok-3", Name: "Grok 3", ContextWindow: 131072, SupportsTools: true, IsDefault: true},
		{ModelID: "grok-2-vision", Name: "Grok 2 Vision", ContextWindow: 32768, SupportsVision: true},
	},
	ProviderZhipu: {
		{ModelID: "glm-4-plus", Name: "GLM-4 Plus", ContextWindow: 128000, SupportsTools: true, IsDefault: true},
		{ModelID: "glm-4v-plus", Name: "GLM-4V Plus", ContextWindow: 8192, SupportsVision: true},
	},
	ProviderMoonshot: {
		{ModelID: "moonshot-v1-128k", Name: "Moonshot v1 128K", ContextWindow: 131072, SupportsTools: true, IsDefault: true},
		{ModelID: "moonshot-v1-8k", Name: "Moonshot v1 8K", ContextWindow: 8192, SupportsTools: true},
	},
	ProviderOpenRouter: {
		{ModelID: "openrouter/auto", Name: "OpenRouter Auto", ContextWindow: 200000, SupportsTools: true, IsDefault: true},
		{ModelID: "meta-llama/llama-3.1-70b-instruct:free", Name: "Llama 3.1 70B (free)", ContextWindow: 131072},
	},
}

// DefaultModels returns the default model templates for a provider type.
// Unknown and custom types return an empty list.
func DefaultModels(providerType string) []ModelTemplate {
	templates := defaultModels[strings.ToLower(strings.TrimSpace(providerType))]
	out := make([]ModelTemplate, len(templates))
	copy(out, templates)
	return out
}
