package adapters

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/lumenlabs/llm-gateway/internal/catalog"
)

// geminiAdapter speaks the Google Generative Language API.
type geminiAdapter struct {
	client *http.Client
}

func newGemini() *geminiAdapter {
	return &geminiAdapter{client: &http.Client{}}
}

func (a *geminiAdapter) Type() string { return catalog.ProviderGoogle }

func (a *geminiAdapter) Capabilities() Capabilities {
	return Capabilities{Vision: true, Streaming: true, Tools: true, JSONMode: true}
}

func (a *geminiAdapter) DefaultBaseURL() string {
	return catalog.DefaultBaseURL(catalog.ProviderGoogle)
}

func (a *geminiAdapter) baseURL(cfg Config) string {
	if u := strings.TrimSpace(cfg.BaseURL); u != "" {
		return strings.TrimSuffix(u, "/")
	}
	return strings.TrimSuffix(a.DefaultBaseURL(), "/")
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent   `json:"system_instruction,omitempty"`
	Contents          []geminiContent  `json:"contents"`
	GenerationConfig  *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiGenConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (a *geminiAdapter) buildRequest(opts GenerateOptions) geminiRequest {
	req := geminiRequest{}
	if strings.TrimSpace(opts.System) != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: opts.System}}}
	}
	for _, msg := range opts.Messages {
		role := msg.Role
		if role == "assistant" {
			role = "model"
		}
		if role == "system" {
			continue
		}
		req.Contents = append(req.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: msg.Content}}})
	}
	if strings.TrimSpace(opts.Prompt) != "" || len(opts.Images) > 0 {
		parts := make([]geminiPart, 0, len(opts.Images)+1)
		if strings.TrimSpace(opts.Prompt) != "" {
			parts = append(parts, geminiPart{Text: opts.Prompt})
		}
		for _, img := range opts.Images {
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: img.MimeType, Data: img.Data}})
		}
		req.Contents = append(req.Contents, geminiContent{Role: "user", Parts: parts})
	}
	if opts.MaxTokens > 0 || opts.Temperature != nil || opts.TopP != nil {
		req.GenerationConfig = &geminiGenConfig{
			MaxOutputTokens: opts.MaxTokens,
			Temperature:     opts.Temperature,
			TopP:            opts.TopP,
		}
	}
	return req
}

func (a *geminiAdapter) post(ctx context.Context, cfg Config, path string, payload any) (*http.Response, error) {
	body, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return nil, fmt.Errorf("gemini adapter: marshal request: %w", errMarshal)
	}
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL(cfg)+path, bytes.NewReader(body))
	if errReq != nil {
		return nil, fmt.Errorf("gemini adapter: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		req.Header.Set("x-goog-api-key", key)
	}
	resp, errDo := a.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("gemini adapter: request failed: %w", errDo)
	}
	return resp, nil
}

func collectText(content geminiContent) string {
	var text strings.Builder
	for _, part := range content.Parts {
		text.WriteString(part.Text)
	}
	return text.String()
}

// Generate performs one generateContent call.
func (a *geminiAdapter) Generate(ctx context.Context, cfg Config, opts GenerateOptions) (*Result, error) {
	path := "/models/" + url.PathEscape(opts.ModelID) + ":generateContent"
	resp, err := a.post(ctx, cfg, path, a.buildRequest(opts))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, fmt.Errorf("gemini adapter: read response: %w", errRead)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("gemini adapter: status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var parsed geminiResponse
	if errUnmarshal := json.Unmarshal(body, &parsed); errUnmarshal != nil {
		return nil, fmt.Errorf("gemini adapter: parse response: %w", errUnmarshal)
	}
	if len(parsed.Candidates) == 0 {
		return nil, fmt.Errorf("gemini adapter: empty candidates")
	}

	return &Result{
		Text:         collectText(parsed.Candidates[0].Content),
		InputTokens:  parsed.UsageMetadata.PromptTokenCount,
		OutputTokens: parsed.UsageMetadata.CandidatesTokenCount,
	}, nil
}

// Stream performs one streamGenerateContent call over SSE.
func (a *geminiAdapter) Stream(ctx context.Context, cfg Config, opts GenerateOptions, onChunk func(StreamChunk)) (*Result, error) {
	path := "/models/" + url.PathEscape(opts.ModelID) + ":streamGenerateContent?alt=sse"
	resp, err := a.post(ctx, cfg, path, a.buildRequest(opts))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gemini adapter: status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var text strings.Builder
	result := &Result{}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		var parsed geminiResponse
		if errUnmarshal := json.Unmarshal([]byte(data), &parsed); errUnmarshal != nil {
			continue
		}
		if parsed.UsageMetadata.PromptTokenCount > 0 {
			result.InputTokens = parsed.UsageMetadata.PromptTokenCount
			result.OutputTokens = parsed.UsageMetadata.CandidatesTokenCount
		}
		if len(parsed.Candidates) == 0 {
			continue
		}
		piece := collectText(parsed.Candidates[0].Content)
		if piece == "" {
			continue
		}
		text.WriteString(piece)
		if onChunk != nil {
			onChunk(StreamChunk{Text: piece})
		}
	}
	if errScan := scanner.Err(); errScan != nil {
		return nil, fmt.Errorf("gemini adapter: read stream: %w", errScan)
	}
	if onChunk != nil {
		onChunk(StreamChunk{Done: true})
	}

	result.Text = text.String()
	return result, nil
}

// Validate probes the models endpoint with a short timeout.
func (a *geminiAdapter) Validate(ctx context.Context, cfg Config) ValidationResult {
	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if _, err := a.ListModels(probeCtx, cfg); err != nil {
		return ValidationResult{IsValid: false, Error: err.Error()}
	}
	return ValidationResult{IsValid: true}
}

// ListModels fetches the vendor model list.
func (a *geminiAdapter) ListModels(ctx context.Context, cfg Config) ([]ModelInfo, error) {
	listCtx, cancel := context.WithTimeout(ctx, listModelsTimeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(listCtx, http.MethodGet, a.baseURL(cfg)+"/models", nil)
	if errReq != nil {
		return nil, fmt.Errorf("gemini adapter: build request: %w", errReq)
	}
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		req.Header.Set("x-goog-api-key", key)
	}

	resp, errDo := a.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("gemini adapter: request failed: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, fmt.Errorf("gemini adapter: read response: %w", errRead)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("gemini adapter: status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var parsed struct {
		Models []struct {
			Name        string `json:"name"`
			DisplayName string `json:"displayName"`
		} `json:"models"`
	}
	if errUnmarshal := json.Unmarshal(body, &parsed); errUnmarshal != nil {
		return nil, fmt.Errorf("gemini adapter: parse response: %w", errUnmarshal)
	}

	out := make([]ModelInfo, 0, len(parsed.Models))
	for _, item := range parsed.Models {
		id := strings.TrimPrefix(strings.TrimSpace(item.Name), "models/")
		if id == "" {
			continue
		}
		name := strings.TrimSpace(item.DisplayName)
		if name == "" {
			name = id
		}
		out = append(out, ModelInfo{ID: id, Name: name})
	}
	return out, nil
}

// NormalizeParams maps generic parameter names onto the Gemini dialect.
func (a *geminiAdapter) NormalizeParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		switch key {
		case "maxTokens", "max_tokens":
			out["maxOutputTokens"] = value
		case "top_p":
			out["topP"] = value
		default:
			out[key] = value
		}
	}
	return out
}
