package adapters

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/lumenlabs/llm-gateway/internal/catalog"
)

const anthropicVersion = "2023-06-01"

// anthropicAdapter speaks the Anthropic Messages API.
type anthropicAdapter struct {
	client *http.Client
}

func newAnthropic() *anthropicAdapter {
	return &anthropicAdapter{client: &http.Client{}}
}

func (a *anthropicAdapter) Type() string { return catalog.ProviderAnthropic }

func (a *anthropicAdapter) Capabilities() Capabilities {
	return Capabilities{Vision: true, Streaming: true, Tools: true, JSONMode: false}
}

func (a *anthropicAdapter) DefaultBaseURL() string {
	return catalog.DefaultBaseURL(catalog.ProviderAnthropic)
}

func (a *anthropicAdapter) baseURL(cfg Config) string {
	if url := strings.TrimSpace(cfg.BaseURL); url != "" {
		return strings.TrimSuffix(url, "/")
	}
	return strings.TrimSuffix(a.DefaultBaseURL(), "/")
}

type anthropicContent struct {
	Type   string           `json:"type"`
	Text   string           `json:"text,omitempty"`
	Source *anthropicSource `json:"source,omitempty"`
}

type anthropicSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (a *anthropicAdapter) buildMessages(opts GenerateOptions) []anthropicMessage {
	out := make([]anthropicMessage, 0, len(opts.Messages)+1)
	for _, msg := range opts.Messages {
		if msg.Role == "system" {
			continue
		}
		out = append(out, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	if strings.TrimSpace(opts.Prompt) != "" || len(opts.Images) > 0 {
		if len(opts.Images) == 0 {
			out = append(out, anthropicMessage{Role: "user", Content: opts.Prompt})
		} else {
			parts := make([]anthropicContent, 0, len(opts.Images)+1)
			for _, img := range opts.Images {
				parts = append(parts, anthropicContent{
					Type:   "image",
					Source: &anthropicSource{Type: "base64", MediaType: img.MimeType, Data: img.Data},
				})
			}
			if strings.TrimSpace(opts.Prompt) != "" {
				parts = append(parts, anthropicContent{Type: "text", Text: opts.Prompt})
			}
			out = append(out, anthropicMessage{Role: "user", Content: parts})
		}
	}
	return out
}

func (a *anthropicAdapter) post(ctx context.Context, cfg Config, path string, payload any) (*http.Response, error) {
	body, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return nil, fmt.Errorf("anthropic adapter: marshal request: %w", errMarshal)
	}
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL(cfg)+path, bytes.NewReader(body))
	if errReq != nil {
		return nil, fmt.Errorf("anthropic adapter: build request: %w", errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("anthropic-version", anthropicVersion)
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		req.Header.Set("x-api-key", key)
	}
	resp, errDo := a.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("anthropic adapter: request failed: %w", errDo)
	}
	return resp, nil
}

// Generate performs one messages call.
func (a *anthropicAdapter) Generate(ctx context.Context, cfg Config, opts GenerateOptions) (*Result, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	payload := anthropicRequest{
		Model:       opts.ModelID,
		System:      opts.System,
		Messages:    a.buildMessages(opts),
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}

	resp, err := a.post(ctx, cfg, "/v1/messages", payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, fmt.Errorf("anthropic adapter: read response: %w", errRead)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("anthropic adapter: status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var parsed anthropicResponse
	if errUnmarshal := json.Unmarshal(body, &parsed); errUnmarshal != nil {
		return nil, fmt.Errorf("anthropic adapter: parse response: %w", errUnmarshal)
	}

	var text strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &Result{
		Text:         text.String(),
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}, nil
}

// Stream performs one streaming messages call over SSE.
func (a *anthropicAdapter) Stream(ctx context.Context, cfg Config, opts GenerateOptions, onChunk func(StreamChunk)) (*Result, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	payload := anthropicRequest{
		Model:       opts.ModelID,
		System:      opts.System,
		Messages:    a.buildMessages(opts),
		MaxTokens:   maxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stream:      true,
	}

	resp, err := a.post(ctx, cfg, "/v1/messages", payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("anthropic adapter: status %d: %s", resp.StatusCode, truncateBody(body))
	}

	// streamEvent maps the SSE event payloads carrying text and usage.
	type streamEvent struct {
		Type  string `json:"type"`
		Delta struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"delta"`
		Message struct {
			Usage struct {
				InputTokens int `json:"input_tokens"`
			} `json:"usage"`
		} `json:"message"`
		Usage struct {
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
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
		var event streamEvent
		if errUnmarshal := json.Unmarshal([]byte(data), &event); errUnmarshal != nil {
			continue
		}
		switch event.Type {
		case "message_start":
			result.InputTokens = event.Message.Usage.InputTokens
		case "content_block_delta":
			if event.Delta.Text == "" {
				continue
			}
			text.WriteString(event.Delta.Text)
			if onChunk != nil {
				onChunk(StreamChunk{Text: event.Delta.Text})
			}
		case "message_delta":
			if event.Usage.OutputTokens > 0 {
				result.OutputTokens = event.Usage.OutputTokens
			}
		}
	}
	if errScan := scanner.Err(); errScan != nil {
		return nil, fmt.Errorf("anthropic adapter: read stream: %w", errScan)
	}
	if onChunk != nil {
		onChunk(StreamChunk{Done: true})
	}

	result.Text = text.String()
	return result, nil
}

// Validate probes the models endpoint with a short timeout.
func (a *anthropicAdapter) Validate(ctx context.Context, cfg Config) ValidationResult {
	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if _, err := a.ListModels(probeCtx, cfg); err != nil {
		return ValidationResult{IsValid: false, Error: err.Error()}
	}
	return ValidationResult{IsValid: true}
}

// ListModels fetches the vendor model list.
func (a *anthropicAdapter) ListModels(ctx context.Context, cfg Config) ([]ModelInfo, error) {
	listCtx, cancel := context.WithTimeout(ctx, listModelsTimeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(listCtx, http.MethodGet, a.baseURL(cfg)+"/v1/models", nil)
	if errReq != nil {
		return nil, fmt.Errorf("anthropic adapter: build request: %w", errReq)
	}
	req.Header.Set("anthropic-version", anthropicVersion)
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		req.Header.Set("x-api-key", key)
	}

	resp, errDo := a.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("anthropic adapter: request failed: %w", errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, fmt.Errorf("anthropic adapter: read response: %w", errRead)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("anthropic adapter: status %d: %s", resp.StatusCode, truncateBody(body))
	}

	var parsed struct {
		Data []struct {
			ID          string `json:"id"`
			DisplayName string `json:"display_name"`
		} `json:"data"`
	}
	if errUnmarshal := json.Unmarshal(body, &parsed); errUnmarshal != nil {
		return nil, fmt.Errorf("anthropic adapter: parse response: %w", errUnmarshal)
	}

	out := make([]ModelInfo, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		id := strings.TrimSpace(item.ID)
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

// NormalizeParams maps generic parameter names onto the Anthropic dialect.
func (a *anthropicAdapter) NormalizeParams(params map[string]any) map[string]any {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]any, len(params))
	for key, value := range params {
		switch key {
		case "maxTokens":
			out["max_tokens"] = value
		case "topP":
			out["top_p"] = value
		default:
			out[key] = value
		}
	}
	return out
}
