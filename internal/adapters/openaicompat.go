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

// openAICompat speaks the OpenAI chat-completions dialect shared by OpenAI,
// Ollama, DeepSeek, Mistral, xAI, Zhipu, Moonshot, OpenRouter, Cohere's
// compatibility endpoint, and custom providers.
type openAICompat struct {
	providerType string
	client       *http.Client
}

func newOpenAICompat(providerType string) *openAICompat {
	return &openAICompat{providerType: providerType, client: &http.Client{}}
}

func (a *openAICompat) Type() string { return a.providerType }

func (a *openAICompat) Capabilities() Capabilities {
	return Capabilities{Vision: true, Streaming: true, Tools: true, JSONMode: true}
}

func (a *openAICompat) DefaultBaseURL() string {
	return catalog.DefaultBaseURL(a.providerType)
}

func (a *openAICompat) baseURL(cfg Config) string {
	if url := strings.TrimSpace(cfg.BaseURL); url != "" {
		return strings.TrimSuffix(url, "/")
	}
	return strings.TrimSuffix(a.DefaultBaseURL(), "/")
}

func (a *openAICompat) applyAuth(req *http.Request, cfg Config) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return
	}
	switch strings.ToLower(strings.TrimSpace(cfg.AuthScheme)) {
	case "header":
		header := strings.TrimSpace(cfg.AuthHeader)
		if header == "" {
			header = "Authorization"
		}
		req.Header.Set(header, key)
	case "x-api-key":
		req.Header.Set("x-api-key", key)
	default:
		req.Header.Set("Authorization", "Bearer "+key)
	}
}

type oaiMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type oaiContentPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *oaiImageURL `json:"image_url,omitempty"`
}

type oaiImageURL struct {
	URL string `json:"url"`
}

type oaiRequest struct {
	Model       string       `json:"model"`
	Messages    []oaiMessage `json:"messages"`
	MaxTokens   int          `json:"max_tokens,omitempty"`
	Temperature *float64     `json:"temperature,omitempty"`
	TopP        *float64     `json:"top_p,omitempty"`
	Stream      bool         `json:"stream,omitempty"`
}

type oaiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (a *openAICompat) buildMessages(opts GenerateOptions) []oaiMessage {
	out := make([]oaiMessage, 0, len(opts.Messages)+2)
	if strings.TrimSpace(opts.System) != "" {
		out = append(out, oaiMessage{Role: "system", Content: opts.System})
	}
	for _, msg := range opts.Messages {
		out = append(out, oaiMessage{Role: msg.Role, Content: msg.Content})
	}
	if strings.TrimSpace(opts.Prompt) != "" || len(opts.Images) > 0 {
		if len(opts.Images) == 0 {
			out = append(out, oaiMessage{Role: "user", Content: opts.Prompt})
		} else {
			parts := make([]oaiContentPart, 0, len(opts.Images)+1)
			if strings.TrimSpace(opts.Prompt) != "" {
				parts = append(parts, oaiContentPart{Type: "text", Text: opts.Prompt})
			}
			for _, img := range opts.Images {
				parts = append(parts, oaiContentPart{
					Type:     "image_url",
					ImageURL: &oaiImageURL{URL: "data:" + img.MimeType + ";base64," + img.Data},
				})
			}
			out = append(out, oaiMessage{Role: "user", Content: parts})
		}
	}
	return out
}

func (a *openAICompat) post(ctx context.Context, cfg Config, path string, payload any) (*http.Response, error) {
	body, errMarshal := json.Marshal(payload)
	if errMarshal != nil {
		return nil, fmt.Errorf("%s adapter: marshal request: %w", a.providerType, errMarshal)
	}
	req, errReq := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL(cfg)+path, bytes.NewReader(body))
	if errReq != nil {
		return nil, fmt.Errorf("%s adapter: build request: %w", a.providerType, errReq)
	}
	req.Header.Set("Content-Type", "application/json")
	a.applyAuth(req, cfg)
	resp, errDo := a.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("%s adapter: request failed: %w", a.providerType, errDo)
	}
	return resp, nil
}

// Generate performs one chat-completions call.
func (a *openAICompat) Generate(ctx context.Context, cfg Config, opts GenerateOptions) (*Result, error) {
	payload := oaiRequest{
		Model:       opts.ModelID,
		Messages:    a.buildMessages(opts),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
	}

	resp, err := a.post(ctx, cfg, "/chat/completions", payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, fmt.Errorf("%s adapter: read response: %w", a.providerType, errRead)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%s adapter: status %d: %s", a.providerType, resp.StatusCode, truncateBody(body))
	}

	var parsed oaiResponse
	if errUnmarshal := json.Unmarshal(body, &parsed); errUnmarshal != nil {
		return nil, fmt.Errorf("%s adapter: parse response: %w", a.providerType, errUnmarshal)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%s adapter: empty choices", a.providerType)
	}

	return &Result{
		Text:         parsed.Choices[0].Message.Content,
		InputTokens:  parsed.Usage.PromptTokens,
		OutputTokens: parsed.Usage.CompletionTokens,
	}, nil
}

// Stream performs one streaming chat-completions call over SSE.
func (a *openAICompat) Stream(ctx context.Context, cfg Config, opts GenerateOptions, onChunk func(StreamChunk)) (*Result, error) {
	payload := oaiRequest{
		Model:       opts.ModelID,
		Messages:    a.buildMessages(opts),
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stream:      true,
	}

	resp, err := a.post(ctx, cfg, "/chat/completions", payload)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s adapter: status %d: %s", a.providerType, resp.StatusCode, truncateBody(body))
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
		if data == "" || data == "[DONE]" {
			continue
		}
		var parsed oaiResponse
		if errUnmarshal := json.Unmarshal([]byte(data), &parsed); errUnmarshal != nil {
			continue
		}
		if parsed.Usage.PromptTokens > 0 || parsed.Usage.CompletionTokens > 0 {
			result.InputTokens = parsed.Usage.PromptTokens
			result.OutputTokens = parsed.Usage.CompletionTokens
		}
		if len(parsed.Choices) == 0 {
			continue
		}
		piece := parsed.Choices[0].Delta.Content
		if piece == "" {
			continue
		}
		text.WriteString(piece)
		if onChunk != nil {
			onChunk(StreamChunk{Text: piece})
		}
	}
	if errScan := scanner.Err(); errScan != nil {
		return nil, fmt.Errorf("%s adapter: read stream: %w", a.providerType, errScan)
	}
	if onChunk != nil {
		onChunk(StreamChunk{Done: true})
	}

	result.Text = text.String()
	return result, nil
}

// Validate probes the models endpoint with a short timeout.
func (a *openAICompat) Validate(ctx context.Context, cfg Config) ValidationResult {
	probeCtx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	if _, err := a.ListModels(probeCtx, cfg); err != nil {
		return ValidationResult{IsValid: false, Error: err.Error()}
	}
	return ValidationResult{IsValid: true}
}

// ListModels fetches the vendor model list.
func (a *openAICompat) ListModels(ctx context.Context, cfg Config) ([]ModelInfo, error) {
	listCtx, cancel := context.WithTimeout(ctx, listModelsTimeout)
	defer cancel()

	req, errReq := http.NewRequestWithContext(listCtx, http.MethodGet, a.baseURL(cfg)+"/models", nil)
	if errReq != nil {
		return nil, fmt.Errorf("%s adapter: build request: %w", a.providerType, errReq)
	}
	a.applyAuth(req, cfg)

	resp, errDo := a.client.Do(req)
	if errDo != nil {
		return nil, fmt.Errorf("%s adapter: request failed: %w", a.providerType, errDo)
	}
	defer func() { _ = resp.Body.Close() }()

	body, errRead := io.ReadAll(resp.Body)
	if errRead != nil {
		return nil, fmt.Errorf("%s adapter: read response: %w", a.providerType, errRead)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%s adapter: status %d: %s", a.providerType, resp.StatusCode, truncateBody(body))
	}

	var parsed struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if errUnmarshal := json.Unmarshal(body, &parsed); errUnmarshal != nil {
		return nil, fmt.Errorf("%s adapter: parse response: %w", a.providerType, errUnmarshal)
	}

	out := make([]ModelInfo, 0, len(parsed.Data))
	for _, item := range parsed.Data {
		id := strings.TrimSpace(item.ID)
		if id == "" {
			continue
		}
		out = append(out, ModelInfo{ID: id, Name: id})
	}
	return out, nil
}

// NormalizeParams maps generic parameter names onto the OpenAI dialect.
func (a *openAICompat) NormalizeParams(params map[string]any) map[string]any {
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

// truncateBody limits error bodies embedded in messages.
func truncateBody(body []byte) string {
	const limit = 512
	text := strings.TrimSpace(string(body))
	if len(text) > limit {
		return text[:limit]
	}
	return text
}
