package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lumenlabs/llm-gateway/internal/adapters"
	"github.com/lumenlabs/llm-gateway/internal/resolver"
	"github.com/lumenlabs/llm-gateway/internal/routing"
)

// GenerateHandler serves generation requests through the failover engine.
type GenerateHandler struct {
	engine *routing.Engine
}

// NewGenerateHandler constructs a GenerateHandler.
func NewGenerateHandler(engine *routing.Engine) *GenerateHandler {
	return &GenerateHandler{engine: engine}
}

type generateRequest struct {
	FeatureType string  `json:"feature_type"`
	ProviderID  *uint64 `json:"provider_id"`

	Prompt   string `json:"prompt"`
	System   string `json:"system"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Images []struct {
		MimeType string `json:"mime_type"`
		Data     string `json:"data"`
	} `json:"images"`

	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	TopP        *float64 `json:"top_p"`

	CostOptimize bool `json:"cost_optimize"`

	Requirements *struct {
		NeedsVision      bool   `json:"needs_vision"`
		NeedsTools       bool   `json:"needs_tools"`
		CostTier         string `json:"cost_tier"`
		QualityTier      string `json:"quality_tier"`
		MinContextWindow int    `json:"min_context_window"`
	} `json:"requirements"`
}

func (req *generateRequest) validate() string {
	if strings.TrimSpace(req.FeatureType) == "" && req.ProviderID == nil {
		return "missing feature_type or provider_id"
	}
	if strings.TrimSpace(req.Prompt) == "" && len(req.Messages) == 0 {
		return "missing prompt or messages"
	}
	return ""
}

func (req *generateRequest) toOptions(apiKeyID uint64) routing.Options {
	opts := routing.Options{
		FeatureType:  strings.TrimSpace(req.FeatureType),
		ProviderID:   req.ProviderID,
		Prompt:       req.Prompt,
		System:       req.System,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		TopP:         req.TopP,
		CostOptimize: req.CostOptimize,
	}
	if apiKeyID != 0 {
		opts.APIKeyID = &apiKeyID
	}
	for _, message := range req.Messages {
		opts.Messages = append(opts.Messages, adapters.Message{
			Role:    message.Role,
			Content: message.Content,
		})
	}
	for _, image := range req.Images {
		opts.Images = append(opts.Images, adapters.Image{
			MimeType: image.MimeType,
			Data:     image.Data,
		})
	}
	if req.Requirements != nil {
		opts.Requirements = &resolver.Requirements{
			NeedsVision:      req.Requirements.NeedsVision,
			NeedsTools:       req.Requirements.NeedsTools,
			CostTier:         req.Requirements.CostTier,
			QualityTier:      req.Requirements.QualityTier,
			MinContextWindow: req.Requirements.MinContextWindow,
		}
	}
	return opts
}

func resultJSON(result *routing.Result) gin.H {
	return gin.H{
		"text":          result.Text,
		"provider_id":   result.ProviderID,
		"provider":      result.Provider,
		"model_id":      result.ModelID,
		"input_tokens":  result.InputTokens,
		"output_tokens": result.OutputTokens,
		"request_id":    result.RequestID,
		"latency_ms":    result.Latency.Milliseconds(),
		"was_failover":  result.WasFailover,
		"failover_from": result.FailoverFrom,
	}
}

func writeEngineError(c *gin.Context, errRun error) {
	if errors.Is(errRun, routing.ErrBudgetExhausted) {
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "budget exhausted"})
		return
	}
	var exhausted *routing.ExhaustedError
	if errors.As(errRun, &exhausted) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    exhausted.UserMessage(),
			"attempts": len(exhausted.Attempts),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "generation failed"})
}

// Generate runs a blocking generation request.
func (h *GenerateHandler) Generate(c *gin.Context) {
	var req generateRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if message := req.validate(); message != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": message})
		return
	}

	result, errRun := h.engine.Generate(c.Request.Context(), req.toOptions(apiKeyIDFrom(c)))
	if errRun != nil {
		writeEngineError(c, errRun)
		return
	}
	c.JSON(http.StatusOK, resultJSON(result))
}

// GenerateStream runs a streaming generation request over SSE.
func (h *GenerateHandler) GenerateStream(c *gin.Context) {
	var req generateRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if message := req.validate(); message != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": message})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, _ := c.Writer.(http.Flusher)
	writeEvent := func(payload any) {
		data, errMarshal := json.Marshal(payload)
		if errMarshal != nil {
			return
		}
		_, _ = c.Writer.WriteString("data: " + string(data) + "\n\n")
		if flusher != nil {
			flusher.Flush()
		}
	}

	result, errRun := h.engine.GenerateStream(c.Request.Context(), req.toOptions(apiKeyIDFrom(c)), func(chunk routing.StreamChunk) {
		if chunk.Text != "" {
			writeEvent(gin.H{"text": chunk.Text})
		}
	})
	if errRun != nil {
		if errors.Is(errRun, routing.ErrBudgetExhausted) {
			writeEvent(gin.H{"error": "budget exhausted"})
		} else {
			var exhausted *routing.ExhaustedError
			message := "generation failed"
			if errors.As(errRun, &exhausted) {
				message = exhausted.UserMessage()
			}
			writeEvent(gin.H{"error": message})
		}
		writeEvent(gin.H{"done": true})
		return
	}

	writeEvent(gin.H{
		"done":          true,
		"provider":      result.Provider,
		"model_id":      result.ModelID,
		"input_tokens":  result.InputTokens,
		"output_tokens": result.OutputTokens,
		"request_id":    result.RequestID,
	})
}

// GenerateVision runs a generation request restricted to vision-capable
// models.
func (h *GenerateHandler) GenerateVision(c *gin.Context) {
	var req generateRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if message := req.validate(); message != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": message})
		return
	}
	if len(req.Images) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing images"})
		return
	}

	result, errRun := h.engine.GenerateWithVision(c.Request.Context(), req.toOptions(apiKeyIDFrom(c)))
	if errRun != nil {
		writeEngineError(c, errRun)
		return
	}
	c.JSON(http.StatusOK, resultJSON(result))
}
