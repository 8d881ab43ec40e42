package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lumenlabs/llm-gateway/internal/models"
	"github.com/lumenlabs/llm-gateway/internal/registry"
)

// ProviderHandler manages provider and model endpoints.
type ProviderHandler struct {
	registry *registry.Registry
}

// NewProviderHandler constructs a ProviderHandler.
func NewProviderHandler(reg *registry.Registry) *ProviderHandler {
	return &ProviderHandler{registry: reg}
}

func parseID(c *gin.Context) (uint64, bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func providerJSON(view *registry.ProviderView) gin.H {
	modelsOut := make([]gin.H, 0, len(view.Models))
	for _, model := range view.Models {
		modelsOut = append(modelsOut, modelJSON(&model))
	}
	return gin.H{
		"id":             view.ID,
		"name":           view.Name,
		"type":           view.Type,
		"base_url":       view.BaseURL,
		"auth_scheme":    view.AuthScheme,
		"auth_header":    view.AuthHeader,
		"has_credential": view.HasCredential,
		"capabilities":   view.Capabilities,
		"cost_tier":      view.CostTier,
		"quality_tier":   view.QualityTier,
		"enabled":        view.IsEnabled,
		"validated":      view.IsValidated,
		"validated_at":   view.ValidatedAt,
		"models":         modelsOut,
	}
}

func modelJSON(model *models.Model) gin.H {
	return gin.H{
		"id":              model.ID,
		"provider_id":     model.ProviderID,
		"model_id":        model.ModelID,
		"name":            model.Name,
		"context_window":  model.ContextWindow,
		"supports_vision": model.SupportsVision,
		"supports_tools":  model.SupportsTools,
		"default":         model.IsDefault,
	}
}

// Create registers a provider.
func (h *ProviderHandler) Create(c *gin.Context) {
	var body struct {
		Name         string   `json:"name"`
		Type         string   `json:"type"`
		BaseURL      string   `json:"base_url"`
		APIKey       string   `json:"api_key"`
		AuthScheme   string   `json:"auth_scheme"`
		AuthHeader   string   `json:"auth_header"`
		Capabilities []string `json:"capabilities"`
		CostTier     string   `json:"cost_tier"`
		QualityTier  string   `json:"quality_tier"`
		Enabled      *bool    `json:"enabled"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.Name) == "" || strings.TrimSpace(body.Type) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing name or type"})
		return
	}

	row, errCreate := h.registry.CreateProvider(c.Request.Context(), registry.CreateProviderInput{
		Name:         body.Name,
		Type:         body.Type,
		BaseURL:      body.BaseURL,
		APIKey:       body.APIKey,
		AuthScheme:   body.AuthScheme,
		AuthHeader:   body.AuthHeader,
		Capabilities: body.Capabilities,
		CostTier:     body.CostTier,
		QualityTier:  body.QualityTier,
		Enabled:      body.Enabled,
	})
	if errCreate != nil {
		if errors.Is(errCreate, registry.ErrUnknownProviderType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown provider type"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create provider failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": row.ID, "name": row.Name, "type": row.Type})
}

// List returns all providers.
func (h *ProviderHandler) List(c *gin.Context) {
	views, errList := h.registry.ListProviders(c.Request.Context())
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list providers failed"})
		return
	}
	out := make([]gin.H, 0, len(views))
	for i := range views {
		out = append(out, providerJSON(&views[i]))
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// Get returns one provider.
func (h *ProviderHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	view, errGet := h.registry.GetProvider(c.Request.Context(), id)
	if errGet != nil {
		if errors.Is(errGet, registry.ErrProviderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get provider failed"})
		return
	}
	c.JSON(http.StatusOK, providerJSON(view))
}

// Update mutates a provider in place.
func (h *ProviderHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body struct {
		Name         *string  `json:"name"`
		BaseURL      *string  `json:"base_url"`
		APIKey       *string  `json:"api_key"`
		AuthScheme   *string  `json:"auth_scheme"`
		AuthHeader   *string  `json:"auth_header"`
		Capabilities []string `json:"capabilities"`
		CostTier     *string  `json:"cost_tier"`
		QualityTier  *string  `json:"quality_tier"`
		Enabled      *bool    `json:"enabled"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	row, errUpdate := h.registry.UpdateProvider(c.Request.Context(), id, registry.UpdateProviderInput{
		Name:         body.Name,
		BaseURL:      body.BaseURL,
		APIKey:       body.APIKey,
		AuthScheme:   body.AuthScheme,
		AuthHeader:   body.AuthHeader,
		Capabilities: body.Capabilities,
		CostTier:     body.CostTier,
		QualityTier:  body.QualityTier,
		Enabled:      body.Enabled,
	})
	if errUpdate != nil {
		if errors.Is(errUpdate, registry.ErrProviderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update provider failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": row.ID, "name": row.Name, "type": row.Type})
}

// Delete removes a provider and its models.
func (h *ProviderHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if errDelete := h.registry.DeleteProvider(c.Request.Context(), id); errDelete != nil {
		if errors.Is(errDelete, registry.ErrProviderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete provider failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Validate probes provider connectivity with its stored credential.
func (h *ProviderHandler) Validate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	result := h.registry.Validate(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{
		"valid": result.IsValid,
		"error": result.Error,
	})
}

// SyncModels reconciles stored models with the live vendor list.
func (h *ProviderHandler) SyncModels(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	result := h.registry.SyncModels(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{
		"added":   result.Added,
		"removed": result.Removed,
		"error":   result.Error,
	})
}

// AddModel attaches a model to a provider.
func (h *ProviderHandler) AddModel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body struct {
		ModelID        string         `json:"model_id"`
		Name           string         `json:"name"`
		ContextWindow  *int           `json:"context_window"`
		SupportsVision bool           `json:"supports_vision"`
		SupportsTools  bool           `json:"supports_tools"`
		DefaultParams  map[string]any `json:"default_params"`
		IsDefault      bool           `json:"default"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(body.ModelID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing model_id"})
		return
	}

	row, errAdd := h.registry.AddModel(c.Request.Context(), id, registry.AddModelInput{
		ModelID:        body.ModelID,
		Name:           body.Name,
		ContextWindow:  body.ContextWindow,
		SupportsVision: body.SupportsVision,
		SupportsTools:  body.SupportsTools,
		DefaultParams:  body.DefaultParams,
		IsDefault:      body.IsDefault,
	})
	if errAdd != nil {
		if errors.Is(errAdd, registry.ErrProviderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "add model failed"})
		return
	}
	c.JSON(http.StatusCreated, modelJSON(row))
}

// UpdateModel mutates a model in place.
func (h *ProviderHandler) UpdateModel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body struct {
		Name           *string        `json:"name"`
		ContextWindow  *int           `json:"context_window"`
		SupportsVision *bool          `json:"supports_vision"`
		SupportsTools  *bool          `json:"supports_tools"`
		DefaultParams  map[string]any `json:"default_params"`
		IsDefault      *bool          `json:"default"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	row, errUpdate := h.registry.UpdateModel(c.Request.Context(), id, registry.UpdateModelInput{
		Name:           body.Name,
		ContextWindow:  body.ContextWindow,
		SupportsVision: body.SupportsVision,
		SupportsTools:  body.SupportsTools,
		DefaultParams:  body.DefaultParams,
		IsDefault:      body.IsDefault,
	})
	if errUpdate != nil {
		if errors.Is(errUpdate, registry.ErrModelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update model failed"})
		return
	}
	c.JSON(http.StatusOK, modelJSON(row))
}

// RemoveModel detaches a model.
func (h *ProviderHandler) RemoveModel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if errRemove := h.registry.RemoveModel(c.Request.Context(), id); errRemove != nil {
		if errors.Is(errRemove, registry.ErrModelNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "remove model failed"})
		return
	}
	c.Status(http.StatusNoContent)
}
