package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/models"
)

// PriceHandler serves synced model price lookups.
type PriceHandler struct {
	db *gorm.DB
}

// NewPriceHandler constructs a PriceHandler.
func NewPriceHandler(db *gorm.DB) *PriceHandler {
	return &PriceHandler{db: db}
}

// Get returns the synced price row for a provider/model pair.
func (h *PriceHandler) Get(c *gin.Context) {
	provider := strings.ToLower(strings.TrimSpace(c.Query("provider")))
	model := strings.TrimSpace(c.Query("model"))
	if provider == "" || model == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing provider or model"})
		return
	}

	var row models.ModelPrice
	errFind := h.db.WithContext(c.Request.Context()).
		Where("provider_name = ? AND model_name = ?", provider, model).
		Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get price failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"provider":      row.ProviderName,
		"model":         row.ModelName,
		"context_limit": row.ContextLimit,
		"output_limit":  row.OutputLimit,
		"input_price":   row.InputPrice,
		"output_price":  row.OutputPrice,
		"last_seen_at":  row.LastSeenAt,
	})
}
