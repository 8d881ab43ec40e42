package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/db"
	"github.com/lumenlabs/llm-gateway/internal/models"
)

const (
	defaultUsagePageSize = 50
	maxUsagePageSize     = 500
)

// UsageHandler serves usage telemetry queries.
type UsageHandler struct {
	db *gorm.DB
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(db *gorm.DB) *UsageHandler {
	return &UsageHandler{db: db}
}

// List returns raw usage rows, newest first, with optional filters.
func (h *UsageHandler) List(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&models.Usage{})

	if provider := strings.TrimSpace(c.Query("provider")); provider != "" {
		query = query.Where("provider = ?", provider)
	}
	if feature := strings.TrimSpace(c.Query("feature_type")); feature != "" {
		query = query.Where("feature_type = ?", feature)
	}
	if model := strings.TrimSpace(c.Query("model")); model != "" {
		expr, arg := db.CaseInsensitiveLike(h.db, "model_id", model)
		query = query.Where(expr, arg)
	}
	if success := strings.TrimSpace(c.Query("success")); success != "" {
		query = query.Where("success = ?", success == "true" || success == "1")
	}
	if from := strings.TrimSpace(c.Query("from")); from != "" {
		if fromTime, errParse := time.Parse(time.RFC3339, from); errParse == nil {
			query = query.Where("requested_at >= ?", fromTime.UTC())
		}
	}
	if to := strings.TrimSpace(c.Query("to")); to != "" {
		if toTime, errParse := time.Parse(time.RFC3339, to); errParse == nil {
			query = query.Where("requested_at <= ?", toTime.UTC())
		}
	}

	limit := defaultUsagePageSize
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if parsed, errParse := strconv.Atoi(raw); errParse == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxUsagePageSize {
		limit = maxUsagePageSize
	}
	offset := 0
	if raw := strings.TrimSpace(c.Query("offset")); raw != "" {
		if parsed, errParse := strconv.Atoi(raw); errParse == nil && parsed > 0 {
			offset = parsed
		}
	}

	var total int64
	if errCount := query.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "count usage failed"})
		return
	}

	var rows []models.Usage
	if errFind := query.Order("requested_at DESC").Limit(limit).Offset(offset).Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list usage failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":            row.ID,
			"provider_id":   row.ProviderID,
			"provider":      row.Provider,
			"model_id":      row.ModelID,
			"feature_type":  row.FeatureType,
			"request_id":    row.RequestID,
			"input_tokens":  row.InputTokens,
			"output_tokens": row.OutputTokens,
			"cost":          row.Cost,
			"latency_ms":    row.LatencyMS,
			"success":       row.Success,
			"error_message": row.ErrorMessage,
			"failover_from": row.FailoverFrom,
			"requested_at":  row.RequestedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"usage": out, "total": total})
}

// Summary aggregates usage per provider over an optional time window.
func (h *UsageHandler) Summary(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&models.Usage{})
	if from := strings.TrimSpace(c.Query("from")); from != "" {
		if fromTime, errParse := time.Parse(time.RFC3339, from); errParse == nil {
			query = query.Where("requested_at >= ?", fromTime.UTC())
		}
	}
	if to := strings.TrimSpace(c.Query("to")); to != "" {
		if toTime, errParse := time.Parse(time.RFC3339, to); errParse == nil {
			query = query.Where("requested_at <= ?", toTime.UTC())
		}
	}

	type summaryRow struct {
		Provider     string
		RequestCount int
		SuccessCount int
		InputTokens  int64
		OutputTokens int64
		TotalCost    float64
	}
	var groups []summaryRow
	errGroup := query.
		Select(`provider,
			COUNT(*) AS request_count,
			SUM(CASE WHEN success THEN 1 ELSE 0 END) AS success_count,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens,
			COALESCE(SUM(cost), 0) AS total_cost`).
		Group("provider").
		Order("total_cost DESC").
		Scan(&groups).Error
	if errGroup != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "usage summary failed"})
		return
	}

	out := make([]gin.H, 0, len(groups))
	for _, group := range groups {
		out = append(out, gin.H{
			"provider":      group.Provider,
			"request_count": group.RequestCount,
			"success_count": group.SuccessCount,
			"input_tokens":  group.InputTokens,
			"output_tokens": group.OutputTokens,
			"total_cost":    group.TotalCost,
		})
	}
	c.JSON(http.StatusOK, gin.H{"summary": out})
}

// Monthly returns rolled-up monthly aggregates.
func (h *UsageHandler) Monthly(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).Model(&models.UsageMonthly{})
	if month := strings.TrimSpace(c.Query("month")); month != "" {
		query = query.Where("month = ?", month)
	}

	var rows []models.UsageMonthly
	if errFind := query.Order("month DESC, total_cost DESC").Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list monthly usage failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"month":         row.Month,
			"provider_id":   row.ProviderID,
			"provider":      row.Provider,
			"model_id":      row.ModelID,
			"feature_type":  row.FeatureType,
			"request_count": row.RequestCount,
			"success_count": row.SuccessCount,
			"input_tokens":  row.InputTokens,
			"output_tokens": row.OutputTokens,
			"total_cost":    row.TotalCost,
		})
	}
	c.JSON(http.StatusOK, gin.H{"monthly": out})
}
