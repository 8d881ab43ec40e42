package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lumenlabs/llm-gateway/internal/budget"
	"github.com/lumenlabs/llm-gateway/internal/models"
)

// BudgetHandler manages spending ceiling endpoints.
type BudgetHandler struct {
	budget *budget.Manager
}

// NewBudgetHandler constructs a BudgetHandler.
func NewBudgetHandler(manager *budget.Manager) *BudgetHandler {
	return &BudgetHandler{budget: manager}
}

func budgetJSON(row *models.BudgetConfig) gin.H {
	return gin.H{
		"period":               row.Period,
		"limit":                row.Limit,
		"alert_at_80":          row.AlertAt80,
		"alert_at_100":         row.AlertAt100,
		"last_alert_threshold": row.LastAlertThreshold,
		"last_alert_at":        row.LastAlertAt,
	}
}

// List returns all period configurations.
func (h *BudgetHandler) List(c *gin.Context) {
	periods := []string{
		models.BudgetPeriodDaily,
		models.BudgetPeriodWeekly,
		models.BudgetPeriodMonthly,
	}
	out := make([]gin.H, 0, len(periods))
	for _, period := range periods {
		row, errGet := h.budget.Get(c.Request.Context(), period)
		if errGet != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "list budgets failed"})
			return
		}
		out = append(out, budgetJSON(row))
	}
	c.JSON(http.StatusOK, gin.H{"budgets": out})
}

// Get returns one period's configuration.
func (h *BudgetHandler) Get(c *gin.Context) {
	period := strings.TrimSpace(c.Param("period"))
	row, errGet := h.budget.Get(c.Request.Context(), period)
	if errGet != nil {
		if errors.Is(errGet, budget.ErrUnknownPeriod) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown period"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get budget failed"})
		return
	}
	c.JSON(http.StatusOK, budgetJSON(row))
}

// Upsert sets one period's limit and alert toggles.
func (h *BudgetHandler) Upsert(c *gin.Context) {
	period := strings.TrimSpace(c.Param("period"))
	var body struct {
		Limit      float64 `json:"limit"`
		AlertAt80  *bool   `json:"alert_at_80"`
		AlertAt100 *bool   `json:"alert_at_100"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	alert80 := true
	if body.AlertAt80 != nil {
		alert80 = *body.AlertAt80
	}
	alert100 := true
	if body.AlertAt100 != nil {
		alert100 = *body.AlertAt100
	}

	row, errUpsert := h.budget.Upsert(c.Request.Context(), period, body.Limit, alert80, alert100)
	if errUpsert != nil {
		if errors.Is(errUpsert, budget.ErrUnknownPeriod) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown period"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upsert budget failed"})
		return
	}
	c.JSON(http.StatusOK, budgetJSON(row))
}

// Status reports current spend against one period's limit.
func (h *BudgetHandler) Status(c *gin.Context) {
	period := strings.TrimSpace(c.Param("period"))
	status, errStatus := h.budget.Status(c.Request.Context(), period, time.Now())
	if errStatus != nil {
		if errors.Is(errStatus, budget.ErrUnknownPeriod) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown period"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "budget status failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"period":    status.Period,
		"limit":     status.Limit,
		"spent":     status.Spent,
		"percent":   status.Percent,
		"exhausted": status.Exhausted,
	})
}

// Reset clears one period's alert state.
func (h *BudgetHandler) Reset(c *gin.Context) {
	period := strings.TrimSpace(c.Param("period"))
	if errReset := h.budget.Reset(c.Request.Context(), period); errReset != nil {
		if errors.Is(errReset, budget.ErrUnknownPeriod) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown period"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset budget failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// CheckAlerts evaluates thresholds and returns newly fired alerts.
func (h *BudgetHandler) CheckAlerts(c *gin.Context) {
	alerts, errCheck := h.budget.CheckAlerts(c.Request.Context(), time.Now())
	if errCheck != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "check alerts failed"})
		return
	}
	out := make([]gin.H, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, gin.H{
			"period":    alert.Period,
			"threshold": alert.Threshold,
			"spent":     alert.Spent,
			"limit":     alert.Limit,
		})
	}
	c.JSON(http.StatusOK, gin.H{"alerts": out})
}
