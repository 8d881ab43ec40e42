package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lumenlabs/llm-gateway/internal/models"
	"github.com/lumenlabs/llm-gateway/internal/resolver"
)

// MappingHandler manages feature mapping endpoints.
type MappingHandler struct {
	db       *gorm.DB
	resolver *resolver.Resolver
}

// NewMappingHandler constructs a MappingHandler.
func NewMappingHandler(db *gorm.DB, res *resolver.Resolver) *MappingHandler {
	return &MappingHandler{db: db, resolver: res}
}

func validMatchMode(mode string) bool {
	return mode == models.MatchModeAutoTag || mode == models.MatchModeSpecificModel
}

func validFallbackMode(mode string) bool {
	switch mode {
	case models.FallbackNextPriority, models.FallbackAnyAvailable, models.FallbackFail:
		return true
	}
	return false
}

func tagsJSON(tags []string) datatypes.JSON {
	if len(tags) == 0 {
		return datatypes.JSON([]byte("[]"))
	}
	data, errMarshal := json.Marshal(tags)
	if errMarshal != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(data)
}

func tagsSlice(raw datatypes.JSON) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var tags []string
	if errUnmarshal := json.Unmarshal(raw, &tags); errUnmarshal != nil {
		return []string{}
	}
	return tags
}

func mappingJSON(row *models.FeatureMapping) gin.H {
	return gin.H{
		"id":            row.ID,
		"feature_type":  row.FeatureType,
		"match_mode":    row.MatchMode,
		"required_tags": tagsSlice(row.RequiredTags),
		"excluded_tags": tagsSlice(row.ExcludedTags),
		"model_ref_id":  row.ModelRefID,
		"priority":      row.Priority,
		"fallback_mode": row.FallbackMode,
	}
}

// Create adds a feature mapping rule.
func (h *MappingHandler) Create(c *gin.Context) {
	var body struct {
		FeatureType  string   `json:"feature_type"`
		MatchMode    string   `json:"match_mode"`
		RequiredTags []string `json:"required_tags"`
		ExcludedTags []string `json:"excluded_tags"`
		ModelRefID   *uint64  `json:"model_ref_id"`
		Priority     int      `json:"priority"`
		FallbackMode string   `json:"fallback_mode"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	featureType := strings.TrimSpace(body.FeatureType)
	if featureType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing feature_type"})
		return
	}
	matchMode := strings.TrimSpace(body.MatchMode)
	if matchMode == "" {
		matchMode = models.MatchModeAutoTag
	}
	if !validMatchMode(matchMode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match_mode"})
		return
	}
	if matchMode == models.MatchModeSpecificModel && (body.ModelRefID == nil || *body.ModelRefID == 0) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "specific_model requires model_ref_id"})
		return
	}
	fallbackMode := strings.TrimSpace(body.FallbackMode)
	if fallbackMode == "" {
		fallbackMode = models.FallbackNextPriority
	}
	if !validFallbackMode(fallbackMode) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fallback_mode"})
		return
	}

	row := models.FeatureMapping{
		FeatureType:  featureType,
		MatchMode:    matchMode,
		RequiredTags: tagsJSON(body.RequiredTags),
		ExcludedTags: tagsJSON(body.ExcludedTags),
		ModelRefID:   body.ModelRefID,
		Priority:     body.Priority,
		FallbackMode: fallbackMode,
	}
	// One rule per (feature_type, priority) slot. Posting into an
	// occupied slot replaces the rule in place.
	errUpsert := h.db.WithContext(c.Request.Context()).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "feature_type"}, {Name: "priority"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"match_mode", "required_tags", "excluded_tags", "model_ref_id", "fallback_mode", "updated_at",
		}),
	}).Create(&row).Error
	if errUpsert != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "save mapping failed"})
		return
	}
	c.JSON(http.StatusCreated, mappingJSON(&row))
}

// List returns all feature mappings, highest priority first.
func (h *MappingHandler) List(c *gin.Context) {
	var rows []models.FeatureMapping
	query := h.db.WithContext(c.Request.Context()).Order("feature_type ASC, priority DESC")
	if feature := strings.TrimSpace(c.Query("feature_type")); feature != "" {
		query = query.Where("feature_type = ?", feature)
	}
	if errFind := query.Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list mappings failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, mappingJSON(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"mappings": out})
}

// Get returns one feature mapping.
func (h *MappingHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var row models.FeatureMapping
	errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get mapping failed"})
		return
	}
	c.JSON(http.StatusOK, mappingJSON(&row))
}

// Update mutates a feature mapping in place.
func (h *MappingHandler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var body struct {
		MatchMode    *string  `json:"match_mode"`
		RequiredTags []string `json:"required_tags"`
		ExcludedTags []string `json:"excluded_tags"`
		ModelRefID   *uint64  `json:"model_ref_id"`
		Priority     *int     `json:"priority"`
		FallbackMode *string  `json:"fallback_mode"`
	}
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var row models.FeatureMapping
	errFind := h.db.WithContext(c.Request.Context()).Where("id = ?", id).Take(&row).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "get mapping failed"})
		return
	}

	if body.MatchMode != nil {
		mode := strings.TrimSpace(*body.MatchMode)
		if !validMatchMode(mode) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid match_mode"})
			return
		}
		row.MatchMode = mode
	}
	if body.RequiredTags != nil {
		row.RequiredTags = tagsJSON(body.RequiredTags)
	}
	if body.ExcludedTags != nil {
		row.ExcludedTags = tagsJSON(body.ExcludedTags)
	}
	if body.ModelRefID != nil {
		row.ModelRefID = body.ModelRefID
	}
	if body.Priority != nil {
		row.Priority = *body.Priority
	}
	if body.FallbackMode != nil {
		mode := strings.TrimSpace(*body.FallbackMode)
		if !validFallbackMode(mode) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid fallback_mode"})
			return
		}
		row.FallbackMode = mode
	}

	if errSave := h.db.WithContext(c.Request.Context()).Save(&row).Error; errSave != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "update mapping failed"})
		return
	}
	c.JSON(http.StatusOK, mappingJSON(&row))
}

// Delete removes a feature mapping.
func (h *MappingHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	res := h.db.WithContext(c.Request.Context()).Where("id = ?", id).Delete(&models.FeatureMapping{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete mapping failed"})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Resolve previews the candidate list for a feature type.
func (h *MappingHandler) Resolve(c *gin.Context) {
	feature := strings.TrimSpace(c.Param("feature"))
	if feature == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing feature"})
		return
	}
	candidates, errResolve := h.resolver.ResolveWithFallback(c.Request.Context(), feature, nil)
	if errResolve != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resolve failed"})
		return
	}
	out := make([]gin.H, 0, len(candidates))
	for _, candidate := range candidates {
		out = append(out, gin.H{
			"provider_id":   candidate.Provider.ID,
			"provider":      candidate.Provider.Type,
			"model_id":      candidate.Model.ModelID,
			"priority":      candidate.Priority,
			"fallback_mode": candidate.FallbackMode,
		})
	}
	c.JSON(http.StatusOK, gin.H{"feature_type": feature, "candidates": out})
}
