package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/models"
)

func openUsageDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := db.AutoMigrate(&models.Usage{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return db
}

func TestUsageListModelFilterIgnoresCase(t *testing.T) {
	db := openUsageDB(t)
	now := time.Now().UTC()
	rows := []models.Usage{
		{Provider: "openai", ModelID: "GPT-4o", FeatureType: "chat", Success: true, RequestedAt: now},
		{Provider: "anthropic", ModelID: "claude-sonnet-4", FeatureType: "chat", Success: true, RequestedAt: now},
	}
	if errCreate := db.Create(&rows).Error; errCreate != nil {
		t.Fatalf("seed usage: %v", errCreate)
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/usage", NewUsageHandler(db).List)

	req := httptest.NewRequest(http.MethodGet, "/usage?model=gpt", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Usage []struct {
			ModelID string `json:"model_id"`
		} `json:"usage"`
		Total int64 `json:"total"`
	}
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode body: %v", errDecode)
	}
	if body.Total != 1 || len(body.Usage) != 1 {
		t.Fatalf("total = %d, rows = %d, want 1 match", body.Total, len(body.Usage))
	}
	if body.Usage[0].ModelID != "GPT-4o" {
		t.Fatalf("model_id = %q, want the mixed-case row", body.Usage[0].ModelID)
	}
}
