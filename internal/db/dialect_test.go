package db

import (
	"fmt"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/models"
)

func openDialectDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Usage{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func TestCaseInsensitiveLikeSQLite(t *testing.T) {
	conn := openDialectDB(t)
	expr, arg := CaseInsensitiveLike(conn, "model_id", "GPT")
	if expr != "LOWER(model_id) LIKE ?" {
		t.Fatalf("expr = %q", expr)
	}
	if arg != "%gpt%" {
		t.Fatalf("arg = %q, want lowered pattern", arg)
	}
}

func TestCaseInsensitiveLikeMatchesMixedCase(t *testing.T) {
	conn := openDialectDB(t)
	rows := []models.Usage{
		{Provider: "openai", ModelID: "GPT-4o", FeatureType: "chat"},
		{Provider: "anthropic", ModelID: "claude-sonnet-4", FeatureType: "chat"},
	}
	if errCreate := conn.Create(&rows).Error; errCreate != nil {
		t.Fatalf("seed usage: %v", errCreate)
	}

	expr, arg := CaseInsensitiveLike(conn, "model_id", "gpt")
	var matched []models.Usage
	if errFind := conn.Where(expr, arg).Find(&matched).Error; errFind != nil {
		t.Fatalf("query: %v", errFind)
	}
	if len(matched) != 1 || matched[0].ModelID != "GPT-4o" {
		t.Fatalf("matched = %+v, want the GPT-4o row", matched)
	}
}
