// Package gateway registers the caller-facing generation API: API key
// authentication, per-key rate limiting, and the generate endpoints.
package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/models"
	"github.com/lumenlabs/llm-gateway/internal/ratelimit"
	"github.com/lumenlabs/llm-gateway/internal/routing"
	"github.com/lumenlabs/llm-gateway/internal/security"
)

const contextKeyAPIKeyID = "apiKeyID"

// Deps carries the shared components the gateway API operates on.
type Deps struct {
	DB               *gorm.DB
	Engine           *routing.Engine
	Limiter          *ratelimit.Manager
	DefaultRateLimit int
}

// RegisterGatewayRoutes registers generation routes and caller middleware.
func RegisterGatewayRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil || deps.Engine == nil {
		return
	}

	group := r.Group("/v1")
	group.Use(apiKeyAuthMiddleware(deps.DB))
	group.Use(rateLimitMiddleware(deps))

	handler := NewGenerateHandler(deps.Engine)
	group.POST("/generate", handler.Generate)
	group.POST("/generate/stream", handler.GenerateStream)
	group.POST("/generate/vision", handler.GenerateVision)
}

// apiKeyAuthMiddleware authenticates callers by API key digest.
func apiKeyAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractAPIKey(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}

		var row models.APIKey
		errFind := db.WithContext(c.Request.Context()).
			Where("key_hash = ?", security.HashAPIKey(token)).
			Take(&row).Error
		if errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth failed"})
			return
		}
		if !row.IsEnabled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "api key disabled"})
			return
		}

		now := time.Now().UTC()
		if errTouch := db.WithContext(c.Request.Context()).Model(&models.APIKey{}).
			Where("id = ?", row.ID).
			Update("last_used_at", &now).Error; errTouch != nil {
			log.WithError(errTouch).Warn("update api key last_used_at failed")
		}

		c.Set(contextKeyAPIKeyID, row.ID)
		c.Next()
	}
}

// rateLimitMiddleware enforces the caller's resolved requests-per-second cap.
func rateLimitMiddleware(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Limiter == nil {
			c.Next()
			return
		}
		keyID := apiKeyIDFrom(c)
		if keyID == 0 {
			c.Next()
			return
		}

		decision, errResolve := ratelimit.ResolveLimit(c.Request.Context(), deps.DB, keyID, deps.DefaultRateLimit)
		if errResolve != nil {
			log.WithError(errResolve).Warn("rate limit resolve failed")
			c.Next()
			return
		}
		key := ratelimit.KeyForDecision(keyID, decision)
		if key == "" {
			c.Next()
			return
		}

		result, errAllow := deps.Limiter.Allow(c.Request.Context(), key, decision.Limit)
		if errAllow != nil {
			log.WithError(errAllow).Warn("rate limit check failed")
			c.Next()
			return
		}
		if !result.Allowed {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func extractAPIKey(c *gin.Context) string {
	if header := strings.TrimSpace(c.GetHeader("X-API-Key")); header != "" {
		return header
	}
	authHeader := c.GetHeader("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return ""
	}
	return strings.TrimSpace(token)
}

func apiKeyIDFrom(c *gin.Context) uint64 {
	value, ok := c.Get(contextKeyAPIKeyID)
	if !ok {
		return 0
	}
	id, ok := value.(uint64)
	if !ok {
		return 0
	}
	return id
}
