// Package admin registers the management API: provider and model CRUD,
// feature mappings, budgets, usage reporting, and caller key administration.
package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/budget"
	"github.com/lumenlabs/llm-gateway/internal/config"
	handlers "github.com/lumenlabs/llm-gateway/internal/http/api/admin/handlers"
	"github.com/lumenlabs/llm-gateway/internal/models"
	"github.com/lumenlabs/llm-gateway/internal/registry"
	"github.com/lumenlabs/llm-gateway/internal/resolver"
	"github.com/lumenlabs/llm-gateway/internal/security"
	"github.com/lumenlabs/llm-gateway/internal/usage"
)

// Deps carries the shared components the admin API operates on.
type Deps struct {
	DB       *gorm.DB
	Registry *registry.Registry
	Resolver *resolver.Resolver
	Budget   *budget.Manager
	Tracker  *usage.Tracker
	JWT      config.JWTConfig
}

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(deps.DB, deps.JWT))

	providerHandler := handlers.NewProviderHandler(deps.Registry)
	authed.POST("/providers", providerHandler.Create)
	authed.GET("/providers", providerHandler.List)
	authed.GET("/providers/:id", providerHandler.Get)
	authed.PUT("/providers/:id", providerHandler.Update)
	authed.DELETE("/providers/:id", providerHandler.Delete)
	authed.POST("/providers/:id/validate", providerHandler.Validate)
	authed.POST("/providers/:id/sync-models", providerHandler.SyncModels)
	authed.POST("/providers/:id/models", providerHandler.AddModel)
	authed.PUT("/models/:id", providerHandler.UpdateModel)
	authed.DELETE("/models/:id", providerHandler.RemoveModel)

	mappingHandler := handlers.NewMappingHandler(deps.DB, deps.Resolver)
	authed.POST("/feature-mappings", mappingHandler.Create)
	authed.GET("/feature-mappings", mappingHandler.List)
	authed.GET("/feature-mappings/:id", mappingHandler.Get)
	authed.PUT("/feature-mappings/:id", mappingHandler.Update)
	authed.DELETE("/feature-mappings/:id", mappingHandler.Delete)
	authed.GET("/feature-mappings/resolve/:feature", mappingHandler.Resolve)

	budgetHandler := handlers.NewBudgetHandler(deps.Budget)
	authed.GET("/budgets", budgetHandler.List)
	authed.GET("/budgets/:period", budgetHandler.Get)
	authed.PUT("/budgets/:period", budgetHandler.Upsert)
	authed.GET("/budgets/:period/status", budgetHandler.Status)
	authed.POST("/budgets/:period/reset", budgetHandler.Reset)
	authed.GET("/budgets/alerts", budgetHandler.CheckAlerts)

	usageHandler := handlers.NewUsageHandler(deps.DB)
	authed.GET("/usage", usageHandler.List)
	authed.GET("/usage/summary", usageHandler.Summary)
	authed.GET("/usage/monthly", usageHandler.Monthly)

	apiKeyHandler := handlers.NewAPIKeyHandler(deps.DB)
	authed.POST("/api-keys", apiKeyHandler.Create)
	authed.GET("/api-keys", apiKeyHandler.List)
	authed.DELETE("/api-keys/:id", apiKeyHandler.Revoke)

	priceHandler := handlers.NewPriceHandler(deps.DB)
	authed.GET("/model-prices", priceHandler.Get)
}

// adminAuthMiddleware validates admin JWTs and loads admin context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Next()
	}
}
