// Package app wires the gateway together: database, provider registry,
// routing engine, telemetry, and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/lumenlabs/llm-gateway/internal/adapters"
	"github.com/lumenlabs/llm-gateway/internal/budget"
	"github.com/lumenlabs/llm-gateway/internal/config"
	"github.com/lumenlabs/llm-gateway/internal/db"
	adminapi "github.com/lumenlabs/llm-gateway/internal/http/api/admin"
	gatewayapi "github.com/lumenlabs/llm-gateway/internal/http/api/gateway"
	"github.com/lumenlabs/llm-gateway/internal/pricesync"
	"github.com/lumenlabs/llm-gateway/internal/ratelimit"
	"github.com/lumenlabs/llm-gateway/internal/registry"
	"github.com/lumenlabs/llm-gateway/internal/resolver"
	"github.com/lumenlabs/llm-gateway/internal/routing"
	"github.com/lumenlabs/llm-gateway/internal/secrets"
	"github.com/lumenlabs/llm-gateway/internal/usage"
)

const shutdownTimeout = 10 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg *config.Config) error {
	conn, errOpen := openDB(cfg)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the gateway with database-backed components and blocks
// until the context is cancelled.
func RunServer(ctx context.Context, cfg *config.Config, defaultPort int) error {
	conn, errOpen := openDB(cfg)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	if errAdmin := EnsureAdminFromEnv(conn); errAdmin != nil {
		return errAdmin
	}

	masterKey, errKey := cfg.ResolveMasterKey()
	if errKey != nil {
		return errKey
	}
	cipher, errCipher := secrets.NewCipher(masterKey)
	if errCipher != nil {
		return errCipher
	}

	adapterRegistry := adapters.NewRegistry()
	providerRegistry := registry.New(conn, cipher, adapterRegistry)
	featureResolver := resolver.New(conn)
	tracker := usage.NewTracker(conn)
	budgetManager := budget.NewManager(conn, tracker)
	engine := routing.NewEngine(conn, featureResolver, providerRegistry, tracker, budgetManager, budget.SmartOrder)
	limiter := ratelimit.NewManager(ratelimit.SettingsFromConfig(cfg), nil, nil)

	tracker.StartRollup(ctx, cfg.UsageRetentionDays)
	if cfg.PriceSync {
		pricesync.NewSyncer(conn).Start(ctx)
	}
	budgetManager.StartAlertLoop(ctx)

	router := buildRouter(conn, cfg, providerRegistry, featureResolver, budgetManager, tracker, engine, limiter)

	port := cfg.Port
	if port <= 0 {
		port = defaultPort
	}
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("gateway listening on :%d", port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return fmt.Errorf("app: shutdown: %w", errShutdown)
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

func openDB(cfg *config.Config) (*gorm.DB, error) {
	dsn, errDSN := cfg.DSN()
	if errDSN != nil {
		return nil, errDSN
	}
	return db.Open(dsn)
}

func buildRouter(
	conn *gorm.DB,
	cfg *config.Config,
	providerRegistry *registry.Registry,
	featureResolver *resolver.Resolver,
	budgetManager *budget.Manager,
	tracker *usage.Tracker,
	engine *routing.Engine,
	limiter *ratelimit.Manager,
) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	adminapi.RegisterAdminRoutes(router, adminapi.Deps{
		DB:       conn,
		Registry: providerRegistry,
		Resolver: featureResolver,
		Budget:   budgetManager,
		Tracker:  tracker,
		JWT:      cfg.JWT,
	})

	gatewayapi.RegisterGatewayRoutes(router, gatewayapi.Deps{
		DB:               conn,
		Engine:           engine,
		Limiter:          limiter,
		DefaultRateLimit: cfg.RateLimit,
	})

	return router
}

// corsMiddleware enables permissive CORS for the admin dashboard.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
