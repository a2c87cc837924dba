package app

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"cabdispatch/internal/handler"
	"cabdispatch/internal/middleware"
	"cabdispatch/internal/ratelimit"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	VehicleHandler    *handler.VehicleHandler
	RiderHandler      *handler.RiderHandler
	AssignmentHandler *handler.AssignmentHandler
	AdminHandler      *handler.AdminHandler
	Limiter           *ratelimit.Limiter
	RedisClient       *redis.Client
	NewRelicApp       *newrelic.Application
	Logger            logrus.FieldLogger
	// TrustedProxies lists the proxy IPs or CIDRs whose forwarding headers
	// name the client. Empty means the peer address is always the client.
	TrustedProxies []string
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) (*gin.Engine, error) {
	router := gin.New()
	router.RemoteIPHeaders = middleware.ForwardedIPHeaders
	if err := router.SetTrustedProxies(deps.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(middleware.LoggingMiddleware(deps.Logger))

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.Use(middleware.RateLimitMiddleware(deps.Limiter))
	v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger))
	{
		// Vehicle routes.
		vehicles := v1.Group("/vehicles")
		{
			vehicles.POST("", deps.VehicleHandler.Register)
			vehicles.GET("", deps.VehicleHandler.GetAll)
			vehicles.GET("/:id", deps.VehicleHandler.Get)
			vehicles.PUT("/:id", deps.VehicleHandler.Update)
			vehicles.DELETE("/:id", deps.VehicleHandler.Retire)
			vehicles.PUT("/:id/location", deps.VehicleHandler.UpdateLocation)
			vehicles.GET("/:id/active", deps.VehicleHandler.Active)
		}

		// Rider routes.
		riders := v1.Group("/riders")
		{
			riders.POST("", deps.RiderHandler.Register)
			riders.GET("", deps.RiderHandler.GetAll)
			riders.GET("/:id", deps.RiderHandler.Get)
			riders.PUT("/:id", deps.RiderHandler.Update)
			riders.DELETE("/:id", deps.RiderHandler.Retire)
			riders.PUT("/:id/location", deps.RiderHandler.UpdateLocation)
			riders.PUT("/:id/home", deps.RiderHandler.SetHome)
			riders.POST("/:id/request-ride", deps.RiderHandler.RequestRide)
			riders.GET("/:id/history", deps.RiderHandler.History)
		}

		// Assignment routes.
		assignments := v1.Group("/assignments")
		{
			assignments.GET("", deps.AssignmentHandler.GetAll)
			assignments.GET("/:id", deps.AssignmentHandler.Get)
			assignments.PUT("/:id/status", deps.AssignmentHandler.UpdateStatus)
		}

		// Admin routes.
		admin := v1.Group("/admin")
		{
			admin.POST("/dispatch/run", deps.AdminHandler.RunBatch)
			admin.POST("/assignments", deps.AdminHandler.ForceAssign)
			admin.GET("/administrators", deps.AdminHandler.ListAdministrators)
			admin.POST("/administrators", deps.AdminHandler.RegisterAdministrator)
		}
	}

	return router, nil
}
