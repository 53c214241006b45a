package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"

	"courier/internal/handler"
	"courier/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	DeliveryHandler *handler.DeliveryHandler
	DriverHandler   *handler.DriverHandler
	FareHandler     *handler.FareHandler
	HealthHandler   *handler.HealthHandler
	RedisClient     *redis.Client
	NewRelicApp     *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.Idempotency(deps.RedisClient))

	router.GET("/health", deps.HealthHandler.Check)

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		deliveries := v1.Group("/deliveries")
		{
			deliveries.POST("", deps.DeliveryHandler.CreateDelivery)
			deliveries.GET("/:id", deps.DeliveryHandler.GetDelivery)
			deliveries.GET("/:id/track", deps.DeliveryHandler.GetTrack)
			deliveries.POST("/:id/status", deps.DeliveryHandler.UpdateStatus)
			deliveries.POST("/:id/cancel", deps.DeliveryHandler.CancelDelivery)
			deliveries.POST("/:id/rate", deps.DeliveryHandler.RateDelivery)
		}

		drivers := v1.Group("/drivers")
		{
			drivers.POST("/register", deps.DriverHandler.Register)
			drivers.GET("/available", deps.DriverHandler.ListAvailable)
			drivers.GET("/:id", deps.DriverHandler.GetDriver)
			drivers.POST("/:id/verify", deps.DriverHandler.Verify)
			drivers.POST("/:id/login", deps.DriverHandler.Login)
			drivers.POST("/:id/online", deps.DriverHandler.GoOnline)
			drivers.POST("/:id/offline", deps.DriverHandler.GoOffline)
			drivers.POST("/:id/accept", deps.DriverHandler.AcceptDelivery)
			drivers.POST("/:id/reject", deps.DriverHandler.RejectDelivery)
			drivers.POST("/:id/position", deps.DriverHandler.ReportPosition)
			drivers.GET("/:id/position", deps.DriverHandler.GetPosition)
		}

		fares := v1.Group("/fares")
		{
			fares.POST("/quote", deps.FareHandler.QuoteFare)
		}
	}

	return router
}
