package router

import (
	"github.com/gin-gonic/gin"

	"batchforge/internal/handler"
	"batchforge/internal/middleware"
)

// Options carries the settings Setup needs besides the handlers.
type Options struct {
	// DefaultAPIKey is used for requests that send no bearer token.
	DefaultAPIKey  string
	AllowedOrigins []string
}

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	batchH *handler.BatchHandler,
	healthH *handler.HealthHandler,
	opts Options,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(opts.AllowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")
	batches := v1.Group("/batches")

	// Local-only routes, the provider is never contacted
	batches.POST("/preview", batchH.Preview)
	batches.GET("", batchH.List)

	// Provider routes - require a resolvable API key
	provider := batches.Group("")
	provider.Use(middleware.ProviderKey(opts.DefaultAPIKey))
	provider.POST("", batchH.Create)
	provider.GET("/:id", batchH.GetStatus)
	provider.GET("/:id/results", batchH.GetResults)
	provider.POST("/:id/export", batchH.Export)

	return r
}
