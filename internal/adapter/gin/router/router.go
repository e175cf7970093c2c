package router

import (
	"context"
	_ "embed"
	"net/http"
	"time"

	"bookbridge/internal/adapter/gin/handler"
	"bookbridge/internal/adapter/gin/middleware"
	grpcmiddleware "bookbridge/internal/adapter/grpc/middleware"

	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

//go:embed openapi.json
var openAPIDoc []byte

// OpenAPIPath is where the embedded OpenAPI document is served.
const OpenAPIPath = "/openapi.json"

// ReadinessCheck probes one dependency for GET /ready.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// SetupRouter configures and returns a Gin router with all routes and middleware.
// rateLimiter may be nil.
func SetupRouter(
	userHandler *handler.UserHandler,
	rateLimiter *grpcmiddleware.RateLimiter,
	serviceName string,
	log *zap.Logger,
	checks ...ReadinessCheck,
) *gin.Engine {
	router := gin.New()
	// ClientIP is the socket peer; forwarding headers are client controlled
	if err := router.SetTrustedProxies(nil); err != nil {
		log.Warn("failed to reset trusted proxies", zap.Error(err))
	}

	// Global middleware
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	})

	router.GET("/ready", readiness(checks, log))

	router.GET(OpenAPIPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", openAPIDoc)
	})
	router.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(httpSwagger.URL(OpenAPIPath))))

	users := router.Group("/usuarios", middleware.RateLimiter(rateLimiter))
	{
		users.POST("", userHandler.CreateUser)
		users.GET("", userHandler.ListUsers)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	return router
}

// readiness answers 200 when every check passes and 503 otherwise.
func readiness(checks []ReadinessCheck, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		results := make(map[string]string, len(checks))
		ready := true
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				log.Warn("readiness check failed", zap.String("check", check.Name), zap.Error(err))
				results[check.Name] = "unavailable"
				ready = false
				continue
			}
			results[check.Name] = "ok"
		}

		if !ready {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "service not ready", "checks": results})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": results})
	}
}
