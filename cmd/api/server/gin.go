package server

import (
	"net/http"
	"time"

	ginhandler "bookbridge/internal/adapter/gin/handler"
	ginrouter "bookbridge/internal/adapter/gin/router"
	grpcmiddleware "bookbridge/internal/adapter/grpc/middleware"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SetupGinServer creates and configures the Gin REST API server
func SetupGinServer(
	handler *ginhandler.UserHandler,
	rateLimiter *grpcmiddleware.RateLimiter,
	serviceName string,
	env string,
	ginAddr string,
	l *zap.Logger,
	checks ...ginrouter.ReadinessCheck,
) *http.Server {
	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := ginrouter.SetupRouter(handler, rateLimiter, serviceName, l, checks...)

	l.Info("Gin REST API configured", zap.String("address", ginAddr))

	return &http.Server{
		Addr:              ginAddr,
		Handler:           router,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
