package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/meridian/internal/infra/config"
)

// NewRouter wires up the HTTP handlers and returns a configured server.
func NewRouter(cfg *config.Config, handler *Handler) *http.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(
		gin.Recovery(),
		errorHandlingMiddleware(handler.logger),
		requestLogger(handler.logger),
		corsMiddleware(cfg.HTTP.AllowedOrigins),
		rateLimitMiddleware(cfg.HTTP.RateLimit, handler.logger),
	)

	protected := router.Group("/")
	protected.Use(apiKeyMiddleware(cfg.Auth.APIKeys))
	{
		protected.POST("/ingest/folder", handler.IngestFolder)
		protected.GET("/tasks/:id", handler.GetTask)
		protected.DELETE("/tasks/:id", handler.RevokeTask)
		protected.POST("/search", handler.Search)
		protected.POST("/chat", handler.Chat)
		protected.GET("/chat/history/:id", handler.ChatHistory)
		protected.DELETE("/chat/history/:id", handler.DeleteChatHistory)
		protected.GET("/documents", handler.ListDocuments)
	}

	return &http.Server{
		Addr:           cfg.HTTP.Address,
		Handler:        withRetry(router, cfg.HTTP.Retry, handler.logger),
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		MaxHeaderBytes: 1 << 20,
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("http request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "latency_ms", latency.Milliseconds())
	}
}
