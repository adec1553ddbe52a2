// internal/api/router.go
package api

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/AvaChat/internal/config"
	"github.com/Corphon/AvaChat/internal/di"
	"github.com/Corphon/AvaChat/internal/services"
	"github.com/Corphon/AvaChat/internal/utils"
)

// SetupRouter builds the HTTP surface from services in the container.
// Background loops owned by the router stop when ctx ends.
func SetupRouter(ctx context.Context, container *di.Container) (*gin.Engine, error) {
	cfg := config.GetCurrentConfig()

	chatService, err := di.Resolve[*services.ChatService](container, di.ServiceChat)
	if err != nil {
		return nil, fmt.Errorf("chat service not initialized: %w", err)
	}

	templates, err := filepath.Glob(filepath.Join(cfg.TemplatesDir, "*.html"))
	if err != nil || len(templates) == 0 {
		return nil, fmt.Errorf("no templates found in %s", cfg.TemplatesDir)
	}

	if !cfg.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics := utils.NewAPIMetrics()
	response := NewResponseHelper(cfg.DebugMode, configSecrets)

	wsManager := NewWebSocketManager(metrics.Collector())
	go wsManager.Run(ctx)

	limiter := NewRateLimiter()
	limiter.StartCleanup(ctx, 10*time.Minute)
	chatLimit := func() int { return config.GetCurrentConfig().ChatRateLimit }

	handler := NewHandler(chatService, wsManager, response, metrics)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(AccessLogMiddleware(metrics))
	r.Use(corsMiddleware())

	r.Static("/static", cfg.StaticDir)
	r.LoadHTMLFiles(templates...)

	r.GET("/", handler.IndexPage)
	r.GET("/ws/chat", ChatRateLimit(limiter, chatLimit, response), handler.ChatWebSocket)

	api := r.Group("/api")
	{
		api.GET("/health", handler.Health)
		api.GET("/settings", handler.GetSettings)
		api.GET("/metrics", handler.GetMetrics)
		api.POST("/segment", handler.Segment)

		chatGroup := api.Group("/chat", ChatRateLimit(limiter, chatLimit, response))
		{
			chatGroup.POST("", handler.PostChat)
			chatGroup.POST("/stream", handler.ChatStream)
		}

		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.PUT("/config", RequireAdmin(response), handler.UpdateLLMConfig)
		}

		api.GET("/agent/diagnostics", handler.AgentDiagnostics)
	}

	return r, nil
}

// configSecrets lists credential values that must never reach a client.
func configSecrets() []string {
	cfg := config.GetCurrentConfig()
	secrets := []string{cfg.AdminToken}
	for k, v := range cfg.LLMConfig {
		if utils.IsSecretKey(k) {
			secrets = append(secrets, v)
		}
	}
	return secrets
}
