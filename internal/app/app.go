// internal/app/app.go
package app

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/Corphon/AvaChat/internal/api"
	"github.com/Corphon/AvaChat/internal/config"
	"github.com/Corphon/AvaChat/internal/di"
	"github.com/Corphon/AvaChat/internal/services"
	"github.com/Corphon/AvaChat/internal/utils"

	// Provider registrations.
	_ "github.com/Corphon/AvaChat/internal/llm/providers/cortex"
	_ "github.com/Corphon/AvaChat/internal/llm/providers/openai"
)

const shutdownTimeout = 30 * time.Second

// App wires configuration, services and the HTTP server together.
type App struct {
	cfg       *config.AppConfig
	container *di.Container
	chat      *services.ChatService
	logger    *utils.Logger

	mu       sync.Mutex
	provider string
	llmCfg   map[string]string
	addr     net.Addr
	ready    chan struct{}
}

// InitLogger points the global logger at LogDir and applies LogLevel.
func InitLogger(cfg *config.AppConfig) error {
	logger := utils.GetLogger()
	logger.SetLogLevel(utils.ParseLogLevel(cfg.LogLevel))
	if cfg.LogDir == "" {
		return nil
	}
	return utils.InitLogger(filepath.Join(cfg.LogDir, "ava.log"))
}

// New builds the services for cfg and registers them in container.
func New(cfg *config.AppConfig, container *di.Container) *App {
	chat := services.NewChatService(cfg)

	container.Register(di.ServiceLLM, chat.LLMService)
	container.Register(di.ServiceStats, chat.Stats)
	container.Register(di.ServiceChat, chat)

	ready, state := chat.LLMService.GetProviderStatus()
	logger := utils.GetLogger()
	fields := map[string]interface{}{
		"provider": cfg.LLMProvider,
		"state":    state,
	}
	if ready {
		logger.Info("LLM provider ready", fields)
	} else {
		logger.Warn("LLM provider not ready; chat requests will fail until configured", fields)
	}

	return &App{
		cfg:       cfg,
		container: container,
		chat:      chat,
		logger:    logger,
		provider:  cfg.LLMProvider,
		llmCfg:    maps.Clone(cfg.LLMConfig),
		ready:     make(chan struct{}),
	}
}

// Run serves until ctx ends, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	router, err := api.SetupRouter(ctx, a.container)
	if err != nil {
		return fmt.Errorf("setup router: %w", err)
	}

	utils.NewAPIMetrics().StartMetricsCollection(ctx, 5*time.Minute)

	if a.cfg.ConfigFile != "" {
		if err := config.Watch(ctx, a.cfg.ConfigFile, a.ApplyConfig); err != nil {
			a.logger.Warn("Config hot reload disabled", map[string]interface{}{"error": err.Error()})
		}
	}

	listener, err := net.Listen("tcp", ":"+a.cfg.Port)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", a.cfg.Port, err)
	}
	a.mu.Lock()
	a.addr = listener.Addr()
	a.mu.Unlock()
	close(a.ready)

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(listener)
	}()

	a.logger.Info("Server started", map[string]interface{}{
		"addr":     listener.Addr().String(),
		"provider": a.cfg.LLMProvider,
		"debug":    a.cfg.DebugMode,
	})

	select {
	case err := <-serveErr:
		a.container.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = srv.Shutdown(shutdownCtx)
	if closeErr := a.container.Close(); closeErr != nil {
		a.logger.Warn("Service shutdown reported an error", map[string]interface{}{"error": closeErr.Error()})
	}
	if err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	a.logger.Info("Server stopped", nil)
	return nil
}

// Addr blocks until the server is listening and returns its address.
func (a *App) Addr(ctx context.Context) (net.Addr, error) {
	select {
	case <-a.ready:
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.addr, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ApplyConfig pushes a reloaded configuration into the running services.
// The provider is only rebuilt when its name or settings changed.
func (a *App) ApplyConfig(cfg *config.AppConfig) {
	a.chat.UpdateThresholds(cfg.Segmenter)
	utils.GetLogger().SetLogLevel(utils.ParseLogLevel(cfg.LogLevel))

	a.mu.Lock()
	changed := cfg.LLMProvider != a.provider || !maps.Equal(cfg.LLMConfig, a.llmCfg)
	if changed {
		a.provider = cfg.LLMProvider
		a.llmCfg = maps.Clone(cfg.LLMConfig)
	}
	a.mu.Unlock()

	if !changed {
		return
	}
	if err := a.chat.UpdateProvider(cfg.LLMProvider, cfg.LLMConfig); err != nil {
		a.logger.Error("Reloaded provider configuration is invalid", map[string]interface{}{
			"provider": cfg.LLMProvider,
			"error":    err.Error(),
		})
	}
}
