// internal/services/llm_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Corphon/AvaChat/internal/config"
	"github.com/Corphon/AvaChat/internal/llm"
)

var ErrLLMNotReady = errors.New("llm service not ready")

// LLMService owns the active upstream provider and its readiness state.
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	providerName  string
	isReady       bool
	readyState    string
}

// NewLLMService builds the provider named in cfg. A provider that fails to
// initialize leaves the service in a not-ready state instead of failing.
func NewLLMService(cfg *config.AppConfig) *LLMService {
	service := &LLMService{readyState: "Uninitialized"}
	if cfg == nil || cfg.LLMProvider == "" {
		service.readyState = "LLM provider not configured"
		return service
	}
	service.providerName = cfg.LLMProvider

	provider, err := llm.GetProvider(cfg.LLMProvider, cfg.LLMConfig)
	if err != nil {
		service.readyState = fmt.Sprintf("Initialization failed: %v", err)
		return service
	}

	service.provider = provider
	service.isReady = true
	service.readyState = "Ready"
	return service
}

// NewLLMServiceWithProvider wraps an already initialized provider.
func NewLLMServiceWithProvider(name string, provider llm.Provider) *LLMService {
	service := &LLMService{
		provider:     provider,
		providerName: name,
		isReady:      provider != nil,
		readyState:   "Ready",
	}
	if provider == nil {
		service.readyState = "Uninitialized"
	}
	return service
}

func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady
}

// GetProviderStatus returns readiness and a human readable state.
func (s *LLMService) GetProviderStatus() (bool, string) {
	if s == nil {
		return false, "LLM service not initialized"
	}
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady, s.readyState
}

// UpdateProvider swaps in a newly initialized provider. On failure the
// service becomes not ready and the previous provider is dropped.
func (s *LLMService) UpdateProvider(providerName string, cfg map[string]string) error {
	provider, err := llm.GetProvider(providerName, cfg)

	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.providerName = providerName
	if err != nil {
		s.provider = nil
		s.isReady = false
		s.readyState = fmt.Sprintf("Configuration failed: %v", err)
		return err
	}

	s.provider = provider
	s.isReady = true
	s.readyState = "Ready"
	return nil
}

func (s *LLMService) GetProvider() llm.Provider {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider
}

func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

func (s *LLMService) active() (llm.Provider, string, error) {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	if s.provider == nil || !s.isReady {
		return nil, s.providerName, fmt.Errorf("%w: %s", ErrLLMNotReady, s.readyState)
	}
	return s.provider, s.providerName, nil
}

// Complete sends one request to the active provider.
func (s *LLMService) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, string, error) {
	provider, name, err := s.active()
	if err != nil {
		return nil, name, err
	}
	resp, err := provider.CompleteText(ctx, req)
	return resp, name, err
}

// Stream opens a streaming request on the active provider.
func (s *LLMService) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, string, error) {
	provider, name, err := s.active()
	if err != nil {
		return nil, name, err
	}
	ch, err := provider.StreamCompletion(ctx, req)
	return ch, name, err
}
