// internal/services/chat_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/Corphon/AvaChat/internal/config"
	apperrors "github.com/Corphon/AvaChat/internal/errors"
	"github.com/Corphon/AvaChat/internal/llm"
	"github.com/Corphon/AvaChat/internal/segmenter"
	"github.com/Corphon/AvaChat/internal/utils"
)

// MaxMessageLength bounds a single user message, in characters.
const MaxMessageLength = 4000

// EmptyAnswer is shown when the upstream returned no usable text.
const EmptyAnswer = "No content in response"

// Stream event types.
const (
	EventChunk  = "chunk"
	EventResult = "result"
	EventError  = "error"
)

var ErrDiagnosticsUnsupported = errors.New("provider does not support diagnostics")

// ChatRequest is one user turn from the page.
type ChatRequest struct {
	Message string `json:"message"`
	Mode    string `json:"mode,omitempty"`
}

// ChatReply is a segmented agent answer.
type ChatReply struct {
	Thinking     string `json:"thinking,omitempty"`
	Response     string `json:"response"`
	ResponseHTML string `json:"response_html,omitempty"`
	Strategy     string `json:"strategy"`
	Provider     string `json:"provider"`
	Model        string `json:"model,omitempty"`
	Attempt      string `json:"attempt,omitempty"`
	ElapsedMS    int64  `json:"elapsed_ms"`
}

// StreamEvent is pushed to stream consumers. Error events carry a
// client-safe message and code.
type StreamEvent struct {
	Type  string     `json:"type"`
	Text  string     `json:"text,omitempty"`
	Reply *ChatReply `json:"reply,omitempty"`
	Error string     `json:"error,omitempty"`
	Code  string     `json:"code,omitempty"`
}

// ServiceStatus describes the active provider.
type ServiceStatus struct {
	Ready      bool                 `json:"ready"`
	State      string               `json:"state"`
	Provider   string               `json:"provider"`
	Providers  []string             `json:"providers"`
	Thresholds segmenter.Thresholds `json:"thresholds"`
}

// ChatService turns user messages into segmented agent replies.
type ChatService struct {
	LLMService *LLMService
	Stats      *StatsService

	mu         sync.RWMutex
	segmenter  *segmenter.Segmenter
	thresholds segmenter.Thresholds

	renderer *Renderer
	metrics  *utils.APIMetrics
	logger   *utils.Logger
}

// NewChatService builds the provider and segmenter from cfg.
func NewChatService(cfg *config.AppConfig) *ChatService {
	var th segmenter.Thresholds
	if cfg != nil {
		th = cfg.Segmenter
	}
	return NewChatServiceWith(NewLLMService(cfg), NewStatsService(), th)
}

// NewChatServiceWith assembles a service from existing parts.
func NewChatServiceWith(llmService *LLMService, stats *StatsService, th segmenter.Thresholds) *ChatService {
	th = th.WithDefaults()
	return &ChatService{
		LLMService: llmService,
		Stats:      stats,
		segmenter:  segmenter.New(th),
		thresholds: th,
		renderer:   NewRenderer(),
		metrics:    utils.NewAPIMetrics(),
		logger:     utils.GetLogger(),
	}
}

// Validate normalizes req in place and rejects unusable input.
func (s *ChatService) Validate(req *ChatRequest) error {
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" {
		return apperrors.NewValidationError("message is required", nil)
	}
	if utf8.RuneCountInString(req.Message) > MaxMessageLength {
		return apperrors.NewValidationError(
			fmt.Sprintf("message exceeds %d characters", MaxMessageLength), nil)
	}

	req.Mode = strings.ToLower(strings.TrimSpace(req.Mode))
	switch req.Mode {
	case "":
		req.Mode = llm.ModeAnalytics
	case llm.ModeAnalytics, llm.ModeResearch:
	default:
		return apperrors.NewValidationError(fmt.Sprintf("unknown mode %q", req.Mode), nil)
	}
	return nil
}

// Ask sends one message and waits for the full reply.
func (s *ChatService) Ask(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if err := s.Validate(&req); err != nil {
		return nil, err
	}

	start := time.Now()
	resp, providerName, err := s.LLMService.Complete(ctx, s.completionRequest(req))
	if err != nil {
		return nil, s.fail(providerName, err)
	}

	return s.finish(resp.Text, providerName, resp.ModelName, resp.Attempt, start), nil
}

// Stream sends one message and reports deltas through emit, finishing with
// a result or error event. Validation and readiness failures are returned
// without emitting so callers can answer with a plain error response.
func (s *ChatService) Stream(ctx context.Context, req ChatRequest, emit func(StreamEvent) error) error {
	if err := s.Validate(&req); err != nil {
		return err
	}
	if !s.LLMService.IsReady() {
		_, state := s.LLMService.GetProviderStatus()
		return apperrors.NewUnavailableError("chat service is not ready", fmt.Errorf("%w: %s", ErrLLMNotReady, state))
	}

	start := time.Now()
	ch, providerName, err := s.LLMService.Stream(ctx, s.completionRequest(req))
	if err != nil {
		return s.emitFailure(emit, s.fail(providerName, err))
	}

	for {
		select {
		case <-ctx.Done():
			s.Stats.RecordFailure()
			return ctx.Err()

		case chunk, ok := <-ch:
			if !ok {
				s.Stats.RecordFailure()
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return s.emitFailure(emit, apperrors.NewUpstreamError("agent stream ended unexpectedly", nil))
			}
			if chunk.Err != nil {
				return s.emitFailure(emit, s.fail(providerName, chunk.Err))
			}
			if chunk.Done {
				reply := s.finish(chunk.Text, providerName, chunk.ModelName, chunk.Attempt, start)
				return emit(StreamEvent{Type: EventResult, Reply: reply})
			}
			if chunk.Text == "" {
				continue
			}
			if err := emit(StreamEvent{Type: EventChunk, Text: chunk.Text}); err != nil {
				return err
			}
		}
	}
}

// Segment splits text with the current thresholds.
func (s *ChatService) Segment(text string) segmenter.Result {
	s.mu.RLock()
	seg := s.segmenter
	s.mu.RUnlock()
	return seg.Segment(text)
}

// Strategies lists matcher names in evaluation order.
func (s *ChatService) Strategies() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.segmenter.Strategies()
}

// UpdateThresholds rebuilds the segmenter.
func (s *ChatService) UpdateThresholds(th segmenter.Thresholds) {
	th = th.WithDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	if th == s.thresholds {
		return
	}
	s.segmenter = segmenter.New(th)
	s.thresholds = th
	s.logger.Info("Segmenter thresholds updated", map[string]interface{}{
		"generic_min_reasoning": th.GenericMinReasoning,
		"summary_min_reasoning": th.SummaryMinReasoning,
	})
}

// UpdateProvider replaces the upstream provider.
func (s *ChatService) UpdateProvider(name string, cfg map[string]string) error {
	if err := s.LLMService.UpdateProvider(name, cfg); err != nil {
		return apperrors.NewValidationError("invalid provider configuration", err)
	}
	s.logger.Info("LLM provider updated", map[string]interface{}{"provider": name})
	return nil
}

// Status reports provider readiness.
func (s *ChatService) Status() ServiceStatus {
	ready, state := s.LLMService.GetProviderStatus()
	s.mu.RLock()
	th := s.thresholds
	s.mu.RUnlock()
	return ServiceStatus{
		Ready:      ready,
		State:      state,
		Provider:   s.LLMService.GetProviderName(),
		Providers:  llm.ListProviders(),
		Thresholds: th,
	}
}

// Settings returns the provider's masked settings, if it reports any.
func (s *ChatService) Settings() map[string]string {
	if d, ok := s.LLMService.GetProvider().(llm.Describer); ok {
		return d.Settings()
	}
	return map[string]string{}
}

// Diagnose probes the upstream when the provider supports it.
func (s *ChatService) Diagnose(ctx context.Context) (*llm.DiagnosticReport, error) {
	provider := s.LLMService.GetProvider()
	if provider == nil {
		_, state := s.LLMService.GetProviderStatus()
		return nil, apperrors.NewUnavailableError("chat service is not ready", errors.New(state))
	}
	d, ok := provider.(llm.Diagnoser)
	if !ok {
		return nil, ErrDiagnosticsUnsupported
	}
	return d.Diagnose(ctx)
}

func (s *ChatService) completionRequest(req ChatRequest) llm.CompletionRequest {
	return llm.CompletionRequest{Prompt: req.Message, Mode: req.Mode}
}

func (s *ChatService) finish(text, providerName, model, attempt string, start time.Time) *ChatReply {
	result := s.Segment(text)
	if result.Answer == "" {
		result.Answer = EmptyAnswer
	}

	elapsed := time.Since(start)
	s.Stats.RecordChat(providerName, result.Strategy)
	s.metrics.RecordChat(providerName, result.Strategy, elapsed)

	return &ChatReply{
		Thinking:     result.Reasoning,
		Response:     result.Answer,
		ResponseHTML: s.renderer.Render(result.Answer),
		Strategy:     result.Strategy,
		Provider:     providerName,
		Model:        model,
		Attempt:      attempt,
		ElapsedMS:    elapsed.Milliseconds(),
	}
}

// fail maps a provider error onto the typed application errors.
func (s *ChatService) fail(providerName string, err error) error {
	s.Stats.RecordFailure()

	appErr := classify(err)
	s.metrics.RecordError(string(appErr.Type), "chat_"+providerName)
	return appErr
}

func classify(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, ErrLLMNotReady):
		return apperrors.NewUnavailableError("chat service is not ready", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewTimeoutError("agent did not answer in time", err)
	case errors.Is(err, context.Canceled):
		return apperrors.NewProcessingError("request cancelled", err)
	}

	var statusErr *llm.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperrors.NewUnauthorizedError("agent rejected the configured credentials", err)
		case http.StatusNotFound:
			return apperrors.NewNotFoundError("agent not found", err)
		case http.StatusTooManyRequests:
			return apperrors.NewAppError(apperrors.ErrorTypeRateLimited, "agent is rate limiting requests", err)
		}
		return apperrors.NewUpstreamError(fmt.Sprintf("agent request failed with status %d", statusErr.StatusCode), err)
	}

	return apperrors.NewUpstreamError("agent request failed", err)
}

func (s *ChatService) emitFailure(emit func(StreamEvent) error, err error) error {
	appErr := classify(err)
	code := appErr.Code
	if code == "" {
		code = string(appErr.Type)
	}
	if emitErr := emit(StreamEvent{Type: EventError, Error: appErr.Message, Code: code}); emitErr != nil {
		s.logger.Warn("Failed to deliver stream error", map[string]interface{}{"error": emitErr.Error()})
	}
	return appErr
}

// Close releases background jobs.
func (s *ChatService) Close() error {
	if s.Stats != nil {
		return s.Stats.Close()
	}
	return nil
}
