// internal/api/handlers.go
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/AvaChat/internal/config"
	apperrors "github.com/Corphon/AvaChat/internal/errors"
	"github.com/Corphon/AvaChat/internal/llm"
	"github.com/Corphon/AvaChat/internal/services"
	"github.com/Corphon/AvaChat/internal/utils"
)

// Handler serves the chat page and JSON API.
type Handler struct {
	Chat      *services.ChatService
	WebSocket *WebSocketManager
	Response  *ResponseHelper
	Metrics   *utils.APIMetrics

	startedAt time.Time
	logger    *utils.Logger
}

// Suggestion is a canned question shown on the landing page.
type Suggestion struct {
	Text     string `json:"text"`
	Emoji    string `json:"emoji"`
	Category string `json:"category"`
}

// Mode is a selectable chat mode.
type Mode struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

var (
	suggestedQuestions = []Suggestion{
		{Text: "Show me daily trip volumes for last week", Emoji: "📊", Category: "Analytics"},
		{Text: "What's the difference between booked vs actual riders?", Emoji: "📈", Category: "Analytics"},
		{Text: "What age groups ride most on weekends?", Emoji: "👥", Category: "Demographics"},
	}
	chatModes = []Mode{
		{ID: llm.ModeAnalytics, Name: "Analytics"},
		{ID: llm.ModeResearch, Name: "Research"},
	}
)

func NewHandler(chat *services.ChatService, ws *WebSocketManager, response *ResponseHelper, metrics *utils.APIMetrics) *Handler {
	return &Handler{
		Chat:      chat,
		WebSocket: ws,
		Response:  response,
		Metrics:   metrics,
		startedAt: time.Now(),
		logger:    utils.GetLogger(),
	}
}

// greeting picks a salutation for the hour of t.
func greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "Good morning"
	case h < 18:
		return "Good afternoon"
	default:
		return "Good evening"
	}
}

// IndexPage renders the chat page.
func (h *Handler) IndexPage(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{
		"Title":       "Ava Intelligence",
		"Greeting":    greeting(time.Now()),
		"Modes":       chatModes,
		"Suggestions": suggestedQuestions,
	})
}

// PostChat answers one message with a segmented reply.
func (h *Handler) PostChat(c *gin.Context) {
	var req services.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorMessageInvalid, "Invalid request body", err.Error())
		return
	}

	reply, err := h.Chat.Ask(c.Request.Context(), req)
	if err != nil {
		h.logChatError(c, err)
		h.Response.AppError(c, err, ErrorChatFailed)
		return
	}
	h.Response.Success(c, reply)
}

// ChatStream answers one message as server-sent events: connected, any
// number of chunk events, then result or error.
func (h *Handler) ChatStream(c *gin.Context) {
	var req services.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorMessageInvalid, "Invalid request body", err.Error())
		return
	}
	if err := h.Chat.Validate(&req); err != nil {
		h.Response.AppError(c, err, ErrorMessageInvalid)
		return
	}
	if !h.Chat.LLMService.IsReady() {
		_, state := h.Chat.LLMService.GetProviderStatus()
		h.Response.Error(c, http.StatusServiceUnavailable, ErrorLLMServiceUnavailable, "Chat service is not ready", state)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	h.writeEvent(c, "connected", gin.H{"request_id": c.GetString(requestIDKey)})

	err := h.Chat.Stream(c.Request.Context(), req, func(ev services.StreamEvent) error {
		if c.Request.Context().Err() != nil {
			return c.Request.Context().Err()
		}
		return h.writeEvent(c, ev.Type, ev)
	})
	if err != nil {
		h.logChatError(c, err)
	}
}

func (h *Handler) writeEvent(c *gin.Context, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	c.Writer.Flush()
	return nil
}

func (h *Handler) logChatError(c *gin.Context, err error) {
	fields := map[string]interface{}{
		"request_id": c.GetString(requestIDKey),
		"status":     apperrors.StatusOf(err),
		"error":      h.Response.scrub(err.Error()),
	}
	if apperrors.IsValidationError(err) || errors.Is(err, c.Request.Context().Err()) {
		h.logger.Debug("Chat request ended", fields)
		return
	}
	h.logger.Warn("Chat request failed", fields)
}

// Segment splits arbitrary text, for tuning the heuristics.
func (h *Handler) Segment(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "Invalid request body", err.Error())
		return
	}
	h.Response.Success(c, gin.H{
		"result":     h.Chat.Segment(req.Text),
		"strategies": h.Chat.Strategies(),
	})
}

// GetLLMStatus reports provider readiness.
func (h *Handler) GetLLMStatus(c *gin.Context) {
	h.Response.Success(c, h.Chat.Status())
}

// UpdateLLMConfig swaps the provider at runtime. Changes live in memory only.
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req struct {
		Provider string            `json:"provider" binding:"required"`
		Config   map[string]string `json:"config"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "Invalid request body", err.Error())
		return
	}

	if err := h.Chat.UpdateProvider(req.Provider, req.Config); err != nil {
		h.Response.AppError(c, err, ErrorLLMConfigInvalid)
		return
	}
	if err := config.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		h.Response.InternalError(c, "Provider updated but settings were not recorded", err.Error())
		return
	}
	h.Response.Success(c, h.Chat.Status(), "LLM provider updated")
}

// GetSettings returns the effective configuration with secrets masked.
func (h *Handler) GetSettings(c *gin.Context) {
	settings := config.GetCurrentConfig().Sanitized()
	settings["provider_settings"] = h.Chat.Settings()
	h.Response.Success(c, settings)
}

// AgentDiagnostics probes the upstream agent.
func (h *Handler) AgentDiagnostics(c *gin.Context) {
	report, err := h.Chat.Diagnose(c.Request.Context())
	switch {
	case errors.Is(err, services.ErrDiagnosticsUnsupported):
		h.Response.Error(c, http.StatusNotImplemented, ErrorNotImplemented, "The active provider does not support diagnostics")
		return
	case err != nil:
		h.Response.AppError(c, err, ErrorDiagnosticsFailed)
		return
	}
	h.Response.Success(c, report)
}

// GetMetrics returns counters, usage stats and websocket state.
func (h *Handler) GetMetrics(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"metrics":   h.Metrics.Collector().GetMetrics(),
		"usage":     h.Chat.Stats.GetUsageStats(),
		"websocket": h.WebSocket.GetStatus(),
	})
}

// Health is the liveness probe.
func (h *Handler) Health(c *gin.Context) {
	ready, state := h.Chat.LLMService.GetProviderStatus()
	h.Response.Success(c, gin.H{
		"status":      "ok",
		"llm_ready":   ready,
		"llm_state":   state,
		"uptime_secs": int64(time.Since(h.startedAt).Seconds()),
	})
}
