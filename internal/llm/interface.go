// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var ErrUnknownProvider = errors.New("unknown provider")

// Chat modes understood by providers that route by intent.
const (
	ModeAnalytics = "analytics"
	ModeResearch  = "research"
)

// CompletionRequest is one user turn sent upstream.
type CompletionRequest struct {
	Prompt       string `json:"prompt"`
	Mode         string `json:"mode,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// CompletionResponse carries the raw upstream text and where it came from.
type CompletionResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
	Endpoint     string `json:"endpoint,omitempty"`
	Attempt      string `json:"attempt,omitempty"`
	ThreadID     string `json:"thread_id,omitempty"`
}

// StreamResponse is one incremental chunk. The last value on a channel has
// Done set and carries the full accumulated text, or Err on failure.
type StreamResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	Attempt      string `json:"attempt,omitempty"`
	Done         bool   `json:"done"`
	Err          error  `json:"-"`
}

// Provider is implemented by every upstream agent or model backend.
type Provider interface {
	// Initialize configures the provider. Keys are provider specific.
	Initialize(config map[string]string) error

	GetName() string

	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// StreamCompletion returns a channel that is closed after the final
	// Done or Err value, or when ctx is cancelled.
	StreamCompletion(ctx context.Context, req CompletionRequest) (<-chan StreamResponse, error)
}

// Diagnoser is implemented by providers that can probe their upstream.
type Diagnoser interface {
	Diagnose(ctx context.Context) (*DiagnosticReport, error)
}

// Describer is implemented by providers that can report their settings.
// Secrets must be masked.
type Describer interface {
	Settings() map[string]string
}

// Check statuses.
const (
	CheckPass = "pass"
	CheckWarn = "warn"
	CheckFail = "fail"
)

// Check is the outcome of one diagnostic probe.
type Check struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Detail     string `json:"detail,omitempty"`
	ElapsedMS  int64  `json:"elapsed_ms"`
}

// DiagnosticReport summarizes a diagnostics run. It never contains credentials.
type DiagnosticReport struct {
	Provider        string            `json:"provider"`
	Healthy         bool              `json:"healthy"`
	Checks          []Check           `json:"checks"`
	Recommendations []string          `json:"recommendations,omitempty"`
	Settings        map[string]string `json:"settings,omitempty"`
	GeneratedAt     time.Time         `json:"generated_at"`
}

// Add appends a check and clears Healthy on failure.
func (r *DiagnosticReport) Add(c Check) {
	r.Checks = append(r.Checks, c)
	if c.Status == CheckFail {
		r.Healthy = false
	}
}

// StatusError is returned when the upstream answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Attempt    string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Attempt != "" {
		return fmt.Sprintf("upstream %s returned %d: %s", e.Attempt, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// ProviderFactory builds an uninitialized provider.
type ProviderFactory func() Provider

var (
	registryMu sync.RWMutex
	providers  = make(map[string]ProviderFactory)
)

// Register makes a provider available by name. Called from provider init.
func Register(name string, factory ProviderFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	providers[name] = factory
}

// GetProvider creates and initializes the named provider.
func GetProvider(name string, config map[string]string) (Provider, error) {
	registryMu.RLock()
	factory, exists := providers[name]
	registryMu.RUnlock()
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", name, err)
	}
	return provider, nil
}

// ListProviders returns the registered provider names, sorted.
func ListProviders() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
