// internal/llm/providers/cortex/cortex.go
package cortex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Corphon/AvaChat/internal/llm"
	"github.com/Corphon/AvaChat/internal/utils"
)

const (
	Name = "cortex"

	DefaultTokenType   = "PROGRAMMATIC_ACCESS_TOKEN"
	DefaultOrigin      = "ava_chatbot"
	DefaultAnalystTool = "Fetii_Cortex_Analyst"
	DefaultSearchTool  = "Address_Venue_Search"
	DefaultLegacyModel = "claude-4-sonnet"
	DefaultTimeout     = 120 * time.Second

	maxErrorBody = 2048
)

func init() {
	llm.Register(Name, func() llm.Provider {
		return New()
	})
}

// Provider talks to a Snowflake Cortex agent through its :run endpoint.
type Provider struct {
	baseURL     string
	token       string
	tokenType   string
	database    string
	schema      string
	agent       string
	origin      string
	analystTool string
	searchTool  string
	legacyModel string
	timeout     time.Duration
	attempts    []Attempt

	client  *http.Client
	metrics *utils.APIMetrics
	logger  *utils.Logger
}

// New returns an uninitialized provider.
func New() *Provider {
	return &Provider{
		tokenType:   DefaultTokenType,
		origin:      DefaultOrigin,
		analystTool: DefaultAnalystTool,
		searchTool:  DefaultSearchTool,
		legacyModel: DefaultLegacyModel,
		timeout:     DefaultTimeout,
		attempts:    DefaultAttempts(),
		metrics:     utils.NewAPIMetrics(),
		logger:      utils.GetLogger(),
	}
}

func (p *Provider) Initialize(config map[string]string) error {
	p.token = strings.TrimSpace(config["token"])
	if p.token == "" {
		return errors.New("cortex token not provided")
	}

	switch {
	case config["base_url"] != "":
		p.baseURL = strings.TrimRight(config["base_url"], "/")
	case config["account"] != "":
		p.baseURL = "https://" + strings.ToLower(config["account"]) + ".snowflakecomputing.com"
	default:
		return errors.New("cortex account or base_url not provided")
	}

	p.database = config["database"]
	p.schema = config["schema"]
	p.agent = config["agent"]
	if p.database == "" || p.schema == "" || p.agent == "" {
		return errors.New("cortex database, schema and agent are required")
	}

	setIfPresent(&p.tokenType, config["token_type"])
	setIfPresent(&p.origin, config["origin_application"])
	setIfPresent(&p.analystTool, config["analyst_tool"])
	setIfPresent(&p.searchTool, config["search_tool"])
	setIfPresent(&p.legacyModel, config["legacy_model"])

	if raw := config["timeout"]; raw != "" {
		d, err := parseTimeout(raw)
		if err != nil {
			return fmt.Errorf("cortex timeout: %w", err)
		}
		p.timeout = d
	}

	attempts, err := SelectAttempts(config["attempts"])
	if err != nil {
		return err
	}
	p.attempts = attempts

	p.client = &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: p.timeout,
			IdleConnTimeout:       90 * time.Second,
		},
	}
	return nil
}

func (p *Provider) GetName() string {
	return "Snowflake Cortex Agent"
}

// Settings describes the provider without credentials.
func (p *Provider) Settings() map[string]string {
	return map[string]string{
		"base_url":     p.baseURL,
		"database":     p.database,
		"schema":       p.schema,
		"agent":        p.agent,
		"token_type":   p.tokenType,
		"token":        utils.MaskSecret(p.token),
		"run_url":      p.runURL(),
		"attempts":     strconv.Itoa(len(p.attempts)),
		"timeout":      p.timeout.String(),
		"origin":       p.origin,
		"legacy_model": p.legacyModel,
	}
}

func (p *Provider) runURL() string {
	return fmt.Sprintf("%s/api/v2/databases/%s/schemas/%s/agents/%s:run",
		p.baseURL, url.PathEscape(p.database), url.PathEscape(p.schema), url.PathEscape(p.agent))
}

func (p *Provider) threadsURL() string {
	return p.baseURL + "/api/v2/cortex/threads"
}

func (p *Provider) newRequest(ctx context.Context, method, target string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("X-Snowflake-Authorization-Token-Type", p.tokenType)
	req.Header.Set("Accept", "application/json, text/event-stream")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// CreateThread opens a conversation thread and returns its id.
func (p *Provider) CreateThread(ctx context.Context) (string, error) {
	return p.createThread(ctx, p.origin)
}

func (p *Provider) createThread(ctx context.Context, origin string) (string, error) {
	req, err := p.newRequest(ctx, http.MethodPost, p.threadsURL(), map[string]string{
		"origin_application": origin,
	})
	if err != nil {
		return "", err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return "", p.scrub(err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", p.statusError(resp.StatusCode, "create-thread", body)
	}

	id := strings.TrimSpace(strings.ReplaceAll(string(body), `"`, ""))
	if id == "" {
		return "", errors.New("empty thread id")
	}
	return id, nil
}

// run creates a thread, then walks the attempt list until one returns 2xx.
// The caller owns the returned response body.
func (p *Provider) run(ctx context.Context, req llm.CompletionRequest) (*http.Response, string, string, error) {
	threadID, err := p.CreateThread(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", "", ctx.Err()
		}
		p.logger.Warn("Thread creation failed, continuing with thread 0", map[string]interface{}{
			"error": err.Error(),
		})
		threadID = "0"
	}

	tid, convErr := strconv.ParseInt(threadID, 10, 64)
	if convErr != nil {
		tid = 0
	}
	turn := Turn{
		Message:     req.Prompt,
		ThreadID:    tid,
		Tools:       p.toolsFor(req.Prompt, req.Mode),
		LegacyModel: p.legacyModel,
	}
	if req.Model != "" {
		turn.LegacyModel = req.Model
	}

	var lastErr error
	for _, attempt := range p.attempts {
		httpReq, err := p.newRequest(ctx, http.MethodPost, p.runURL(), attempt.Build(turn))
		if err != nil {
			return nil, "", threadID, err
		}

		start := time.Now()
		resp, err := p.client.Do(httpReq)
		if err != nil {
			p.metrics.RecordUpstreamAttempt(Name, attempt.Name, 0, time.Since(start))
			if ctx.Err() != nil {
				return nil, attempt.Name, threadID, ctx.Err()
			}
			lastErr = fmt.Errorf("attempt %s: %w", attempt.Name, p.scrub(err))
			p.logger.Warn("Agent attempt failed", map[string]interface{}{
				"attempt": attempt.Name,
				"error":   lastErr.Error(),
			})
			continue
		}
		p.metrics.RecordUpstreamAttempt(Name, attempt.Name, resp.StatusCode, time.Since(start))

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			p.logger.Debug("Agent attempt succeeded", map[string]interface{}{
				"attempt": attempt.Name,
				"status":  resp.StatusCode,
			})
			return resp, attempt.Name, threadID, nil
		}

		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		statusErr := p.statusError(resp.StatusCode, attempt.Name, body)

		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden:
			return nil, attempt.Name, threadID, statusErr
		}

		p.logger.Warn("Agent attempt rejected", map[string]interface{}{
			"attempt": attempt.Name,
			"status":  resp.StatusCode,
		})
		lastErr = statusErr
	}

	if lastErr == nil {
		lastErr = errors.New("no agent attempts configured")
	}
	return nil, "", threadID, lastErr
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, attempt, threadID, err := p.run(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	text, err := llm.DecodeBody(ctx, resp.Header.Get("Content-Type"), resp.Body, nil)
	if err != nil {
		return nil, p.scrub(err)
	}

	return &llm.CompletionResponse{
		Text:         text,
		FinishReason: "stop",
		ModelName:    p.agent,
		ProviderName: p.GetName(),
		Endpoint:     p.runURL(),
		Attempt:      attempt,
		ThreadID:     threadID,
	}, nil
}

// StreamCompletion resolves the attempt list synchronously, then decodes the
// accepted body frame by frame in a goroutine.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	resp, attempt, _, err := p.run(ctx, req)
	if err != nil {
		return nil, err
	}

	respChan := make(chan llm.StreamResponse)

	go func() {
		defer resp.Body.Close()
		defer close(respChan)

		send := func(r llm.StreamResponse) error {
			select {
			case respChan <- r:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		full, err := llm.DecodeBody(ctx, resp.Header.Get("Content-Type"), resp.Body, func(delta string) error {
			return send(llm.StreamResponse{Text: delta, Attempt: attempt})
		})
		if err != nil {
			if ctx.Err() == nil {
				send(llm.StreamResponse{Text: full, Done: true, Err: p.scrub(err), Attempt: attempt})
			}
			return
		}

		send(llm.StreamResponse{
			Text:         full,
			FinishReason: "stop",
			ModelName:    p.agent,
			Attempt:      attempt,
			Done:         true,
		})
	}()

	return respChan, nil
}

func (p *Provider) statusError(status int, attempt string, body []byte) *llm.StatusError {
	return &llm.StatusError{
		StatusCode: status,
		Attempt:    attempt,
		Body:       utils.ScrubSecrets(strings.TrimSpace(string(body)), p.token),
	}
}

// scrub keeps the token out of transport errors.
func (p *Provider) scrub(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	clean := utils.ScrubSecrets(msg, p.token)
	if clean == msg {
		return err
	}
	return errors.New(clean)
}

func setIfPresent(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

// parseTimeout accepts a Go duration ("90s") or a number of seconds.
func parseTimeout(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(raw)
}
