// internal/llm/providers/openai/openai.go
package openai

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	openaisdk "github.com/sashabaranov/go-openai"

	"github.com/Corphon/AvaChat/internal/llm"
	"github.com/Corphon/AvaChat/internal/utils"
)

const (
	Name         = "openai"
	DefaultModel = "gpt-4o-mini"
)

func init() {
	llm.Register(Name, func() llm.Provider {
		return &Provider{defaultModel: DefaultModel}
	})
}

// Provider serves any OpenAI-compatible chat completions endpoint.
type Provider struct {
	client       *openaisdk.Client
	apiKey       string
	baseURL      string
	defaultModel string
	systemPrompt string
	metrics      *utils.APIMetrics
}

func (p *Provider) Initialize(config map[string]string) error {
	p.apiKey = strings.TrimSpace(config["api_key"])
	if p.apiKey == "" {
		return errors.New("openai api key not provided")
	}

	cfg := openaisdk.DefaultConfig(p.apiKey)
	if baseURL := strings.TrimRight(config["base_url"], "/"); baseURL != "" {
		cfg.BaseURL = baseURL
		p.baseURL = baseURL
	} else {
		p.baseURL = cfg.BaseURL
	}
	if model := config["default_model"]; model != "" {
		p.defaultModel = model
	}
	p.systemPrompt = config["system_prompt"]

	p.client = openaisdk.NewClientWithConfig(cfg)
	p.metrics = utils.NewAPIMetrics()
	return nil
}

func (p *Provider) GetName() string {
	return "OpenAI Compatible"
}

// Settings describes the provider without credentials.
func (p *Provider) Settings() map[string]string {
	return map[string]string{
		"base_url":      p.baseURL,
		"default_model": p.defaultModel,
		"api_key":       utils.MaskSecret(p.apiKey),
	}
}

func (p *Provider) buildRequest(req llm.CompletionRequest) openaisdk.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	system := req.SystemPrompt
	if system == "" {
		system = p.systemPrompt
	}

	var messages []openaisdk.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openaisdk.ChatCompletionMessage{
			Role:    openaisdk.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openaisdk.ChatCompletionMessage{
		Role:    openaisdk.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	return openaisdk.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	chatReq := p.buildRequest(req)

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	p.metrics.RecordUpstreamAttempt(Name, "chat", statusOf(err), time.Since(start))
	if err != nil {
		return nil, p.wrap(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}

	return &llm.CompletionResponse{
		Text:         resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		ModelName:    resp.Model,
		ProviderName: p.GetName(),
		Endpoint:     p.baseURL,
		Attempt:      "chat",
	}, nil
}

func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamResponse, error) {
	chatReq := p.buildRequest(req)
	chatReq.Stream = true

	start := time.Now()
	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	p.metrics.RecordUpstreamAttempt(Name, "chat-stream", statusOf(err), time.Since(start))
	if err != nil {
		return nil, p.wrap(err)
	}

	respChan := make(chan llm.StreamResponse)

	go func() {
		defer stream.Close()
		defer close(respChan)

		send := func(r llm.StreamResponse) bool {
			select {
			case respChan <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var full strings.Builder
		finish := ""
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				if ctx.Err() == nil {
					send(llm.StreamResponse{Text: full.String(), Done: true, Err: p.wrap(err)})
				}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if fr := resp.Choices[0].FinishReason; fr != "" {
				finish = string(fr)
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			full.WriteString(delta)
			if !send(llm.StreamResponse{Text: delta, ModelName: resp.Model, Attempt: "chat-stream"}) {
				return
			}
		}

		send(llm.StreamResponse{
			Text:         full.String(),
			FinishReason: finish,
			ModelName:    chatReq.Model,
			Attempt:      "chat-stream",
			Done:         true,
		})
	}()

	return respChan, nil
}

// wrap converts SDK HTTP errors into llm.StatusError and drops the key.
func (p *Provider) wrap(err error) error {
	if status := statusOf(err); status > 0 {
		return &llm.StatusError{
			StatusCode: status,
			Attempt:    "chat",
			Body:       utils.ScrubSecrets(err.Error(), p.apiKey),
		}
	}
	msg := utils.ScrubSecrets(err.Error(), p.apiKey)
	if msg == err.Error() {
		return err
	}
	return errors.New(msg)
}

// statusOf extracts the HTTP status from SDK errors; 200 for nil, 0 if unknown.
func statusOf(err error) int {
	if err == nil {
		return 200
	}
	var apiErr *openaisdk.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openaisdk.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
