// internal/llm/interface_test.go
package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoProvider struct{ prefix string }

func (e *echoProvider) Initialize(cfg map[string]string) error {
	if cfg["fail"] != "" {
		return errors.New("bad config")
	}
	e.prefix = cfg["prefix"]
	return nil
}

func (e *echoProvider) GetName() string { return "echo" }

func (e *echoProvider) CompleteText(_ context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Text: e.prefix + req.Prompt}, nil
}

func (e *echoProvider) StreamCompletion(_ context.Context, req CompletionRequest) (<-chan StreamResponse, error) {
	ch := make(chan StreamResponse, 1)
	ch <- StreamResponse{Text: e.prefix + req.Prompt, Done: true}
	close(ch)
	return ch, nil
}

func TestRegistry(t *testing.T) {
	Register("echo-test", func() Provider { return &echoProvider{} })

	p, err := GetProvider("echo-test", map[string]string{"prefix": "> "})
	require.NoError(t, err)
	resp, err := p.CompleteText(context.Background(), CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "> hi", resp.Text)

	_, err = GetProvider("echo-test", map[string]string{"fail": "1"})
	assert.ErrorContains(t, err, "bad config")

	_, err = GetProvider("nope", nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	assert.Contains(t, ListProviders(), "echo-test")
}

func TestDiagnosticReportAdd(t *testing.T) {
	r := &DiagnosticReport{Healthy: true}
	r.Add(Check{Name: "a", Status: CheckPass})
	r.Add(Check{Name: "b", Status: CheckWarn})
	assert.True(t, r.Healthy)
	r.Add(Check{Name: "c", Status: CheckFail})
	assert.False(t, r.Healthy)
	assert.Len(t, r.Checks, 3)
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{StatusCode: 404, Attempt: "standard", Body: "missing"}
	assert.Equal(t, "upstream standard returned 404: missing", err.Error())
}
