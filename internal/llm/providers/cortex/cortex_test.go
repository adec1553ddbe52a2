// internal/llm/providers/cortex/cortex_test.go
package cortex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/AvaChat/internal/llm"
)

const (
	testToken   = "test-token-abcdef123456"
	runPath     = "/api/v2/databases/DB/schemas/SC/agents/AVA:run"
	threadsPath = "/api/v2/cortex/threads"
)

// fakeAgent records run payloads and answers them from a script of
// status codes; the last entry repeats.
type fakeAgent struct {
	mu           sync.Mutex
	payloads     []map[string]interface{}
	headers      []http.Header
	runStatuses  []int
	threadStatus int
	successBody  string
	successType  string
	errorBody    string
	agentsBody   string
}

func (f *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == threadsPath && r.Method == http.MethodPost:
		if f.threadStatus != 0 && f.threadStatus != http.StatusOK {
			w.WriteHeader(f.threadStatus)
			return
		}
		fmt.Fprint(w, `"4242"`)
	case r.URL.Path == threadsPath:
		fmt.Fprint(w, `[{"thread_id":1},{"thread_id":2}]`)
	case r.URL.Path == "/api/v2/databases":
		fmt.Fprint(w, `[{"name":"DB"}]`)
	case r.URL.Path == "/api/v2/databases/DB/schemas/SC/agents":
		body := f.agentsBody
		if body == "" {
			body = `[{"name":"AVA"},{"name":"OTHER"}]`
		}
		fmt.Fprint(w, body)
	case r.URL.Path == "/api/v2/databases/DB/schemas/SC/agents/AVA":
		fmt.Fprint(w, `{"name":"AVA"}`)
	case r.URL.Path == runPath:
		f.handleRun(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAgent) handleRun(w http.ResponseWriter, r *http.Request) {
	var payload map[string]interface{}
	body, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(body, &payload)

	f.mu.Lock()
	f.payloads = append(f.payloads, payload)
	f.headers = append(f.headers, r.Header.Clone())
	idx := len(f.payloads) - 1
	if idx >= len(f.runStatuses) {
		idx = len(f.runStatuses) - 1
	}
	status := f.runStatuses[idx]
	f.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		fmt.Fprint(w, f.errorBody)
		return
	}
	ct := f.successType
	if ct == "" {
		ct = "application/json"
	}
	w.Header().Set("Content-Type", ct)
	fmt.Fprint(w, f.successBody)
}

func (f *fakeAgent) runCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func newTestProvider(t *testing.T, baseURL string, extra map[string]string) *Provider {
	t.Helper()
	cfg := map[string]string{
		"base_url": baseURL,
		"token":    testToken,
		"database": "DB",
		"schema":   "SC",
		"agent":    "AVA",
	}
	for k, v := range extra {
		cfg[k] = v
	}
	p := New()
	require.NoError(t, p.Initialize(cfg))
	return p
}

func TestCompleteTextFallsThroughAttempts(t *testing.T) {
	agent := &fakeAgent{
		runStatuses: []int{http.StatusInternalServerError, http.StatusBadRequest, http.StatusOK},
		successBody: `{"content":[{"type":"text","text":"Saturday is busiest."}]}`,
	}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, nil)
	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "Show me total trips by day"})
	require.NoError(t, err)

	assert.Equal(t, "Saturday is busiest.", resp.Text)
	assert.Equal(t, AttemptMinimal, resp.Attempt)
	assert.Equal(t, "4242", resp.ThreadID)
	require.Equal(t, 3, agent.runCalls())

	first := agent.payloads[0]
	assert.EqualValues(t, 4242, first["thread_id"])
	toolChoice := first["tool_choice"].(map[string]interface{})
	assert.Equal(t, "auto", toolChoice["type"])
	assert.Equal(t, []interface{}{DefaultAnalystTool}, toolChoice["name"])

	_, hasTools := agent.payloads[1]["tool_choice"]
	assert.False(t, hasTools)

	msgs := agent.payloads[2]["messages"].([]interface{})
	assert.Equal(t, "Show me total trips by day", msgs[0].(map[string]interface{})["content"])

	h := agent.headers[0]
	assert.Equal(t, "Bearer "+testToken, h.Get("Authorization"))
	assert.Equal(t, DefaultTokenType, h.Get("X-Snowflake-Authorization-Token-Type"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
}

func TestCompleteTextAbortsOnNotFound(t *testing.T) {
	agent := &fakeAgent{runStatuses: []int{http.StatusNotFound}, errorBody: "agent does not exist"}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, nil)
	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)

	var se *llm.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, AttemptAgentTools, se.Attempt)
	assert.Equal(t, 1, agent.runCalls())
}

func TestCompleteTextAbortsOnUnauthorizedWithoutLeakingToken(t *testing.T) {
	agent := &fakeAgent{
		runStatuses: []int{http.StatusUnauthorized},
		errorBody:   "invalid token " + testToken,
	}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, nil)
	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.NotContains(t, err.Error(), testToken)
	assert.Equal(t, 1, agent.runCalls())
}

func TestCompleteTextReturnsLastErrorWhenAllFail(t *testing.T) {
	agent := &fakeAgent{runStatuses: []int{http.StatusServiceUnavailable}}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, nil)
	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})

	var se *llm.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, AttemptSimple, se.Attempt)
	assert.Equal(t, len(DefaultAttempts()), agent.runCalls())

	legacy := agent.payloads[3]
	assert.Equal(t, DefaultLegacyModel, legacy["model"])
	_, hasThread := agent.payloads[4]["thread_id"]
	assert.False(t, hasThread)
}

func TestThreadFailureFallsBackToZero(t *testing.T) {
	agent := &fakeAgent{
		threadStatus: http.StatusForbidden,
		runStatuses:  []int{http.StatusOK},
		successBody:  `{"text":"ok"}`,
	}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, nil)
	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "0", resp.ThreadID)
	assert.EqualValues(t, 0, agent.payloads[0]["thread_id"])
}

func TestConfiguredAttemptSubset(t *testing.T) {
	agent := &fakeAgent{runStatuses: []int{http.StatusBadRequest, http.StatusOK}, successBody: `{"text":"ok"}`}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, map[string]string{"attempts": "legacy, simple"})
	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi", Model: "custom-model"})
	require.NoError(t, err)
	assert.Equal(t, AttemptSimple, resp.Attempt)
	assert.Equal(t, "custom-model", agent.payloads[0]["model"])
}

func TestStreamCompletion(t *testing.T) {
	agent := &fakeAgent{
		runStatuses: []int{http.StatusOK},
		successType: "text/event-stream",
		successBody: strings.Join([]string{
			"event: response.status",
			`data: {"status":"planning"}`,
			"",
			"event: response.text.delta",
			`data: {"text":"Saturday "}`,
			"",
			"event: response.text.delta",
			`data: {"text":"wins."}`,
			"",
			"data: [DONE]",
			"",
		}, "\n"),
	}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, nil)
	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	require.NoError(t, err)

	var chunks []string
	var final llm.StreamResponse
	for r := range ch {
		if r.Done {
			final = r
			continue
		}
		chunks = append(chunks, r.Text)
	}
	assert.Equal(t, []string{"Saturday ", "wins."}, chunks)
	assert.NoError(t, final.Err)
	assert.Equal(t, "Saturday wins.", final.Text)
	assert.Equal(t, AttemptAgentTools, final.Attempt)
}

func TestStreamCompletionReturnsErrorBeforeStreaming(t *testing.T) {
	agent := &fakeAgent{runStatuses: []int{http.StatusForbidden}}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, nil)
	ch, err := p.StreamCompletion(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	assert.Nil(t, ch)
	require.Error(t, err)
}

func TestInitializeValidation(t *testing.T) {
	assert.Error(t, New().Initialize(map[string]string{"account": "acme"}))
	assert.Error(t, New().Initialize(map[string]string{"token": "x", "database": "D", "schema": "S", "agent": "A"}))
	assert.Error(t, New().Initialize(map[string]string{"token": "x", "account": "acme"}))
	assert.Error(t, New().Initialize(map[string]string{
		"token": "x", "account": "acme", "database": "D", "schema": "S", "agent": "A", "attempts": "bogus",
	}))

	p := New()
	require.NoError(t, p.Initialize(map[string]string{
		"token": testToken, "account": "ACME-PROD", "database": "D", "schema": "S", "agent": "A", "timeout": "30",
	}))
	settings := p.Settings()
	assert.Equal(t, "https://acme-prod.snowflakecomputing.com", settings["base_url"])
	assert.Equal(t, "30s", settings["timeout"])
	assert.NotContains(t, settings["token"], testToken)
}

func TestRouteQuestion(t *testing.T) {
	tests := map[string]Route{
		"How many trips to Moody Center last month?":        RouteCombined,
		"Which venues had the busiest destination traffic?": RouteCombined,
		"What are the most popular campus locations?":       RouteVenueSearch,
		"Show me average passengers by day of week":         RouteAnalytics,
		"Which downtown venues are busiest on weekends?":    RouteVenueSearch,
		"Hello":                                             RouteAnalytics,
	}
	for q, want := range tests {
		assert.Equal(t, want, RouteQuestion(q), q)
	}
}

func TestToolsForResearchMode(t *testing.T) {
	p := New()
	assert.Equal(t, []string{DefaultAnalystTool}, p.toolsFor("total riders", llm.ModeAnalytics))
	assert.Equal(t, []string{DefaultAnalystTool, DefaultSearchTool}, p.toolsFor("total riders", llm.ModeResearch))
	assert.Equal(t, []string{DefaultSearchTool}, p.toolsFor("campus venues", llm.ModeResearch))

	p.searchTool = ""
	assert.Equal(t, []string{DefaultAnalystTool}, p.toolsFor("trips to campus", llm.ModeAnalytics))
}

func TestDiagnose(t *testing.T) {
	agent := &fakeAgent{runStatuses: []int{http.StatusOK}}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, nil)
	report, err := p.Diagnose(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Healthy)
	require.Len(t, report.Checks, 5)
	assert.Equal(t, "thread_create", report.Checks[0].Name)
	assert.Equal(t, "2 existing threads", report.Checks[2].Detail)
	assert.Empty(t, report.Recommendations)

	raw, _ := json.Marshal(report)
	assert.NotContains(t, string(raw), testToken)
}

func TestDiagnoseMissingAgent(t *testing.T) {
	agent := &fakeAgent{runStatuses: []int{http.StatusOK}, agentsBody: `[{"name":"OTHER"}]`}
	srv := httptest.NewServer(agent)
	defer srv.Close()

	p := newTestProvider(t, srv.URL, nil)
	report, err := p.Diagnose(context.Background())
	require.NoError(t, err)

	assert.False(t, report.Healthy)
	assert.Equal(t, llm.CheckFail, report.Checks[3].Status)
	require.NotEmpty(t, report.Recommendations)
	assert.Contains(t, report.Recommendations[0], "Agent not found")
}

func TestRegisteredWithRegistry(t *testing.T) {
	assert.Contains(t, llm.ListProviders(), Name)
}
