// internal/llm/decode_test.go
package llm

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTextShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"openai message", `{"choices":[{"message":{"content":"Saturday"}}]}`, "Saturday"},
		{"openai delta", `{"choices":[{"delta":{"content":"Sat"}}]}`, "Sat"},
		{"content parts", `{"role":"assistant","content":[{"type":"tool_use","id":"x"},{"type":"text","text":"Hello "},{"type":"text","text":"there"}]}`, "Hello there"},
		{"plain content", `{"content":"just text"}`, "just text"},
		{"text field", `{"text":"from text"}`, "from text"},
		{"response field", `{"response":"from response"}`, "from response"},
		{"json string", `"quoted"`, "quoted"},
		{"not json", "  plain body  ", "plain body"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractText([]byte(tt.body)))
		})
	}
}

func TestExtractTextFallsBackToPrettyJSON(t *testing.T) {
	got := ExtractText([]byte(`{"status":"ok","rows":2}`))
	assert.Contains(t, got, "\"status\": \"ok\"")
	assert.Contains(t, got, "\n")
}

func TestFrameText(t *testing.T) {
	text, ok := FrameText(`{"delta":{"content":[{"type":"text","text":"Hi"}]}}`)
	assert.True(t, ok)
	assert.Equal(t, "Hi", text)

	_, ok = FrameText("[DONE]")
	assert.False(t, ok)
	_, ok = FrameText("not json")
	assert.False(t, ok)
	_, ok = FrameText(`{"status":"planning"}`)
	assert.False(t, ok)
}

func TestReadEventStream(t *testing.T) {
	body := strings.Join([]string{
		": keep-alive",
		"event: response.status",
		`data: {"status":"planning","message":"Planning the next steps"}`,
		"",
		"event: response.text.delta",
		`data: {"text":"Saturday "}`,
		"",
		`data: {"choices":[{"delta":{"content":"is busiest."}}]}`,
		"",
		"data: garbage{",
		"",
		"event: response",
		`data: {"content":[{"type":"text","text":"Saturday is busiest."}]}`,
		"",
		"data: [DONE]",
		"",
	}, "\n")

	var deltas []string
	full, err := ReadEventStream(context.Background(), strings.NewReader(body), func(d string) error {
		deltas = append(deltas, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Saturday ", "is busiest."}, deltas)
	assert.Equal(t, "Saturday is busiest.", full)
}

func TestReadEventStreamMultilineDataAndNoTrailingBlank(t *testing.T) {
	body := "data: {\"text\":\ndata: \"joined\"}"
	full, err := ReadEventStream(context.Background(), strings.NewReader(body), nil)
	require.NoError(t, err)
	assert.Equal(t, "joined", full)
}

func TestReadEventStreamRawFallback(t *testing.T) {
	full, err := ReadEventStream(context.Background(), strings.NewReader("The agent said hello.\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "The agent said hello.", full)
}

func TestReadEventStreamErrorEvent(t *testing.T) {
	body := "event: error\ndata: {\"message\":\"agent not ready\"}\n\n"
	_, err := ReadEventStream(context.Background(), strings.NewReader(body), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamEvent))
	assert.Contains(t, err.Error(), "agent not ready")
}

func TestReadEventStreamStopsOnEmitError(t *testing.T) {
	stop := errors.New("client gone")
	body := "data: {\"text\":\"a\"}\n\ndata: {\"text\":\"b\"}\n\n"
	calls := 0
	_, err := ReadEventStream(context.Background(), strings.NewReader(body), func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestReadEventStreamCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadEventStream(ctx, strings.NewReader("data: {\"text\":\"a\"}\n\n"), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecodeBody(t *testing.T) {
	var got []string
	text, err := DecodeBody(context.Background(), "application/json", strings.NewReader(`{"text":"doc"}`), func(d string) error {
		got = append(got, d)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "doc", text)
	assert.Equal(t, []string{"doc"}, got)

	text, err = DecodeBody(context.Background(), "text/event-stream; charset=utf-8", strings.NewReader("data: {\"text\":\"sse\"}\n\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "sse", text)

	assert.True(t, IsEventStream("text/plain"))
	assert.False(t, IsEventStream("application/json"))
}
