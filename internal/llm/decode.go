// internal/llm/decode.go
package llm

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// Paths probed, in order, for the reply text of a JSON document or frame.
var textPaths = []string{
	"choices.0.delta.content",
	"choices.0.message.content",
	"delta.content",
	"delta.text",
	"content",
	"text",
	"response",
	"result",
	"message",
}

// Event names that never carry answer text.
var skippedEvents = map[string]bool{
	"response.status":      true,
	"response.tool_use":    true,
	"response.tool_result": true,
	"metadata":             true,
}

const maxRawBody = 1 << 20

// ErrUpstreamEvent is wrapped by errors reported inside an event stream.
var ErrUpstreamEvent = errors.New("upstream error event")

// ExtractText recovers the reply text from a complete JSON body. Bodies that
// are not JSON are returned trimmed; JSON with no known text field is
// returned pretty-printed.
func ExtractText(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || !gjson.Valid(trimmed) {
		return trimmed
	}
	if text, ok := probeText(gjson.Parse(trimmed)); ok {
		return text
	}
	return strings.TrimSpace(string(pretty.Pretty([]byte(trimmed))))
}

// FrameText extracts the text delta carried by one event-stream payload.
// It reports false for [DONE], empty payloads and frames without text.
func FrameText(payload string) (string, bool) {
	payload = strings.TrimSpace(payload)
	if payload == "" || payload == "[DONE]" {
		return "", false
	}
	if !gjson.Valid(payload) {
		return "", false
	}
	return probeText(gjson.Parse(payload))
}

func probeText(doc gjson.Result) (string, bool) {
	if doc.Type == gjson.String {
		return doc.Str, doc.Str != ""
	}
	for _, path := range textPaths {
		if text := textOf(doc.Get(path)); text != "" {
			return text, true
		}
	}
	return "", false
}

// textOf flattens a string, a {text|content} object, or an array of
// {type:"text", text} parts.
func textOf(r gjson.Result) string {
	switch {
	case !r.Exists():
		return ""
	case r.Type == gjson.String:
		return r.Str
	case r.IsArray():
		var b strings.Builder
		for _, part := range r.Array() {
			if t := part.Get("type"); t.Exists() && t.String() != "text" {
				continue
			}
			if part.Type == gjson.String {
				b.WriteString(part.Str)
				continue
			}
			b.WriteString(part.Get("text").String())
		}
		return b.String()
	case r.IsObject():
		if t := r.Get("text"); t.Type == gjson.String {
			return t.Str
		}
		return textOf(r.Get("content"))
	}
	return ""
}

// Frame is one dispatched server-sent event.
type Frame struct {
	Event string
	Data  string
}

// ReadEventStream reads server-sent event frames from r and calls emit with
// each text delta. It returns the concatenated text. When no frame carried
// text the raw body is returned instead.
func ReadEventStream(ctx context.Context, r io.Reader, emit func(delta string) error) (string, error) {
	var (
		full    strings.Builder
		raw     strings.Builder
		data    []string
		event   string
		emitted bool
	)

	dispatch := func() error {
		defer func() { data, event = nil, "" }()
		if len(data) == 0 || skippedEvents[event] {
			return nil
		}
		payload := strings.Join(data, "\n")
		if event == "error" {
			msg := gjson.Get(payload, "message").String()
			if msg == "" {
				msg = payload
			}
			return errors.Join(ErrUpstreamEvent, errors.New(msg))
		}
		// The closing "response" event repeats the whole answer.
		if event == "response" && emitted {
			return nil
		}
		text, ok := FrameText(payload)
		if !ok {
			return nil
		}
		emitted = true
		full.WriteString(text)
		if emit != nil {
			return emit(text)
		}
		return nil
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRawBody)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return full.String(), err
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if raw.Len() < maxRawBody {
			raw.WriteString(line)
			raw.WriteByte('\n')
		}

		switch {
		case line == "":
			if err := dispatch(); err != nil {
				return full.String(), err
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(line[len("data:"):], " "))
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return full.String(), ctxErr
		}
		return full.String(), err
	}
	if err := dispatch(); err != nil {
		return full.String(), err
	}

	if !emitted {
		return strings.TrimSpace(raw.String()), nil
	}
	return full.String(), nil
}

// IsEventStream reports whether a response content type should be decoded
// frame by frame.
func IsEventStream(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/event-stream") || strings.Contains(ct, "text/plain")
}

// DecodeBody picks frame or document decoding from the content type.
func DecodeBody(ctx context.Context, contentType string, body io.Reader, emit func(delta string) error) (string, error) {
	if IsEventStream(contentType) {
		return ReadEventStream(ctx, body, emit)
	}
	b, err := io.ReadAll(io.LimitReader(body, maxRawBody))
	if err != nil {
		return "", err
	}
	text := ExtractText(b)
	if emit != nil && text != "" {
		if err := emit(text); err != nil {
			return text, err
		}
	}
	return text, nil
}
