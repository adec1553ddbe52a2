// internal/llm/providers/cortex/attempts.go
package cortex

import (
	"fmt"
	"strings"
)

// Attempt names, in default order.
const (
	AttemptAgentTools = "agent-tools"
	AttemptStandard   = "standard"
	AttemptMinimal    = "minimal"
	AttemptLegacy     = "legacy"
	AttemptSimple     = "simple"
)

// Turn is what every payload shape is built from.
type Turn struct {
	Message     string
	ThreadID    int64
	Tools       []string
	LegacyModel string
}

// Attempt is one payload shape tried against the :run endpoint.
type Attempt struct {
	Name  string
	Build func(t Turn) map[string]interface{}
}

// DefaultAttempts returns every known payload shape, most complete first.
func DefaultAttempts() []Attempt {
	return []Attempt{
		{Name: AttemptAgentTools, Build: agentToolsPayload},
		{Name: AttemptStandard, Build: standardPayload},
		{Name: AttemptMinimal, Build: minimalPayload},
		{Name: AttemptLegacy, Build: legacyPayload},
		{Name: AttemptSimple, Build: simplePayload},
	}
}

// SelectAttempts picks and orders attempts from a comma separated list of
// names. An empty list yields DefaultAttempts.
func SelectAttempts(names string) ([]Attempt, error) {
	all := DefaultAttempts()
	if strings.TrimSpace(names) == "" {
		return all, nil
	}

	byName := make(map[string]Attempt, len(all))
	for _, a := range all {
		byName[a.Name] = a
	}

	var out []Attempt
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		a, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unknown attempt %q", name)
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return all, nil
	}
	return out, nil
}

func textContent(message string) []map[string]string {
	return []map[string]string{{"type": "text", "text": message}}
}

func userMessage(content interface{}) []map[string]interface{} {
	return []map[string]interface{}{{"role": "user", "content": content}}
}

func agentToolsPayload(t Turn) map[string]interface{} {
	p := standardPayload(t)
	if len(t.Tools) > 0 {
		p["tool_choice"] = map[string]interface{}{
			"type": "auto",
			"name": t.Tools,
		}
	}
	return p
}

func standardPayload(t Turn) map[string]interface{} {
	return map[string]interface{}{
		"thread_id":         t.ThreadID,
		"parent_message_id": 0,
		"messages":          userMessage(textContent(t.Message)),
	}
}

func minimalPayload(t Turn) map[string]interface{} {
	return map[string]interface{}{
		"thread_id":         t.ThreadID,
		"parent_message_id": 0,
		"messages":          userMessage(t.Message),
	}
}

func legacyPayload(t Turn) map[string]interface{} {
	return map[string]interface{}{
		"model":    t.LegacyModel,
		"messages": userMessage(t.Message),
	}
}

func simplePayload(t Turn) map[string]interface{} {
	return map[string]interface{}{
		"messages": userMessage(textContent(t.Message)),
	}
}
