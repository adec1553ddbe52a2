// internal/llm/providers/cortex/diagnostics.go
package cortex

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Corphon/AvaChat/internal/llm"
	"github.com/Corphon/AvaChat/internal/utils"
)

const diagnosticsOrigin = "diagnostics"

// Diagnose probes thread creation, catalog access and the configured agent.
// Every probe runs even if an earlier one fails.
func (p *Provider) Diagnose(ctx context.Context) (*llm.DiagnosticReport, error) {
	report := &llm.DiagnosticReport{
		Provider:    Name,
		Healthy:     true,
		Settings:    p.Settings(),
		GeneratedAt: time.Now(),
	}

	report.Add(p.probeThreadCreate(ctx))
	report.Add(p.probe(ctx, "list_databases", p.baseURL+"/api/v2/databases", func(body []byte) (string, string) {
		return llm.CheckPass, fmt.Sprintf("%d databases visible", gjson.GetBytes(body, "#").Int())
	}))
	report.Add(p.probe(ctx, "list_threads", p.threadsURL(), func(body []byte) (string, string) {
		return llm.CheckPass, fmt.Sprintf("%d existing threads", gjson.GetBytes(body, "#").Int())
	}))
	report.Add(p.probe(ctx, "list_agents", p.agentsURL(), p.checkAgentListed))
	report.Add(p.probe(ctx, "agent_details", p.agentsURL()+"/"+url.PathEscape(p.agent), func(body []byte) (string, string) {
		name := gjson.GetBytes(body, "name").String()
		if name == "" {
			return llm.CheckPass, "agent details returned"
		}
		return llm.CheckPass, "agent " + name
	}))

	report.Recommendations = recommend(report.Checks)
	return report, nil
}

func (p *Provider) agentsURL() string {
	return fmt.Sprintf("%s/api/v2/databases/%s/schemas/%s/agents",
		p.baseURL, url.PathEscape(p.database), url.PathEscape(p.schema))
}

func (p *Provider) probeThreadCreate(ctx context.Context) llm.Check {
	start := time.Now()
	id, err := p.createThread(ctx, diagnosticsOrigin)
	check := llm.Check{Name: "thread_create", ElapsedMS: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = llm.CheckFail
		check.Detail = err.Error()
		if se, ok := err.(*llm.StatusError); ok {
			check.HTTPStatus = se.StatusCode
		}
		return check
	}
	check.Status = llm.CheckPass
	check.HTTPStatus = http.StatusOK
	check.Detail = "thread " + id
	return check
}

// probe issues a GET and hands a 2xx body to inspect.
func (p *Provider) probe(ctx context.Context, name, target string, inspect func(body []byte) (string, string)) llm.Check {
	start := time.Now()
	check := llm.Check{Name: name}

	req, err := p.newRequest(ctx, http.MethodGet, target, nil)
	if err != nil {
		check.Status, check.Detail = llm.CheckFail, err.Error()
		return check
	}

	resp, err := p.client.Do(req)
	if err != nil {
		check.Status, check.Detail = llm.CheckFail, p.scrub(err).Error()
		check.ElapsedMS = time.Since(start).Milliseconds()
		return check
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	check.HTTPStatus = resp.StatusCode
	check.ElapsedMS = time.Since(start).Milliseconds()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		check.Status = llm.CheckFail
		check.Detail = truncate(utils.ScrubSecrets(strings.TrimSpace(string(body)), p.token), 200)
		return check
	}
	check.Status, check.Detail = inspect(body)
	return check
}

func (p *Provider) checkAgentListed(body []byte) (string, string) {
	names := gjson.GetBytes(body, "#.name").Array()
	for _, n := range names {
		if strings.EqualFold(n.String(), p.agent) {
			return llm.CheckPass, fmt.Sprintf("agent %s found among %d", p.agent, len(names))
		}
	}
	return llm.CheckFail, fmt.Sprintf("agent %s not found among %d agents", p.agent, len(names))
}

func recommend(checks []llm.Check) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, c := range checks {
		if c.Status != llm.CheckFail {
			continue
		}
		switch {
		case c.HTTPStatus == http.StatusUnauthorized:
			add("Token rejected: check that the access token is valid and not expired.")
		case c.HTTPStatus == http.StatusForbidden:
			add("Token lacks privileges: grant the role USAGE on the database, schema and agent.")
		case c.Name == "list_agents" || c.HTTPStatus == http.StatusNotFound:
			add("Agent not found: verify the agent name, database and schema settings.")
		case c.HTTPStatus == 0:
			add("Upstream unreachable: verify the account identifier or base URL.")
		default:
			add(fmt.Sprintf("Probe %s failed with status %d.", c.Name, c.HTTPStatus))
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
