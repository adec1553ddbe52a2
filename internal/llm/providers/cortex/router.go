// internal/llm/providers/cortex/router.go
package cortex

import (
	"strings"

	"github.com/Corphon/AvaChat/internal/llm"
)

// Route is the kind of question, used to pick agent tools.
type Route string

const (
	RouteAnalytics   Route = "analytics"
	RouteVenueSearch Route = "venue_search"
	RouteCombined    Route = "combined"
)

var (
	combinedKeywords  = []string{"trips to", "popular pickup", "busiest destination"}
	venueKeywords     = []string{"moody", "campus", "downtown", "venue", "location", "place"}
	analyticsKeywords = []string{"average", "total", "by day", "demographics", "age group"}
)

// RouteQuestion classifies a question by keyword. Combined wins over venue,
// venue over analytics; anything else is analytics.
func RouteQuestion(question string) Route {
	q := strings.ToLower(question)
	switch {
	case containsAny(q, combinedKeywords):
		return RouteCombined
	case containsAny(q, venueKeywords):
		return RouteVenueSearch
	case containsAny(q, analyticsKeywords):
		return RouteAnalytics
	default:
		return RouteAnalytics
	}
}

// toolsFor returns the tool names to offer the agent for one turn.
func (p *Provider) toolsFor(question, mode string) []string {
	route := RouteQuestion(question)
	if mode == llm.ModeResearch && route == RouteAnalytics {
		route = RouteCombined
	}

	var tools []string
	switch route {
	case RouteVenueSearch:
		tools = []string{p.searchTool}
	case RouteCombined:
		tools = []string{p.analystTool, p.searchTool}
	default:
		tools = []string{p.analystTool}
	}

	out := tools[:0]
	for _, t := range tools {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
