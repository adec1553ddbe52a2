// internal/segmenter/matchers.go
package segmenter

import (
	"regexp"
	"strings"
)

// summaryLeadIns introduce a concluding answer. Case-sensitive.
var summaryLeadIns = []string{
	"I found the most recent",
	"I found that",
	"Based on the analysis",
	"Based on the data",
	"Based on the results",
	"Based on the query results",
	"Here are the results",
	"Here's what I found",
	"Here is what I found",
	"The results show",
	"To summarize",
	"In summary",
}

// processKeywords mark agent activity traces (planning, tool calls, SQL).
var processKeywords = []string{"Planning", "Executing", "Analysis", "SQL", "query"}

// concludingPhrases open a generic answer paragraph.
var concludingPhrases = []string{
	"I found",
	"Based on",
	"Therefore",
	"In conclusion",
	"In summary",
	"To summarize",
	"Overall",
	"Here",
	"The result",
	"The answer",
	"The data shows",
	"Final answer",
	"Answer:",
	"Result:",
}

var (
	thinkingTag     = regexp.MustCompile(`(?s)<think(?:ing)?>(.*?)</think(?:ing)?>`)
	bracketTag      = regexp.MustCompile(`(?s)\[thinking\](.*?)\[/thinking\]`)
	labeledSection  = regexp.MustCompile(`(?s)(?:^|\n)(?:Thinking|Analysis|Reasoning):\s*(.*?)(?:\n(?:Response|Answer|Result):|$)`)
	numberedSection = regexp.MustCompile(`(?s)(?:^|\n)1\.\s*(?:Thinking|Analysis):(.*?)(?:\n(?:\d+\.|Response:|Answer:)|$)`)

	answerOpener     = regexp.MustCompile(`(?i)^(?:based on\b|therefore\b|in conclusion\b|final answer\b|response:|answer:)`)
	continuationLead = regexp.MustCompile(`(?i)^(?:let me|i need to|first|next|however|additionally)`)
)

// DefaultMatchers returns the cascade in priority order, most specific first.
func DefaultMatchers(th Thresholds) []Matcher {
	return []Matcher{
		leadInMatcher{phrases: summaryLeadIns, min: th.SummaryMinReasoning},
		activityMatcher{phrases: summaryLeadIns, keywords: processKeywords, min: th.ActivityMinReasoning},
		patternMatcher{name: StrategyThinkingTag, re: thinkingTag, min: th.TagMinReasoning},
		patternMatcher{name: StrategyBracketTag, re: bracketTag, min: th.TagMinReasoning},
		patternMatcher{name: StrategyLabeledSection, re: labeledSection, min: th.LabelMinReasoning},
		patternMatcher{name: StrategyNumberedSection, re: numberedSection, min: th.LabelMinReasoning},
		blankLineMatcher{phrases: concludingPhrases, min: th.GenericMinReasoning},
		lineScanMatcher{
			name:     StrategyAnswerOpener,
			minLines: th.OpenerMinLines,
			startsAnswer: func(_ int, line string) bool {
				return answerOpener.MatchString(line)
			},
		},
		lineScanMatcher{
			name:     StrategyContinuation,
			minLines: th.ContinuationMinLines,
			startsAnswer: func(i int, line string) bool {
				return i > 0 && line != "" && !continuationLead.MatchString(line)
			},
		},
	}
}

// ----------------------------------------
// leadInMatcher splits at the first lead-in phrase anywhere in the text.
type leadInMatcher struct {
	phrases []string
	min     int
}

func (m leadInMatcher) Name() string { return StrategySummaryMarker }

func (m leadInMatcher) Match(text string) (Result, bool) {
	idx := firstIndex(text, m.phrases)
	if idx <= 0 {
		return Result{}, false
	}
	reasoning := strings.TrimSpace(text[:idx])
	if !atLeast(reasoning, m.min) {
		return Result{}, false
	}
	return Result{Reasoning: reasoning, Answer: text[idx:]}, true
}

// activityMatcher splits at a blank line that precedes a lead-in phrase,
// provided the text reads like an agent activity trace.
type activityMatcher struct {
	phrases  []string
	keywords []string
	min      int
}

func (m activityMatcher) Name() string { return StrategyActivityMarker }

func (m activityMatcher) Match(text string) (Result, bool) {
	if !containsAny(text, m.keywords) {
		return Result{}, false
	}
	for _, loc := range paragraphBreak.FindAllStringIndex(text, -1) {
		if !hasAnyPrefix(text[loc[1]:], m.phrases) {
			continue
		}
		reasoning := strings.TrimSpace(text[:loc[0]])
		if atLeast(reasoning, m.min) && containsAny(reasoning, m.keywords) {
			return Result{Reasoning: reasoning, Answer: text[loc[1]:]}, true
		}
	}
	return Result{}, false
}

// patternMatcher takes reasoning from the first capture group and the
// answer from whatever surrounds the whole match.
type patternMatcher struct {
	name string
	re   *regexp.Regexp
	min  int
}

func (m patternMatcher) Name() string { return m.name }

func (m patternMatcher) Match(text string) (Result, bool) {
	loc := m.re.FindStringSubmatchIndex(text)
	if loc == nil || loc[2] < 0 {
		return Result{}, false
	}
	reasoning := strings.TrimSpace(text[loc[2]:loc[3]])
	if !atLeast(reasoning, m.min) {
		return Result{}, false
	}
	return Result{Reasoning: reasoning, Answer: text[:loc[0]] + text[loc[1]:]}, true
}

// blankLineMatcher splits before the first paragraph that opens with a
// generic concluding phrase.
type blankLineMatcher struct {
	phrases []string
	min     int
}

func (m blankLineMatcher) Name() string { return StrategyBlankLineSplit }

func (m blankLineMatcher) Match(text string) (Result, bool) {
	for _, loc := range paragraphBreak.FindAllStringIndex(text, -1) {
		if !hasAnyPrefix(text[loc[1]:], m.phrases) {
			continue
		}
		reasoning := strings.TrimSpace(text[:loc[0]])
		if !atLeast(reasoning, m.min) {
			continue
		}
		return Result{Reasoning: reasoning, Answer: text[loc[1]:]}, true
	}
	return Result{}, false
}

// lineScanMatcher walks lines until startsAnswer fires. Non-empty lines
// before that point are reasoning.
type lineScanMatcher struct {
	name         string
	minLines     int
	startsAnswer func(index int, line string) bool
}

func (m lineScanMatcher) Name() string { return m.name }

func (m lineScanMatcher) Match(text string) (Result, bool) {
	var reasoning, answer []string
	found := false
	hasAnswer := false

	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if !found && m.startsAnswer(i, line) {
			found = true
		}
		switch {
		case found:
			answer = append(answer, raw)
			if line != "" {
				hasAnswer = true
			}
		case line != "":
			reasoning = append(reasoning, raw)
		}
	}

	if len(reasoning) < m.minLines || !hasAnswer {
		return Result{}, false
	}
	return Result{
		Reasoning: strings.Join(reasoning, "\n"),
		Answer:    strings.Join(answer, "\n"),
	}, true
}

// ----------------------------------------
func firstIndex(text string, phrases []string) int {
	best := -1
	for _, p := range phrases {
		if i := strings.Index(text, p); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

func hasAnyPrefix(text string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(text, p) {
			return true
		}
	}
	return false
}
