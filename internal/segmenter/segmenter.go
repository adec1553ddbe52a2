// internal/segmenter/segmenter.go
package segmenter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DataPlaceholder replaces stringified-object artifacts found in upstream text.
const DataPlaceholder = "[Data Reference]"

// Strategy names reported in Result.Strategy.
const (
	StrategySummaryMarker   = "summary_marker"
	StrategyActivityMarker  = "activity_marker"
	StrategyThinkingTag     = "thinking_tag"
	StrategyBracketTag      = "bracket_tag"
	StrategyLabeledSection  = "labeled_section"
	StrategyNumberedSection = "numbered_section"
	StrategyBlankLineSplit  = "blank_line_split"
	StrategyAnswerOpener    = "answer_opener"
	StrategyContinuation    = "continuation_scan"
	StrategyTerminal        = "terminal"
)

var (
	objectArtifact       = regexp.MustCompile(`\[object\s+\w+\]`)
	trailingPlaceholders = regexp.MustCompile(`(?:\s*,?\s*` + regexp.QuoteMeta(DataPlaceholder) + `)+\s*,?\s*$`)
	paragraphBreak       = regexp.MustCompile(`\n[ \t]*\n\s*`)
)

// Result is the outcome of segmenting one upstream reply.
// An empty Reasoning means no reasoning was isolated.
type Result struct {
	Reasoning string `json:"reasoning,omitempty"`
	Answer    string `json:"answer"`
	Strategy  string `json:"strategy"`
}

// HasReasoning reports whether a reasoning preamble was isolated.
func (r Result) HasReasoning() bool {
	return r.Reasoning != ""
}

// Thresholds are the tunable minimums used by the default cascade.
// Zero fields fall back to DefaultThresholds.
type Thresholds struct {
	SummaryMinReasoning  int `json:"summary_min_reasoning,omitempty" yaml:"summary_min_reasoning,omitempty"`
	ActivityMinReasoning int `json:"activity_min_reasoning,omitempty" yaml:"activity_min_reasoning,omitempty"`
	TagMinReasoning      int `json:"tag_min_reasoning,omitempty" yaml:"tag_min_reasoning,omitempty"`
	LabelMinReasoning    int `json:"label_min_reasoning,omitempty" yaml:"label_min_reasoning,omitempty"`
	GenericMinReasoning  int `json:"generic_min_reasoning,omitempty" yaml:"generic_min_reasoning,omitempty"`
	OpenerMinLines       int `json:"opener_min_lines,omitempty" yaml:"opener_min_lines,omitempty"`
	ContinuationMinLines int `json:"continuation_min_lines,omitempty" yaml:"continuation_min_lines,omitempty"`
}

// DefaultThresholds returns the stock minimums.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SummaryMinReasoning:  50,
		ActivityMinReasoning: 100,
		TagMinReasoning:      10,
		LabelMinReasoning:    20,
		GenericMinReasoning:  20,
		OpenerMinLines:       2,
		ContinuationMinLines: 3,
	}
}

// WithDefaults fills zero fields from DefaultThresholds.
func (t Thresholds) WithDefaults() Thresholds {
	d := DefaultThresholds()
	if t.SummaryMinReasoning <= 0 {
		t.SummaryMinReasoning = d.SummaryMinReasoning
	}
	if t.ActivityMinReasoning <= 0 {
		t.ActivityMinReasoning = d.ActivityMinReasoning
	}
	if t.TagMinReasoning <= 0 {
		t.TagMinReasoning = d.TagMinReasoning
	}
	if t.LabelMinReasoning <= 0 {
		t.LabelMinReasoning = d.LabelMinReasoning
	}
	if t.GenericMinReasoning <= 0 {
		t.GenericMinReasoning = d.GenericMinReasoning
	}
	if t.OpenerMinLines <= 0 {
		t.OpenerMinLines = d.OpenerMinLines
	}
	if t.ContinuationMinLines <= 0 {
		t.ContinuationMinLines = d.ContinuationMinLines
	}
	return t
}

// Matcher is one heuristic in the cascade. Match receives normalized text
// and reports false when it does not apply or its reasoning is too short.
type Matcher interface {
	Name() string
	Match(text string) (Result, bool)
}

// Segmenter runs an ordered list of matchers and keeps the first hit.
// It holds no mutable state and is safe for concurrent use.
type Segmenter struct {
	matchers []Matcher
}

// New builds a Segmenter with the default cascade.
func New(th Thresholds) *Segmenter {
	return &Segmenter{matchers: DefaultMatchers(th.WithDefaults())}
}

// NewWithMatchers builds a Segmenter from an explicit cascade.
func NewWithMatchers(matchers ...Matcher) *Segmenter {
	return &Segmenter{matchers: matchers}
}

// Strategies lists the matcher names in evaluation order.
func (s *Segmenter) Strategies() []string {
	names := make([]string, 0, len(s.matchers)+1)
	for _, m := range s.matchers {
		names = append(names, m.Name())
	}
	return append(names, StrategyTerminal)
}

// Segment splits text into reasoning and answer. It never fails.
func (s *Segmenter) Segment(text string) Result {
	cleaned := Normalize(text)
	if cleaned == "" {
		return Result{Strategy: StrategyTerminal}
	}

	for _, m := range s.matchers {
		res, ok := m.Match(cleaned)
		if !ok {
			continue
		}
		res.Reasoning = strings.TrimSpace(res.Reasoning)
		res.Answer = strings.TrimSpace(res.Answer)
		if res.Answer == "" {
			res.Answer = lastParagraph(cleaned)
		}
		res.Strategy = m.Name()
		return res
	}

	return Result{Answer: cleaned, Strategy: StrategyTerminal}
}

var defaultSegmenter = New(DefaultThresholds())

// Segment runs the default cascade.
func Segment(text string) Result {
	return defaultSegmenter.Segment(text)
}

// Normalize replaces stringified-object artifacts with DataPlaceholder and
// strips trailing runs of them along with their comma separators.
func Normalize(text string) string {
	text = objectArtifact.ReplaceAllString(text, DataPlaceholder)
	text = trailingPlaceholders.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// lastParagraph returns the last non-empty blank-line-delimited paragraph.
func lastParagraph(text string) string {
	parts := paragraphBreak.Split(text, -1)
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.TrimSpace(parts[i]); p != "" {
			return p
		}
	}
	return text
}

func atLeast(s string, min int) bool {
	return utf8.RuneCountInString(s) >= min
}
