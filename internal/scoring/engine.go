// Package scoring computes the multi-factor value score that decides whether
// an interaction is worth learning from.
package scoring

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"

	"github.com/harrison/relay/internal/models"
	"github.com/harrison/relay/internal/pattern"
)

// Factor weights. They sum to 1.0 so the composite stays in [0, 1] when each
// factor is normalized.
const (
	outcomeWeight     = 0.40
	feedbackWeight    = 0.20
	reusabilityWeight = 0.20
	complexityWeight  = 0.10
	noveltyWeight     = 0.10
)

// Complexity normalization caps.
const (
	responseLengthCap = 2000 // characters at which the length factor saturates
	structureCap      = 6    // headings/lists/code blocks at which structure saturates
)

// reusabilityMarkerCap is the number of marker hits at which the factor saturates.
const reusabilityMarkerCap = 4

// defaultReusabilityMarkers signal a query/response pair that generalizes
// beyond its specific instance.
func defaultReusabilityMarkers() []string {
	return []string{
		"how to", "how do", "configure", "install", "set up", "setup",
		"pattern", "example", "template", "error", "fix", "debug",
		"best way", "steps", "guide",
	}
}

// Engine computes value scores. Scoring is pure and deterministic: the same
// interaction and history always yield the same score. Safe for concurrent use.
type Engine struct {
	markers   []string
	threshold float64
	hasher    *pattern.ContentHasher
	md        goldmark.Markdown
}

// Option configures an Engine.
type Option func(*Engine)

// WithReusabilityMarkers replaces the default marker phrases used by the
// reusability factor.
func WithReusabilityMarkers(markers []string) Option {
	return func(e *Engine) {
		if len(markers) > 0 {
			e.markers = markers
		}
	}
}

// WithHighValueThreshold overrides the eligibility threshold (default 0.7).
func WithHighValueThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 {
			e.threshold = threshold
		}
	}
}

// NewEngine creates a scoring Engine with default weights and markers.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		markers:   defaultReusabilityMarkers(),
		threshold: 0.7,
		hasher:    pattern.NewContentHasher(),
		md:        goldmark.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score computes the composite value score for a resolved interaction.
// history holds recent query texts (most recent first) used by the novelty
// factor; pass nil when no history is available.
func (e *Engine) Score(in *models.Interaction, history []string) float64 {
	score := outcomeWeight*outcomeFactor(in.Outcome) +
		feedbackWeight*feedbackFactor(in.UserFeedback) +
		reusabilityWeight*e.reusabilityFactor(in) +
		complexityWeight*e.complexityFactor(in.Response) +
		noveltyWeight*e.noveltyFactor(in.Query, history)

	return clamp01(score)
}

// Eligible reports whether a score qualifies the interaction for pattern
// extraction.
func (e *Engine) Eligible(score float64) bool {
	return score >= e.threshold
}

// Threshold returns the configured high-value threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// outcomeFactor maps the resolution outcome onto [0, 1].
func outcomeFactor(o models.Outcome) float64 {
	switch o {
	case models.OutcomeSuccess:
		return 1.0
	case models.OutcomePartial:
		return 0.5
	default:
		return 0
	}
}

// feedbackFactor maps explicit user feedback onto [0, 1]. Absent feedback is
// neutral rather than negative.
func feedbackFactor(f models.Feedback) float64 {
	switch {
	case f > 0:
		return 1.0
	case f < 0:
		return 0
	default:
		return 0.5
	}
}

// reusabilityFactor counts generalization markers in the query and response,
// saturating at reusabilityMarkerCap hits.
func (e *Engine) reusabilityFactor(in *models.Interaction) float64 {
	text := strings.ToLower(in.Query + "\n" + in.Response)

	hits := 0
	for _, marker := range e.markers {
		if strings.Contains(text, marker) {
			hits++
			if hits >= reusabilityMarkerCap {
				break
			}
		}
	}
	return float64(hits) / float64(reusabilityMarkerCap)
}

// complexityFactor blends response length with structured-content density.
// The response is parsed as Markdown; headings, lists, and code blocks count
// as structure, a signal of multi-step substantive answers.
func (e *Engine) complexityFactor(response string) float64 {
	if response == "" {
		return 0
	}

	lengthFactor := float64(len(response)) / responseLengthCap
	if lengthFactor > 1 {
		lengthFactor = 1
	}

	structureFactor := float64(e.structureCount(response)) / structureCap
	if structureFactor > 1 {
		structureFactor = 1
	}

	return 0.5*lengthFactor + 0.5*structureFactor
}

// structureCount parses Markdown and counts block-level structural elements.
func (e *Engine) structureCount(response string) int {
	source := []byte(response)
	doc := e.md.Parser().Parse(gmtext.NewReader(source))

	count := 0
	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n.(type) {
		case *ast.Heading, *ast.List, *ast.FencedCodeBlock, *ast.CodeBlock:
			count++
		}
		return ast.WalkContinue, nil
	})
	return count
}

// noveltyFactor decays with the number of recent queries sharing this query's
// normalized shape: 1/(1+repetitions).
func (e *Engine) noveltyFactor(query string, history []string) float64 {
	key := e.hasher.QueryKey(query)

	repetitions := 0
	for _, past := range history {
		if e.hasher.QueryKey(past) == key {
			repetitions++
		}
	}
	return 1.0 / float64(1+repetitions)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
