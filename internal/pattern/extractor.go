package pattern

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/relay/internal/backend"
	"github.com/harrison/relay/internal/breaker"
	"github.com/harrison/relay/internal/logger"
	"github.com/harrison/relay/internal/models"
)

// extractionSystemPrompt enforces JSON-only output so the response parses
// without stripping prose.
const extractionSystemPrompt = `You are a pattern extraction assistant. Given a query and the response that resolved it, extract the reusable problem-solving pattern. Your ONLY output must be valid JSON with these fields:
{
  "skill_name": "short snake_case identifier",
  "description": "one sentence describing when this pattern applies",
  "usage_pattern": "the generalized steps or template, stripped of instance-specific detail",
  "prerequisites": ["required tools or conditions"]
}
No markdown, no code fences, no prose. Output raw JSON only.`

// Extractor turns high-value interactions into stored patterns. Extraction
// calls an inference backend through its own circuit breaker so a degraded
// model cannot stall the learning pass.
type Extractor struct {
	backend backend.Backend
	breaker *breaker.Breaker
	store   *Store
	hasher  *ContentHasher
	log     logger.Logger
}

// NewExtractor creates an Extractor. log may be nil.
func NewExtractor(b backend.Backend, br *breaker.Breaker, store *Store, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.Nop{}
	}
	return &Extractor{
		backend: b,
		breaker: br,
		store:   store,
		hasher:  NewContentHasher(),
		log:     log,
	}
}

// extractionResponse is the strict JSON shape the extraction model returns.
type extractionResponse struct {
	SkillName     string   `json:"skill_name"`
	Description   string   `json:"description"`
	UsagePattern  string   `json:"usage_pattern"`
	Prerequisites []string `json:"prerequisites"`
}

// Extract derives a pattern from a scored interaction and upserts it into
// the store. The returned pattern reflects what was stored. Errors are
// returned for the caller to log; they never carry partial writes.
func (e *Extractor) Extract(ctx context.Context, in *models.Interaction) (*models.Pattern, error) {
	if in.Query == "" {
		return nil, fmt.Errorf("interaction %s has no query", in.ID)
	}

	prompt := e.buildPrompt(in)

	var comp *backend.Completion
	err := e.breaker.Do(ctx, func(ctx context.Context) error {
		var callErr error
		comp, callErr = e.backend.Complete(ctx, prompt, "")
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("extraction completion for %s: %w", in.ID, err)
	}

	parsed, err := parseExtraction(comp.Text)
	if err != nil {
		return nil, fmt.Errorf("parse extraction for %s: %w", in.ID, err)
	}

	hash := e.hasher.Hash(parsed.Description, parsed.UsagePattern)

	p := &models.Pattern{
		ID:            uuid.NewString(),
		SkillName:     parsed.SkillName,
		Description:   parsed.Description,
		UsagePattern:  parsed.UsagePattern,
		Prerequisites: parsed.Prerequisites,
		ValueScore:    in.ValueScore,
		ContentHash:   hash.NormalizedHash,
		CreatedAt:     time.Now().UTC(),
	}

	example := in.Query
	if in.Outcome == models.OutcomeSuccess {
		p.SuccessExamples = []string{example}
	} else {
		p.FailureExamples = []string{example}
	}

	if err := e.store.Upsert(ctx, p); err != nil {
		return nil, fmt.Errorf("store pattern for %s: %w", in.ID, err)
	}

	e.log.LogDebug(fmt.Sprintf("extracted pattern %s (skill=%s, hash=%s)", p.ID, p.SkillName, p.ContentHash[:12]))
	return p, nil
}

// buildPrompt assembles the extraction prompt from the interaction transcript.
func (e *Extractor) buildPrompt(in *models.Interaction) string {
	var b strings.Builder
	b.WriteString(extractionSystemPrompt)
	b.WriteString("\n\nQuery:\n")
	b.WriteString(in.Query)
	b.WriteString("\n\nResponse:\n")
	b.WriteString(in.Response)
	b.WriteString("\n\nOutcome: ")
	b.WriteString(string(in.Outcome))
	return b.String()
}

// parseExtraction parses the model output strictly, tolerating only a
// surrounding markdown code fence.
func parseExtraction(text string) (*extractionResponse, error) {
	raw := stripCodeFence(strings.TrimSpace(text))
	if raw == "" {
		return nil, fmt.Errorf("empty extraction response")
	}

	var resp extractionResponse
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("invalid extraction JSON: %w", err)
	}

	if resp.SkillName == "" {
		return nil, fmt.Errorf("extraction response missing skill_name")
	}
	if resp.Description == "" {
		return nil, fmt.Errorf("extraction response missing description")
	}
	return &resp, nil
}

// stripCodeFence removes a ```json ... ``` wrapper some models emit despite
// instructions.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
