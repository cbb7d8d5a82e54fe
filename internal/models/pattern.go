package models

import "time"

// Pattern is a reusable solution extracted from a high-value interaction by
// the continuous learning daemon. Patterns are never created synchronously on
// the request path; extraction is expensive and runs in the background.
//
// ContentHash is the dedup key: two extractions over identical content
// produce one stored pattern.
type Pattern struct {
	ID              string    `json:"id"`
	SkillName       string    `json:"skill_name"`
	Description     string    `json:"description"`
	UsagePattern    string    `json:"usage_pattern"`
	SuccessExamples []string  `json:"success_examples,omitempty"`
	FailureExamples []string  `json:"failure_examples,omitempty"`
	Prerequisites   []string  `json:"prerequisites,omitempty"`
	RelatedSkillIDs []string  `json:"related_skill_ids,omitempty"`
	ValueScore      float64   `json:"value_score"`
	ContentHash     string    `json:"content_hash"`
	CreatedAt       time.Time `json:"created_at"`
}
