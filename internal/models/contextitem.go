package models

import "time"

// ContextItem is a retrievable unit of knowledge: a code snippet, a known
// solution, or a documented practice surfaced during query augmentation.
//
// UsageCount only ever increases. SuccessRate is a rolling aggregate
// recomputed from linked interaction outcomes, never set directly.
type ContextItem struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	ContentType string    `json:"content_type"`
	Tags        []string  `json:"tags,omitempty"`
	UsageCount  int64     `json:"usage_count"`
	SuccessRate float64   `json:"success_rate"`
	ValueScore  float64   `json:"value_score"`
	CreatedAt   time.Time `json:"created_at"`
}
