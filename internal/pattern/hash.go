// Package pattern stores reusable solutions extracted from high-value
// interactions, deduplicated by content hash.
package pattern

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"unicode"
)

// HashResult contains both exact and normalized hashes for pattern content.
// FullHash is the exact SHA256 of the input. NormalizedHash hashes the
// normalized (lowercase, no punctuation, stopwords removed, sorted words)
// input so near-identical content dedupes to one pattern.
type HashResult struct {
	// FullHash is the SHA256 hash of the original input
	FullHash string `json:"full_hash"`

	// NormalizedHash is the SHA256 hash of the normalized input
	NormalizedHash string `json:"normalized_hash"`
}

// ContentHasher hashes pattern content for duplicate detection. The scoring
// engine reuses its normalization to bucket queries for novelty tracking.
type ContentHasher struct {
	stopwords map[string]bool
}

// NewContentHasher creates a ContentHasher with default English stopwords.
func NewContentHasher() *ContentHasher {
	return &ContentHasher{
		stopwords: defaultStopwords(),
	}
}

// defaultStopwords returns a set of common English stopwords to filter out.
func defaultStopwords() map[string]bool {
	words := []string{
		"the", "a", "an", "is", "are", "was", "were", "be", "been", "being",
		"have", "has", "had", "do", "does", "did", "will", "would", "could",
		"should", "may", "might", "must", "shall", "can", "need", "dare",
		"to", "of", "in", "for", "on", "with", "at", "by", "from", "as",
		"into", "through", "during", "before", "after", "above", "below",
		"between", "under", "over", "out", "up", "down", "off", "about",
		"and", "but", "or", "nor", "so", "yet", "both", "either", "neither",
		"not", "only", "also", "just", "than", "too", "very", "much",
		"this", "that", "these", "those", "it", "its", "itself",
		"i", "me", "my", "we", "us", "our", "you", "your", "he", "she",
		"him", "her", "his", "they", "them", "their", "who", "which", "what",
		"all", "each", "every", "any", "some", "no", "none", "one", "two",
	}

	stopwords := make(map[string]bool, len(words))
	for _, w := range words {
		stopwords[w] = true
	}
	return stopwords
}

// Hash produces a HashResult from a skill description and its usage pattern.
// The two parts are combined into a single input string.
func (h *ContentHasher) Hash(description string, usagePattern string) HashResult {
	input := h.buildInput(description, usagePattern)

	return HashResult{
		FullHash:       sha256Hex(input),
		NormalizedHash: sha256Hex(h.Normalize(input)),
	}
}

// buildInput combines description and usage pattern for hashing.
func (h *ContentHasher) buildInput(description string, usagePattern string) string {
	var builder strings.Builder
	builder.WriteString(description)
	if usagePattern != "" {
		builder.WriteString("\n---usage---\n")
		builder.WriteString(usagePattern)
	}
	return builder.String()
}

// sha256Hex calculates the SHA256 hash of a string as a hex string.
func sha256Hex(input string) string {
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// Normalize applies the normalization pipeline:
// 1. Convert to lowercase
// 2. Remove punctuation
// 3. Split into words
// 4. Remove stopwords
// 5. Sort words alphabetically
// 6. Join back into a single string
func (h *ContentHasher) Normalize(input string) string {
	lower := strings.ToLower(input)

	var cleaned strings.Builder
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			cleaned.WriteRune(r)
		} else {
			cleaned.WriteRune(' ')
		}
	}

	words := strings.Fields(cleaned.String())

	filtered := make([]string, 0, len(words))
	for _, w := range words {
		if len(w) > 0 && !h.stopwords[w] {
			filtered = append(filtered, w)
		}
	}

	sort.Strings(filtered)

	return strings.Join(filtered, " ")
}

// QueryKey returns a short stable key for a query's normalized form.
// The scoring engine uses it to count recent repetitions of a query shape.
func (h *ContentHasher) QueryKey(query string) string {
	return sha256Hex(h.Normalize(query))[:16]
}
