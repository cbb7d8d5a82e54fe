// Package augment enriches incoming queries with relevant local context
// before they are routed to a backend.
package augment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harrison/relay/internal/breaker"
	"github.com/harrison/relay/internal/logger"
	"github.com/harrison/relay/internal/models"
)

// Searcher is the retrieval contract the augmenter depends on.
type Searcher interface {
	Search(ctx context.Context, query string, topK int, contentType string) ([]models.ContextItem, error)
}

// Result is an augmented query ready for routing. ContextIDs lists exactly
// the items whose content was included in the prompt, in inclusion order.
type Result struct {
	Prompt     string
	ContextIDs []string
	Degraded   bool
}

// Service performs context retrieval behind a circuit breaker and a timeout.
// Retrieval is best-effort: any failure degrades to the unaugmented query
// rather than blocking the serving path.
type Service struct {
	store   Searcher
	breaker *breaker.Breaker
	topK    int
	timeout time.Duration
	log     logger.Logger
}

// NewService creates an augmentation service. log may be nil.
func NewService(store Searcher, br *breaker.Breaker, topK int, timeout time.Duration, log logger.Logger) *Service {
	if topK <= 0 {
		topK = 3
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Service{
		store:   store,
		breaker: br,
		topK:    topK,
		timeout: timeout,
		log:     log,
	}
}

// Augment retrieves context for the query and assembles the prompt. On
// retrieval failure, timeout, or an open breaker it returns the original
// query with no context ids and a nil error.
func (s *Service) Augment(ctx context.Context, query string) (*Result, error) {
	searchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var items []models.ContextItem
	err := s.breaker.Do(searchCtx, func(ctx context.Context) error {
		var searchErr error
		items, searchErr = s.store.Search(ctx, query, s.topK, "")
		return searchErr
	})
	if err != nil {
		if errors.Is(err, breaker.ErrCircuitOpen) {
			s.log.LogWarn("context retrieval circuit open, serving unaugmented query")
		} else {
			s.log.LogWarn(fmt.Sprintf("context retrieval failed, serving unaugmented query: %v", err))
		}
		return &Result{Prompt: query, Degraded: true}, nil
	}

	if len(items) == 0 {
		return &Result{Prompt: query}, nil
	}

	ids := make([]string, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}

	return &Result{
		Prompt:     buildPrompt(query, items),
		ContextIDs: ids,
	}, nil
}

// buildPrompt prepends retrieved context to the query.
func buildPrompt(query string, items []models.ContextItem) string {
	var b strings.Builder
	b.WriteString("Relevant context from previous work:\n\n")
	for i, item := range items {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, strings.TrimSpace(item.Content))
	}
	b.WriteString("\nQuery:\n")
	b.WriteString(query)
	return b.String()
}
