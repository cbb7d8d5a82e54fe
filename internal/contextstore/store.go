// Package contextstore manages the local knowledge base of context items
// used to augment queries before routing.
package contextstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/relay/internal/models"
	"github.com/harrison/relay/internal/sqlitedb"
)

// Store is a SQLite-backed context item store with full-text search.
// FTS5 is used when the SQLite build supports it; otherwise search falls
// back to LIKE matching.
type Store struct {
	db     *sql.DB
	hasFTS bool
}

const itemSchema = `
CREATE TABLE IF NOT EXISTS context_items (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT 'note',
	tags TEXT NOT NULL DEFAULT '[]',
	usage_count INTEGER NOT NULL DEFAULT 0,
	outcome_count INTEGER NOT NULL DEFAULT 0,
	success_count INTEGER NOT NULL DEFAULT 0,
	success_rate REAL NOT NULL DEFAULT 0,
	value_score REAL NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_context_items_usage ON context_items(usage_count);
CREATE INDEX IF NOT EXISTS idx_context_items_type ON context_items(content_type);
`

// FTS5 is optional. When unavailable the store silently falls back to LIKE.
// The table uses external content, so delete and update triggers must go
// through the special 'delete' insert form; a plain DELETE would read the
// already-changed base row and corrupt the index.
const ftsSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS context_items_fts USING fts5(
	content,
	tags,
	content=context_items,
	content_rowid=rowid
);

CREATE TRIGGER IF NOT EXISTS context_items_ai AFTER INSERT ON context_items BEGIN
	INSERT INTO context_items_fts(rowid, content, tags)
	VALUES (new.rowid, new.content, new.tags);
END;

CREATE TRIGGER IF NOT EXISTS context_items_ad AFTER DELETE ON context_items BEGIN
	INSERT INTO context_items_fts(context_items_fts, rowid, content, tags)
	VALUES ('delete', old.rowid, old.content, old.tags);
END;

CREATE TRIGGER IF NOT EXISTS context_items_au AFTER UPDATE OF content, tags ON context_items BEGIN
	INSERT INTO context_items_fts(context_items_fts, rowid, content, tags)
	VALUES ('delete', old.rowid, old.content, old.tags);
	INSERT INTO context_items_fts(rowid, content, tags)
	VALUES (new.rowid, new.content, new.tags);
END;
`

// NewStore opens (creating if needed) the context store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sqlitedb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open context store: %w", err)
	}

	if _, err := db.Exec(itemSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init context schema: %w", err)
	}

	s := &Store{db: db}
	if _, err := db.Exec(ftsSchema); err == nil {
		s.hasFTS = true
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Add inserts a context item, assigning an id and creation time when unset.
func (s *Store) Add(ctx context.Context, item *models.ContextItem) error {
	if item.Content == "" {
		return fmt.Errorf("context item content cannot be empty")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.ContentType == "" {
		item.ContentType = "note"
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}

	tagsJSON, err := json.Marshal(item.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	if item.Tags == nil {
		tagsJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO context_items
		(id, content, content_type, tags, usage_count, success_rate, value_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Content, item.ContentType, string(tagsJSON),
		item.UsageCount, item.SuccessRate, item.ValueScore, item.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert context item: %w", err)
	}
	return nil
}

// Get returns the item with the given id, or nil when absent.
func (s *Store) Get(ctx context.Context, id string) (*models.ContextItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, content, content_type, tags, usage_count, success_rate, value_score, created_at
		FROM context_items WHERE id = ?`, id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get context item: %w", err)
	}
	return item, nil
}

// Search returns up to topK items relevant to the query, best match first.
// A non-empty contentType restricts results to that type. An empty query or
// a query with no indexable terms returns no items.
func (s *Store) Search(ctx context.Context, query string, topK int, contentType string) ([]models.ContextItem, error) {
	if topK <= 0 {
		topK = 3
	}

	if s.hasFTS {
		match := ftsMatchExpr(query)
		if match == "" {
			return nil, nil
		}
		return s.searchFTS(ctx, match, topK, contentType)
	}
	return s.searchLike(ctx, query, topK, contentType)
}

func (s *Store) searchFTS(ctx context.Context, match string, topK int, contentType string) ([]models.ContextItem, error) {
	typeFilter := ""
	args := []any{match}
	if contentType != "" {
		typeFilter = " AND i.content_type = ?"
		args = append(args, contentType)
	}
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, `SELECT
		i.id, i.content, i.content_type, i.tags, i.usage_count, i.success_rate, i.value_score, i.created_at
		FROM context_items i
		JOIN context_items_fts fts ON i.rowid = fts.rowid
		WHERE context_items_fts MATCH ?`+typeFilter+`
		ORDER BY rank
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("fts search: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

func (s *Store) searchLike(ctx context.Context, query string, topK int, contentType string) ([]models.ContextItem, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var where []string
	var args []any
	for _, term := range terms {
		where = append(where, "content LIKE ?")
		args = append(args, "%"+term+"%")
	}
	typeFilter := ""
	if contentType != "" {
		typeFilter = " AND content_type = ?"
		args = append(args, contentType)
	}
	args = append(args, topK)

	rows, err := s.db.QueryContext(ctx, `SELECT
		id, content, content_type, tags, usage_count, success_rate, value_score, created_at
		FROM context_items
		WHERE (`+strings.Join(where, " OR ")+`)`+typeFilter+`
		ORDER BY value_score DESC, usage_count DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("like search: %w", err)
	}
	defer rows.Close()
	return collectItems(rows)
}

// RecordUsage increments the usage counter for each id. Usage counts only
// ever grow. Unknown ids are ignored.
func (s *Store) RecordUsage(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	stmt, err := s.db.PrepareContext(ctx,
		`UPDATE context_items SET usage_count = usage_count + 1 WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare usage update: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("record usage for %s: %w", id, err)
		}
	}
	return nil
}

// RecordOutcome folds a resolved interaction's outcome into the success rate
// of every context item that was included in its prompt.
func (s *Store) RecordOutcome(ctx context.Context, ids []string, success bool) error {
	if len(ids) == 0 {
		return nil
	}

	successDelta := 0
	if success {
		successDelta = 1
	}

	stmt, err := s.db.PrepareContext(ctx, `UPDATE context_items SET
		outcome_count = outcome_count + 1,
		success_count = success_count + ?,
		success_rate = CAST(success_count + ? AS REAL) / (outcome_count + 1)
		WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare outcome update: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, successDelta, successDelta, id); err != nil {
			return fmt.Errorf("record outcome for %s: %w", id, err)
		}
	}
	return nil
}

// Count returns the number of stored context items.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM context_items`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count context items: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*models.ContextItem, error) {
	var item models.ContextItem
	var tagsJSON string

	if err := row.Scan(
		&item.ID,
		&item.Content,
		&item.ContentType,
		&tagsJSON,
		&item.UsageCount,
		&item.SuccessRate,
		&item.ValueScore,
		&item.CreatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &item.Tags); err != nil {
		item.Tags = nil
	}
	return &item, nil
}

func collectItems(rows *sql.Rows) ([]models.ContextItem, error) {
	var items []models.ContextItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan context item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// ftsMatchExpr builds a safe FTS5 match expression: bare user input can
// contain operators and punctuation FTS5 rejects, so each term is quoted and
// terms are OR-ed.
func ftsMatchExpr(query string) string {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return ""
	}

	quoted := make([]string, len(terms))
	for i, term := range terms {
		quoted[i] = `"` + term + `"`
	}
	return strings.Join(quoted, " OR ")
}

// queryTerms extracts alphanumeric search terms from free-form query text.
func queryTerms(query string) []string {
	fields := strings.Fields(query)
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		var b strings.Builder
		for _, r := range f {
			if r == '"' || r == '\'' {
				continue
			}
			b.WriteRune(r)
		}
		if term := strings.TrimSpace(b.String()); term != "" {
			terms = append(terms, term)
		}
	}
	return terms
}
