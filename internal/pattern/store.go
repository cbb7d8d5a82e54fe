package pattern

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/relay/internal/models"
	"github.com/harrison/relay/internal/sqlitedb"
)

// Store persists extracted patterns, deduplicated by content hash.
// Upserting a pattern whose content hash already exists updates the stored
// record instead of inserting a duplicate, which makes re-extraction after a
// checkpoint replay idempotent.
type Store struct {
	db *sql.DB
}

const patternSchema = `
CREATE TABLE IF NOT EXISTS patterns (
	id TEXT PRIMARY KEY,
	skill_name TEXT NOT NULL,
	description TEXT NOT NULL,
	usage_pattern TEXT NOT NULL DEFAULT '',
	success_examples TEXT NOT NULL DEFAULT '[]',
	failure_examples TEXT NOT NULL DEFAULT '[]',
	prerequisites TEXT NOT NULL DEFAULT '[]',
	related_skill_ids TEXT NOT NULL DEFAULT '[]',
	value_score REAL NOT NULL DEFAULT 0,
	content_hash TEXT NOT NULL UNIQUE,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_patterns_skill ON patterns(skill_name);
CREATE INDEX IF NOT EXISTS idx_patterns_score ON patterns(value_score);
`

// NewStore opens (creating if needed) the pattern store at dbPath.
func NewStore(dbPath string) (*Store, error) {
	db, err := sqlitedb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open pattern store: %w", err)
	}

	if _, err := db.Exec(patternSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init pattern schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Upsert stores a pattern, deduplicating by content hash. On a hash
// collision the existing record keeps its id and creation time; examples,
// related skills, and value score are refreshed (value score keeps the
// maximum of old and new).
func (s *Store) Upsert(ctx context.Context, p *models.Pattern) error {
	if p.ContentHash == "" {
		return fmt.Errorf("pattern content hash cannot be empty")
	}
	if p.SkillName == "" {
		return fmt.Errorf("pattern skill name cannot be empty")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	successJSON, err := marshalList(p.SuccessExamples)
	if err != nil {
		return fmt.Errorf("marshal success examples: %w", err)
	}
	failureJSON, err := marshalList(p.FailureExamples)
	if err != nil {
		return fmt.Errorf("marshal failure examples: %w", err)
	}
	prereqJSON, err := marshalList(p.Prerequisites)
	if err != nil {
		return fmt.Errorf("marshal prerequisites: %w", err)
	}
	relatedJSON, err := marshalList(p.RelatedSkillIDs)
	if err != nil {
		return fmt.Errorf("marshal related skill ids: %w", err)
	}

	query := `INSERT INTO patterns
		(id, skill_name, description, usage_pattern, success_examples, failure_examples,
		 prerequisites, related_skill_ids, value_score, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO UPDATE SET
			skill_name = excluded.skill_name,
			description = excluded.description,
			usage_pattern = excluded.usage_pattern,
			success_examples = excluded.success_examples,
			failure_examples = excluded.failure_examples,
			prerequisites = excluded.prerequisites,
			related_skill_ids = excluded.related_skill_ids,
			value_score = MAX(patterns.value_score, excluded.value_score)`

	if _, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.SkillName,
		p.Description,
		p.UsagePattern,
		successJSON,
		failureJSON,
		prereqJSON,
		relatedJSON,
		p.ValueScore,
		p.ContentHash,
		p.CreatedAt,
	); err != nil {
		return fmt.Errorf("upsert pattern: %w", err)
	}

	return nil
}

// GetByHash returns the pattern with the given content hash, or nil when no
// such pattern exists.
func (s *Store) GetByHash(ctx context.Context, contentHash string) (*models.Pattern, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, skill_name, description, usage_pattern, success_examples, failure_examples,
		prerequisites, related_skill_ids, value_score, content_hash, created_at
		FROM patterns WHERE content_hash = ?`, contentHash)

	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pattern by hash: %w", err)
	}
	return p, nil
}

// List returns up to limit patterns ordered by value score descending.
func (s *Store) List(ctx context.Context, limit int) ([]models.Pattern, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `SELECT
		id, skill_name, description, usage_pattern, success_examples, failure_examples,
		prerequisites, related_skill_ids, value_score, content_hash, created_at
		FROM patterns ORDER BY value_score DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list patterns: %w", err)
	}
	defer rows.Close()

	var patterns []models.Pattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		patterns = append(patterns, *p)
	}
	return patterns, rows.Err()
}

// Count returns the number of stored patterns.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM patterns`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count patterns: %w", err)
	}
	return count, nil
}

// scanner abstracts *sql.Row and *sql.Rows for scanPattern.
type scanner interface {
	Scan(dest ...any) error
}

func scanPattern(row scanner) (*models.Pattern, error) {
	var p models.Pattern
	var successJSON, failureJSON, prereqJSON, relatedJSON string

	if err := row.Scan(
		&p.ID,
		&p.SkillName,
		&p.Description,
		&p.UsagePattern,
		&successJSON,
		&failureJSON,
		&prereqJSON,
		&relatedJSON,
		&p.ValueScore,
		&p.ContentHash,
		&p.CreatedAt,
	); err != nil {
		return nil, err
	}

	for _, pair := range []struct {
		raw string
		dst *[]string
	}{
		{successJSON, &p.SuccessExamples},
		{failureJSON, &p.FailureExamples},
		{prereqJSON, &p.Prerequisites},
		{relatedJSON, &p.RelatedSkillIDs},
	} {
		if err := json.Unmarshal([]byte(pair.raw), pair.dst); err != nil {
			return nil, fmt.Errorf("unmarshal pattern list field: %w", err)
		}
	}

	return &p, nil
}

func marshalList(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
