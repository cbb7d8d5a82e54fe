// Package tracker records the lifecycle of served interactions: creation,
// outcome resolution, and value scoring.
package tracker

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/relay/internal/logger"
	"github.com/harrison/relay/internal/models"
	"github.com/harrison/relay/internal/scoring"
	"github.com/harrison/relay/internal/sqlitedb"
	"github.com/harrison/relay/internal/telemetry"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when no interaction exists for the given id.
var ErrNotFound = errors.New("tracker: interaction not found")

// noveltyHistorySize bounds the recent-query window fed to the scoring
// engine's novelty factor.
const noveltyHistorySize = 50

// ContextRecorder receives usage and outcome signals for context items that
// participated in an interaction.
type ContextRecorder interface {
	RecordUsage(ctx context.Context, ids []string) error
	RecordOutcome(ctx context.Context, ids []string, success bool) error
}

// Store persists interactions and drives scoring on outcome resolution.
type Store struct {
	db       *sql.DB
	events   *telemetry.Log
	engine   *scoring.Engine
	contexts ContextRecorder
	log      logger.Logger
}

// NewStore opens (creating if needed) the interaction store at dbPath.
// events must be non-nil; contexts and log may be nil.
func NewStore(dbPath string, events *telemetry.Log, engine *scoring.Engine, contexts ContextRecorder, log logger.Logger) (*Store, error) {
	if events == nil {
		return nil, fmt.Errorf("tracker requires a telemetry log")
	}
	if engine == nil {
		engine = scoring.NewEngine()
	}
	if log == nil {
		log = logger.Nop{}
	}

	db, err := sqlitedb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open interaction store: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("init interaction schema: %w", err)
	}

	return &Store{
		db:       db,
		events:   events,
		engine:   engine,
		contexts: contexts,
		log:      log,
	}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Track records a newly served interaction and returns its id. The outcome
// starts as unknown; scoring and extraction happen later, so serving never
// blocks on the learning pipeline.
func (s *Store) Track(ctx context.Context, in *models.Interaction) (string, error) {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	in.Outcome = models.OutcomeUnknown
	in.ValueScore = 0
	in.ScoredAt = nil
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}

	if err := in.Validate(); err != nil {
		return "", fmt.Errorf("track interaction: %w", err)
	}

	contextJSON, err := json.Marshal(in.ContextIDs)
	if err != nil {
		return "", fmt.Errorf("marshal context ids: %w", err)
	}
	if in.ContextIDs == nil {
		contextJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO interactions
		(id, query, response, agent_type, model_used, context_ids, outcome,
		 user_feedback, tokens_used, latency_ms, value_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		in.ID, in.Query, in.Response, string(in.AgentType), in.ModelUsed,
		string(contextJSON), string(in.Outcome), int(in.UserFeedback),
		in.TokensUsed, in.LatencyMs, in.ValueScore, in.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("insert interaction: %w", err)
	}

	if s.contexts != nil && len(in.ContextIDs) > 0 {
		if err := s.contexts.RecordUsage(ctx, in.ContextIDs); err != nil {
			s.log.LogWarn(fmt.Sprintf("record context usage for %s: %v", in.ID, err))
		}
	}

	if err := s.events.Append(telemetry.FromInteraction(telemetry.KindCreated, "tracker", in)); err != nil {
		return "", fmt.Errorf("append created event for %s: %w", in.ID, err)
	}

	return in.ID, nil
}

// UpdateOutcome resolves an interaction's outcome, scores it, and emits the
// outcome telemetry event. Resolving an already-terminal interaction returns
// the stored record without rescoring, but re-emits the outcome event if an
// earlier attempt failed before the append. The value score is written
// exactly once.
func (s *Store) UpdateOutcome(ctx context.Context, id string, outcome models.Outcome, feedback models.Feedback) (*models.Interaction, error) {
	if !outcome.IsTerminal() {
		return nil, fmt.Errorf("outcome %q is not terminal", outcome)
	}
	if !feedback.Valid() {
		return nil, fmt.Errorf("invalid feedback %d", feedback)
	}

	in, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Outcome.IsTerminal() {
		// Already resolved, but a prior call may have failed between the
		// outcome update and the event append. The event must still get out.
		if err := s.ensureOutcomeEvent(ctx, in); err != nil {
			return nil, err
		}
		s.log.LogDebug(fmt.Sprintf("interaction %s already resolved as %s, ignoring update", id, in.Outcome))
		return in, nil
	}
	if !in.Outcome.CanTransitionTo(outcome) {
		return nil, fmt.Errorf("interaction %s cannot transition %s -> %s", id, in.Outcome, outcome)
	}

	history, err := s.RecentQueries(ctx, noveltyHistorySize, id)
	if err != nil {
		s.log.LogWarn(fmt.Sprintf("load novelty history for %s: %v", id, err))
		history = nil
	}

	in.Outcome = outcome
	in.UserFeedback = feedback
	in.ValueScore = s.engine.Score(in, history)
	scoredAt := time.Now().UTC()
	in.ScoredAt = &scoredAt

	res, err := s.db.ExecContext(ctx, `UPDATE interactions
		SET outcome = ?, user_feedback = ?, value_score = ?, scored_at = ?
		WHERE id = ? AND outcome = ?`,
		string(outcome), int(feedback), in.ValueScore, scoredAt,
		id, string(models.OutcomeUnknown))
	if err != nil {
		return nil, fmt.Errorf("update outcome for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost a race with a concurrent resolver. First writer wins.
		return s.Get(ctx, id)
	}

	if s.contexts != nil && len(in.ContextIDs) > 0 {
		if err := s.contexts.RecordOutcome(ctx, in.ContextIDs, outcome == models.OutcomeSuccess); err != nil {
			s.log.LogWarn(fmt.Sprintf("record context outcome for %s: %v", id, err))
		}
	}

	if err := s.ensureOutcomeEvent(ctx, in); err != nil {
		return nil, err
	}

	if s.engine.Eligible(in.ValueScore) {
		s.log.LogInfo(fmt.Sprintf("interaction %s scored %.2f, eligible for pattern extraction", id, in.ValueScore))
	}

	return in, nil
}

// ensureOutcomeEvent appends the outcome telemetry event unless a previous
// call already got it onto the log. Emission is at-least-once: a crash
// between the append and the flag update may duplicate the event, which
// replay-side dedup absorbs. Losing the event is the failure mode this
// guards against.
func (s *Store) ensureOutcomeEvent(ctx context.Context, in *models.Interaction) error {
	var emitted bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT event_emitted FROM interactions WHERE id = ?`, in.ID).Scan(&emitted); err != nil {
		return fmt.Errorf("read event state for %s: %w", in.ID, err)
	}
	if emitted {
		return nil
	}

	if err := s.events.Append(telemetry.FromInteraction(telemetry.KindOutcome, "tracker", in)); err != nil {
		return fmt.Errorf("append outcome event for %s: %w", in.ID, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE interactions SET event_emitted = 1 WHERE id = ?`, in.ID); err != nil {
		return fmt.Errorf("mark outcome event emitted for %s: %w", in.ID, err)
	}
	return nil
}

// Get returns the interaction with the given id.
func (s *Store) Get(ctx context.Context, id string) (*models.Interaction, error) {
	row := s.db.QueryRowContext(ctx, `SELECT
		id, query, response, agent_type, model_used, context_ids, outcome,
		user_feedback, tokens_used, latency_ms, value_score, created_at, scored_at
		FROM interactions WHERE id = ?`, id)

	in, err := scanInteraction(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get interaction %s: %w", id, err)
	}
	return in, nil
}

// RecentQueries returns the query texts of the most recent interactions,
// newest first, excluding excludeID.
func (s *Store) RecentQueries(ctx context.Context, limit int, excludeID string) ([]string, error) {
	if limit <= 0 {
		limit = noveltyHistorySize
	}

	rows, err := s.db.QueryContext(ctx, `SELECT query FROM interactions
		WHERE id != ? ORDER BY created_at DESC LIMIT ?`, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent queries: %w", err)
	}
	defer rows.Close()

	var queries []string
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return nil, fmt.Errorf("scan recent query: %w", err)
		}
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

// Stats summarizes stored interactions for reporting.
type Stats struct {
	Total      int64
	ByOutcome  map[models.Outcome]int64
	HighValue  int64
	AvgScore   float64
	ByAgent    map[models.AgentType]int64
	AvgLatency float64
}

// Stats aggregates interaction counts, outcome distribution, and score
// averages. Averages cover scored interactions only.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByOutcome: make(map[models.Outcome]int64),
		ByAgent:   make(map[models.AgentType]int64),
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM interactions GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("outcome stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var outcome string
		var count int64
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("scan outcome stats: %w", err)
		}
		stats.ByOutcome[models.Outcome(outcome)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	agentRows, err := s.db.QueryContext(ctx,
		`SELECT agent_type, COUNT(*) FROM interactions GROUP BY agent_type`)
	if err != nil {
		return nil, fmt.Errorf("agent stats: %w", err)
	}
	defer agentRows.Close()
	for agentRows.Next() {
		var agent string
		var count int64
		if err := agentRows.Scan(&agent, &count); err != nil {
			return nil, fmt.Errorf("scan agent stats: %w", err)
		}
		stats.ByAgent[models.AgentType(agent)] = count
	}
	if err := agentRows.Err(); err != nil {
		return nil, err
	}

	err = s.db.QueryRowContext(ctx, `SELECT
		COUNT(CASE WHEN value_score >= ? THEN 1 END),
		COALESCE(AVG(value_score), 0),
		COALESCE(AVG(latency_ms), 0)
		FROM interactions WHERE scored_at IS NOT NULL`,
		s.engine.Threshold()).Scan(&stats.HighValue, &stats.AvgScore, &stats.AvgLatency)
	if err != nil {
		return nil, fmt.Errorf("score stats: %w", err)
	}

	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInteraction(row rowScanner) (*models.Interaction, error) {
	var in models.Interaction
	var agentType, outcome, contextJSON string
	var feedback int
	var scoredAt sql.NullTime

	if err := row.Scan(
		&in.ID,
		&in.Query,
		&in.Response,
		&agentType,
		&in.ModelUsed,
		&contextJSON,
		&outcome,
		&feedback,
		&in.TokensUsed,
		&in.LatencyMs,
		&in.ValueScore,
		&in.CreatedAt,
		&scoredAt,
	); err != nil {
		return nil, err
	}

	in.AgentType = models.AgentType(agentType)
	in.Outcome = models.Outcome(outcome)
	in.UserFeedback = models.Feedback(feedback)
	if scoredAt.Valid {
		t := scoredAt.Time
		in.ScoredAt = &t
	}
	if err := json.Unmarshal([]byte(contextJSON), &in.ContextIDs); err != nil {
		in.ContextIDs = nil
	}
	return &in, nil
}
