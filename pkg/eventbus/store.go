// Package eventbus is the persistent, causally-ordered event bus (spec §4.1
// Event Bus/Store). Every event is durably appended to Postgres first —
// that table is the system of record for replay and causation-chain
// queries — then fanned out over a Redis Stream per project for
// at-least-once delivery to subscribers (orchestrator, scheduler, workers).
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/scenestack/pipeline/pkg/domain"
)

// Store is the durable, queryable event log.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Append durably persists an event. Callers should call this before
// Bus.Publish so the log is the first thing written.
func (s *Store) Append(ctx context.Context, e *domain.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("eventbus: marshal payload: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO events
			(event_id, project_id, type, actor, causation_id, "timestamp", payload,
			 blackboard_pointer, cost_amount, latency_ms, retry_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.ProjectID, e.Type, e.Actor, nullableStr(e.CausationID), e.Timestamp, payload,
		nullableStr(e.BlackboardPointer), nullableCost(e.Metadata.Cost), nullableInt64(e.Metadata.LatencyMS),
		nullableInt(e.Metadata.RetryCount))
	if err != nil {
		return fmt.Errorf("eventbus: append %s: %w", e.ID, err)
	}
	return nil
}

// Replay returns events for a project, optionally filtered by type and time
// range, ordered by timestamp ascending (spec §4.1 "replay(project_id,
// types?, since?, until?)").
func (s *Store) Replay(ctx context.Context, projectID string, types []string, since, until *string) ([]*domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE project_id = $1`
	args := []any{projectID}

	if len(types) > 0 {
		args = append(args, types)
		query += fmt.Sprintf(" AND type = ANY($%d)", len(args))
	}
	if since != nil {
		args = append(args, *since)
		query += fmt.Sprintf(` AND "timestamp" >= $%d`, len(args))
	}
	if until != nil {
		args = append(args, *until)
		query += fmt.Sprintf(` AND "timestamp" <= $%d`, len(args))
	}
	query += ` ORDER BY "timestamp" ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("eventbus: replay: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// maxCausationChainDepth caps CausationChain's recursion so a cyclical or
// unexpectedly deep causation graph can't make the query run away (spec
// §4.1: "Chain length is capped (default 100) to prevent unbounded
// recursion").
const maxCausationChainDepth = 100

// CausationChain returns the ancestor chain of an event, from the root
// (CausationID == "") down to eventID itself, via a recursive query over
// causation_id (spec §3: "causation graph is a DAG, rooted at externally
// triggered events"), stopping after maxCausationChainDepth hops.
func (s *Store) CausationChain(ctx context.Context, eventID string) ([]*domain.Event, error) {
	rows, err := s.pool.Query(ctx, `
		WITH RECURSIVE chain AS (
			SELECT `+eventColumns+`, 0 AS depth FROM events WHERE event_id = $1
			UNION ALL
			SELECT e.`+eventColumnsAliased+`, c.depth + 1
			FROM events e
			JOIN chain c ON e.event_id = c.causation_id
			WHERE c.depth < $2
		)
		SELECT `+eventColumns+` FROM chain ORDER BY "timestamp" ASC`, eventID, maxCausationChainDepth)
	if err != nil {
		return nil, fmt.Errorf("eventbus: causation chain: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Descendants returns every event caused, directly or transitively, by
// eventID — the forward direction of the same causation DAG.
func (s *Store) Descendants(ctx context.Context, eventID string) ([]*domain.Event, error) {
	rows, err := s.pool.Query(ctx, `
		WITH RECURSIVE tree AS (
			SELECT `+eventColumns+` FROM events WHERE causation_id = $1
			UNION ALL
			SELECT e.`+eventColumnsAliased+`
			FROM events e
			JOIN tree t ON e.causation_id = t.event_id
		)
		SELECT * FROM tree ORDER BY "timestamp" ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("eventbus: descendants: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// PurgeOrphanedEvents deletes events older than ttl that belong to a
// project already soft-deleted by the retention sweep — the causal log of
// a project nobody can query anymore. Returns the number of rows removed.
func (s *Store) PurgeOrphanedEvents(ctx context.Context, ttl time.Duration) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM events e
		USING projects p
		WHERE e.project_id = p.project_id
		  AND p.deleted_at IS NOT NULL
		  AND e."timestamp" < now() - ($1::text || ' seconds')::interval`,
		ttl.Seconds())
	if err != nil {
		return 0, fmt.Errorf("eventbus: purge orphaned events: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

const eventColumns = `event_id, project_id, type, actor, causation_id, "timestamp", payload,
	blackboard_pointer, cost_amount, latency_ms, retry_count`

const eventColumnsAliased = `event_id, project_id, type, actor, causation_id, "timestamp", payload,
	blackboard_pointer, cost_amount, latency_ms, retry_count`

type rowsIter interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEvents(rows rowsIter) ([]*domain.Event, error) {
	var out []*domain.Event
	for rows.Next() {
		var e domain.Event
		var causationID, blackboardPointer *string
		var cost *float64
		var latencyMS *int64
		var retryCount *int
		var payload []byte

		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Type, &e.Actor, &causationID, &e.Timestamp,
			&payload, &blackboardPointer, &cost, &latencyMS, &retryCount); err != nil {
			return nil, fmt.Errorf("eventbus: scan event: %w", err)
		}
		if causationID != nil {
			e.CausationID = *causationID
		}
		if blackboardPointer != nil {
			e.BlackboardPointer = *blackboardPointer
		}
		if cost != nil {
			e.Metadata.Cost = domain.Money{Amount: decimal.NewFromFloat(*cost)}
		}
		if latencyMS != nil {
			e.Metadata.LatencyMS = *latencyMS
		}
		if retryCount != nil {
			e.Metadata.RetryCount = *retryCount
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("eventbus: unmarshal payload: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullableStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableCost(m domain.Money) *float64 {
	if m.Amount.IsZero() {
		return nil
	}
	v, _ := m.Amount.Float64()
	return &v
}

func nullableInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

func nullableInt(v int) *int {
	if v == 0 {
		return nil
	}
	return &v
}
