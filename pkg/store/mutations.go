package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scenestack/pipeline/pkg/corerr"
	"github.com/scenestack/pipeline/pkg/domain"
	"github.com/scenestack/pipeline/pkg/lockservice"
)

// UpdateGlobalSpec replaces the GlobalSpec, guarded by the global-style
// lock (spec §4.2 update_global_spec "requires global-style lock").
func (s *Store) UpdateGlobalSpec(ctx context.Context, id string, spec domain.GlobalSpec, actor, causationID string) error {
	return s.withLock(ctx, lockservice.GlobalSpecLockKey(id), func(ctx context.Context) error {
		return s.retryReadModifyWrite(ctx, id, actor, "UPDATE_GLOBAL_SPEC", "/spec", causationID,
			func(p *domain.Project) (string, error) {
				before, _ := json.Marshal(p.Spec)
				p.Spec = spec
				return string(before), nil
			})
	})
}

// UpdateBudget replaces the whole Budget (spec §4.2 update_budget).
func (s *Store) UpdateBudget(ctx context.Context, id string, budget domain.Budget, actor, causationID string) error {
	return s.retryReadModifyWrite(ctx, id, actor, "UPDATE_BUDGET", "/budget", causationID,
		func(p *domain.Project) (string, error) {
			before, _ := json.Marshal(p.Budget)
			p.Budget = budget
			return string(before), nil
		})
}

// AddCost atomically adds amount to the budget's spent total and its
// category breakdown using a single in-database JSON-path expression, so
// concurrent add_cost calls never lose an update (spec §4.2 "numeric-add
// using in-database expression").
func (s *Store) AddCost(ctx context.Context, id string, amount domain.Money, category, actor, causationID string) error {
	amountFloat, _ := amount.Amount.Float64()

	tag, err := s.pool.Exec(ctx, `
		UPDATE projects SET
			version = version + 1,
			updated_at = now(),
			budget = jsonb_set(
				jsonb_set(
					budget,
					'{spent,amount}',
					to_jsonb(COALESCE((budget->'spent'->>'amount')::numeric, 0) + $2::numeric),
					true
				),
				ARRAY['breakdown', $3::text],
				jsonb_build_object(
					'amount', COALESCE((budget->'breakdown'->($3::text)->>'amount')::numeric, 0) + $2::numeric,
					'currency', COALESCE(budget->'breakdown'->($3::text)->>'currency', $4::text)
				),
				true
			)
		WHERE project_id = $1`,
		id, amountFloat, category, amount.Currency)
	if err != nil {
		return fmt.Errorf("store: add_cost %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.ErrNotFound
	}

	if err := s.appendChangeLog(ctx, id, domain.ChangeLogEntry{
		Actor: actor, ChangeType: "ADD_COST", Description: fmt.Sprintf("+%s %s (%s)", amount.Amount.String(), amount.Currency, category),
		ChangePath: "/budget/spent", CausationID: causationID,
	}); err != nil {
		return err
	}

	s.cache.invalidate(ctx, id)
	return nil
}

// UpdateDNABank upserts one entity's DNA entry, guarded by the DNA-bank
// lock (spec §4.2 update_dna_bank "requires dna-bank lock").
func (s *Store) UpdateDNABank(ctx context.Context, id, entityID string, entry domain.DNAEntry, actor, causationID string) error {
	return s.withLock(ctx, lockservice.DNABankLockKey(id, entityID), func(ctx context.Context) error {
		return s.retryReadModifyWrite(ctx, id, actor, "UPDATE_DNA_BANK", "/dna_bank/"+entityID, causationID,
			func(p *domain.Project) (string, error) {
				before, _ := json.Marshal(p.DNABank[entityID])
				if p.DNABank == nil {
					p.DNABank = map[string]domain.DNAEntry{}
				}
				p.DNABank[entityID] = entry
				return string(before), nil
			})
	})
}

// UpdateShot merges shotData into one shot, guarded by the per-shot lock
// (spec §4.2 update_shot "requires per-shot lock").
func (s *Store) UpdateShot(ctx context.Context, id, shotID string, shot domain.Shot, actor, causationID string) error {
	return s.withLock(ctx, lockservice.ShotLockKey(id, shotID), func(ctx context.Context) error {
		return s.retryReadModifyWrite(ctx, id, actor, "UPDATE_SHOT", "/shots/"+shotID, causationID,
			func(p *domain.Project) (string, error) {
				before, _ := json.Marshal(p.Shots[shotID])
				if p.Shots == nil {
					p.Shots = map[string]domain.Shot{}
				}
				p.Shots[shotID] = shot
				return string(before), nil
			})
	})
}

// BatchUpdateShots merges several shots in one mutation, guarded by the
// shots-scope lock (spec §4.2 batch_update_shots "requires shots-scope
// lock").
func (s *Store) BatchUpdateShots(ctx context.Context, id string, shots map[string]domain.Shot, actor, causationID string) error {
	return s.withLock(ctx, shotsScopeLockKey(id), func(ctx context.Context) error {
		return s.retryReadModifyWrite(ctx, id, actor, "BATCH_UPDATE_SHOTS", "/shots", causationID,
			func(p *domain.Project) (string, error) {
				before, _ := json.Marshal(p.Shots)
				if p.Shots == nil {
					p.Shots = map[string]domain.Shot{}
				}
				for shotID, shot := range shots {
					p.Shots[shotID] = shot
				}
				return string(before), nil
			})
	})
}

func shotsScopeLockKey(projectID string) string {
	return "project:" + projectID + ":shots"
}

// RegisterArtifact records a generated artifact in both the durable
// artifact-index table and the Project's artifact map mirror (spec §4.2
// register_artifact).
func (s *Store) RegisterArtifact(ctx context.Context, id string, artifact domain.ArtifactEntry) error {
	cost, _ := artifact.Cost.Amount.Float64()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: register_artifact begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO artifacts (uri, project_id, seed, model, model_version, prompt, cost_amount, currency, created_at, use_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (uri) DO UPDATE SET use_count = artifacts.use_count + 1`,
		artifact.URI, id, artifact.Seed, artifact.Model, artifact.ModelVersion, artifact.Prompt,
		cost, artifact.Cost.Currency, artifact.CreatedAt, artifact.UseCount)
	if err != nil {
		return fmt.Errorf("store: register_artifact insert: %w", err)
	}

	artifactJSON, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("store: marshal artifact: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE projects SET
			version = version + 1,
			updated_at = now(),
			artifacts = jsonb_set(artifacts, ARRAY[$2], $3::jsonb, true)
		WHERE project_id = $1`,
		id, artifact.URI, artifactJSON)
	if err != nil {
		return fmt.Errorf("store: register_artifact update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: register_artifact commit: %w", err)
	}
	s.cache.invalidate(ctx, id)
	return nil
}

// AppendError appends one entry to the Project's append-only Error Log
// (spec §4.2 append_error).
func (s *Store) AppendError(ctx context.Context, id string, entry domain.ErrorLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("store: marshal error log entry: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE projects SET
			version = version + 1,
			updated_at = now(),
			error_log = error_log || $2::jsonb
		WHERE project_id = $1`,
		id, "["+string(entryJSON)+"]")
	if err != nil {
		return fmt.Errorf("store: append_error %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.ErrNotFound
	}
	s.cache.invalidate(ctx, id)
	return nil
}

// AppendChange is the public entry point for append_change (spec §4.2
// append_error/append_change) — every other mutation in this file already
// calls the internal appendChangeLog directly as part of its own write, so
// this is for callers (e.g. the Orchestrator) recording a change that
// doesn't correspond to one of the typed mutations above.
func (s *Store) AppendChange(ctx context.Context, id string, entry domain.ChangeLogEntry) error {
	if err := s.appendChangeLog(ctx, id, entry); err != nil {
		return err
	}
	s.cache.invalidate(ctx, id)
	return nil
}

// appendChangeLog writes one entry to the durable change_log_entries table
// and appends (capped at domain.MaxChangeLogEntries) to the project row's
// change_log mirror, bumping version (spec §4.2 "Change log semantics").
func (s *Store) appendChangeLog(ctx context.Context, id string, entry domain.ChangeLogEntry) error {
	entry.Timestamp = time.Now().UTC()
	entry.Before = domain.SummarizeSnapshot(entry.Before)
	entry.After = domain.SummarizeSnapshot(entry.After)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: change log begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var version int64
	if err := tx.QueryRow(ctx, `SELECT version FROM projects WHERE project_id = $1 FOR UPDATE`, id).Scan(&version); err != nil {
		if errors.Is(err, pgxNoRows) {
			return corerr.ErrNotFound
		}
		return fmt.Errorf("store: read version for change log: %w", err)
	}
	entry.Version = version

	_, err = tx.Exec(ctx, `
		INSERT INTO change_log_entries (id, project_id, version, "timestamp", actor, change_type,
			description, change_path, causation_id, before_snapshot, after_snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.NewString(), id, entry.Version, entry.Timestamp, entry.Actor, entry.ChangeType,
		entry.Description, entry.ChangePath, nullableStr(entry.CausationID), nullableStr(entry.Before), nullableStr(entry.After))
	if err != nil {
		return fmt.Errorf("store: insert change log entry: %w", err)
	}

	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("store: marshal change log entry: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE projects SET
			change_log = (
				SELECT jsonb_agg(elem) FROM (
					SELECT elem FROM jsonb_array_elements(change_log || $2::jsonb) AS elem
					ORDER BY (elem->>'version')::bigint DESC
					LIMIT $3
				) capped
			),
			updated_at = now()
		WHERE project_id = $1`,
		id, "["+string(entryJSON)+"]", domain.MaxChangeLogEntries)
	if err != nil {
		return fmt.Errorf("store: update project change log mirror: %w", err)
	}

	return tx.Commit(ctx)
}

// FullChangeLog reads the complete, uncapped change history for a project
// straight from change_log_entries — unlike Project.ChangeLog (capped at
// domain.MaxChangeLogEntries), this table is never trimmed (spec §4.2
// "change log semantics" / spec §9 resolves the table's write-only status
// by giving it this read path rather than dropping it).
func (s *Store) FullChangeLog(ctx context.Context, id string, limit int) ([]domain.ChangeLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT version, "timestamp", actor, change_type, description, change_path,
			causation_id, before_snapshot, after_snapshot
		FROM change_log_entries
		WHERE project_id = $1
		ORDER BY version DESC
		LIMIT $2`, id, limit)
	if err != nil {
		return nil, fmt.Errorf("store: full change log: %w", err)
	}
	defer rows.Close()
	return scanChangeLogEntries(rows)
}

// SearchChangeLog full-text searches a project's change history by
// description, using the GIN index over change_log_entries.description —
// the one production reader of the otherwise write-only table (spec §9).
func (s *Store) SearchChangeLog(ctx context.Context, id, query string, limit int) ([]domain.ChangeLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT version, "timestamp", actor, change_type, description, change_path,
			causation_id, before_snapshot, after_snapshot
		FROM change_log_entries
		WHERE project_id = $1
			AND to_tsvector('english', description) @@ plainto_tsquery('english', $2)
		ORDER BY version DESC
		LIMIT $3`, id, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search change log: %w", err)
	}
	defer rows.Close()
	return scanChangeLogEntries(rows)
}

func scanChangeLogEntries(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]domain.ChangeLogEntry, error) {
	var out []domain.ChangeLogEntry
	for rows.Next() {
		var e domain.ChangeLogEntry
		var causationID, before, after *string
		if err := rows.Scan(&e.Version, &e.Timestamp, &e.Actor, &e.ChangeType, &e.Description, &e.ChangePath,
			&causationID, &before, &after); err != nil {
			return nil, fmt.Errorf("store: scan change log entry: %w", err)
		}
		if causationID != nil {
			e.CausationID = *causationID
		}
		if before != nil {
			e.Before = *before
		}
		if after != nil {
			e.After = *after
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// withLock runs fn under the named lock using the configured default TTL,
// surfacing corerr.ErrLockHeld unchanged if acquisition fails.
func (s *Store) withLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if s.locks == nil {
		return fn(ctx)
	}
	return s.locks.WithLock(ctx, key, 0, fn)
}

// retryReadModifyWrite implements the compound-mutation retry loop (spec
// §4.2: "read, compute new state, UPDATE with version predicate, retry up
// to 3 times with exponential backoff"). mutate receives the current
// project to modify in place and returns the before-snapshot for the
// change log.
func (s *Store) retryReadModifyWrite(ctx context.Context, id, actor, changeType, changePath, causationID string,
	mutate func(p *domain.Project) (beforeSnapshot string, err error)) error {

	var lastErr error
	for attempt := 0; attempt <= len(retryBackoff); attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff[attempt-1]):
			}
		}

		p, err := s.getProjectBypassCache(ctx, id)
		if err != nil {
			return err
		}

		before, err := mutate(p)
		if err != nil {
			return err
		}
		after, _ := json.Marshal(p)

		specJSON, budgetJSON, err := marshalSpecBudget(p)
		if err != nil {
			return err
		}
		dnaJSON, _ := json.Marshal(p.DNABank)
		shotsJSON, _ := json.Marshal(p.Shots)

		tag, err := s.pool.Exec(ctx, `
			UPDATE projects SET
				version = version + 1,
				updated_at = now(),
				spec = $3,
				budget = $4,
				dna_bank = $5,
				shots = $6
			WHERE project_id = $1 AND version = $2`,
			id, p.Version, specJSON, budgetJSON, dnaJSON, shotsJSON)
		if err != nil {
			return fmt.Errorf("store: %s %s: %w", changeType, id, err)
		}
		if tag.RowsAffected() == 0 {
			lastErr = corerr.ErrConcurrentModification
			continue
		}

		if err := s.appendChangeLog(ctx, id, domain.ChangeLogEntry{
			Actor: actor, ChangeType: changeType, Description: changeType,
			ChangePath: changePath, CausationID: causationID,
			Before: before, After: string(after),
		}); err != nil {
			return err
		}

		s.cache.invalidate(ctx, id)
		return nil
	}
	return lastErr
}
