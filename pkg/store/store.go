// Package store implements the State Store (Blackboard): the single
// component allowed to mutate the Project aggregate (spec §4.2). Every
// mutation is a partial-update RPC, never a whole-aggregate replace; each
// successful mutation bumps the aggregate's version, writes a change-log
// entry, and invalidates the read-through cache.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/scenestack/pipeline/pkg/corerr"
	"github.com/scenestack/pipeline/pkg/domain"
	"github.com/scenestack/pipeline/pkg/lockservice"
)

// DefaultCacheTTL is the read-through cache's entry lifetime (spec §4.2
// "populate with TTL = 1 hour").
const DefaultCacheTTL = time.Hour

// retryBackoff is the exponential backoff schedule for compound
// read-modify-write mutations that lose an optimistic-concurrency race
// (spec §4.2 "retry up to 3 times with exponential backoff").
var retryBackoff = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

// Store is the State Store. It owns the Project aggregate's canonical
// Postgres row plus the append-only change-log/artifact/approval tables,
// fronted by a write-through Redis cache, and coordinates with the Lock
// Service for the mutations the spec requires a named lock for.
type Store struct {
	pool  *pgxpool.Pool
	cache *cache
	locks *lockservice.Service
}

// New builds a Store. locks may be nil in tests that only exercise
// lock-free operations.
func New(pool *pgxpool.Pool, redisClient redis.UniversalClient, locks *lockservice.Service) *Store {
	return &Store{pool: pool, cache: newCache(redisClient, DefaultCacheTTL), locks: locks}
}

// CreateProject persists a brand-new Project aggregate (spec §4.2
// create_project(id, spec, budget)).
func (s *Store) CreateProject(ctx context.Context, p *domain.Project) error {
	if p.Budget.Breakdown == nil {
		// jsonb_set (used by AddCost) can only add a key under an object that
		// already exists, not under a JSON null — seed an empty object so the
		// first add_cost call for any category succeeds.
		p.Budget.Breakdown = map[string]domain.Money{}
	}

	specJSON, budgetJSON, err := marshalSpecBudget(p)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO projects (project_id, version, status, created_at, updated_at, spec, budget,
			dna_bank, shots, locks_mirror, artifacts, error_log, change_log, pending_approvals)
		VALUES ($1, $2, $3, $4, $4, $5, $6, '{}', '{}', '{}', '{}', '[]', '[]', '{}')`,
		p.ID, p.Version, p.Status, p.CreatedAt, specJSON, budgetJSON)
	if err != nil {
		if isUniqueViolation(err) {
			return corerr.ErrAlreadyExists
		}
		return fmt.Errorf("store: create project %s: %w", p.ID, err)
	}
	return nil
}

// GetProject reads the full aggregate, cache-aside (spec §4.2 "miss →
// database → populate with TTL").
func (s *Store) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	if p, ok := s.cache.get(ctx, id); ok {
		return p, nil
	}

	p, err := s.getProjectBypassCache(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.set(ctx, id, p)
	return p, nil
}

// getProjectBypassCache always reads Postgres directly — used by the
// Scheduler's dependency re-check (spec §4.6 step 1: "cache-bypassing
// read") and by every mutation's read-modify-write loop.
func (s *Store) getProjectBypassCache(ctx context.Context, id string) (*domain.Project, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE project_id = $1 AND deleted_at IS NULL`, id)
	return scanProject(row)
}

// GetProjectBypassingCache exposes getProjectBypassCache for callers outside
// the package (Scheduler's dependency re-check, mutation retry loops in
// other packages).
func (s *Store) GetProjectBypassingCache(ctx context.Context, id string) (*domain.Project, error) {
	return s.getProjectBypassCache(ctx, id)
}

// GetGlobalSpec returns just the GlobalSpec field (spec §4.2 get_global_spec).
func (s *Store) GetGlobalSpec(ctx context.Context, id string) (domain.GlobalSpec, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return domain.GlobalSpec{}, err
	}
	return p.Spec, nil
}

// GetBudget returns just the Budget field (spec §4.2 get_budget).
func (s *Store) GetBudget(ctx context.Context, id string) (domain.Budget, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return domain.Budget{}, err
	}
	return p.Budget, nil
}

// GetDNABank returns the DNA Bank map (spec §4.2 get_dna_bank).
func (s *Store) GetDNABank(ctx context.Context, id string) (map[string]domain.DNAEntry, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.DNABank, nil
}

// GetShot returns one shot by id (spec §4.2 get_shot).
func (s *Store) GetShot(ctx context.Context, id, shotID string) (domain.Shot, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return domain.Shot{}, err
	}
	shot, ok := p.Shots[shotID]
	if !ok {
		return domain.Shot{}, corerr.ErrNotFound
	}
	return shot, nil
}

// GetAllShots returns every shot (spec §4.2 get_all_shots).
func (s *Store) GetAllShots(ctx context.Context, id string) (map[string]domain.Shot, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	return p.Shots, nil
}

// ListActiveProjectIDs returns every non-deleted project id whose status
// isn't terminal, so the orchestrator can resume event consumption for
// in-flight projects after a restart.
func (s *Store) ListActiveProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT project_id FROM projects
		WHERE deleted_at IS NULL
		  AND status NOT IN ('DELIVERED', 'ABORTED', 'FAILED')`)
	if err != nil {
		return nil, fmt.Errorf("store: list active projects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan active project id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SoftDeleteStaleProjects marks completed/aborted/failed projects older
// than retentionDays as deleted (sets deleted_at), so they drop out of
// ListActiveProjectIDs and ordinary reads without losing their row for
// audit purposes. Returns the number of projects soft-deleted.
func (s *Store) SoftDeleteStaleProjects(ctx context.Context, retentionDays int) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE projects SET deleted_at = now()
		WHERE deleted_at IS NULL
		  AND status IN ('DELIVERED', 'ABORTED', 'FAILED')
		  AND updated_at < now() - ($1::text || ' days')::interval`,
		retentionDays)
	if err != nil {
		return 0, fmt.Errorf("store: soft-delete stale projects: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// UpdateProjectStatus performs a version-checked status transition (spec
// §4.2 update_project_status).
func (s *Store) UpdateProjectStatus(ctx context.Context, id string, newStatus domain.ProjectStatus, expectedVersion int64) error {
	if !newStatus.IsValid() {
		return corerr.NewValidationError("status", "not a valid project status")
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE projects SET status = $1, version = version + 1, updated_at = now()
		WHERE project_id = $2 AND version = $3`,
		newStatus, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("store: update status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return versionConflictOrNotFound(ctx, s, id)
	}

	s.cache.invalidate(ctx, id)
	return nil
}

// versionConflictOrNotFound distinguishes a stale-version UPDATE from one
// targeting a row that never existed — both return RowsAffected() == 0.
func versionConflictOrNotFound(ctx context.Context, s *Store, id string) error {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE project_id = $1)`, id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("store: check existence of %s: %w", id, err)
	}
	if !exists {
		return corerr.ErrNotFound
	}
	return corerr.ErrConcurrentModification
}

func marshalSpecBudget(p *domain.Project) (specJSON, budgetJSON []byte, err error) {
	specJSON, err = json.Marshal(p.Spec)
	if err != nil {
		return nil, nil, fmt.Errorf("store: marshal spec: %w", err)
	}
	budgetJSON, err = json.Marshal(p.Budget)
	if err != nil {
		return nil, nil, fmt.Errorf("store: marshal budget: %w", err)
	}
	return specJSON, budgetJSON, nil
}

func isUniqueViolation(err error) bool {
	// pgx surfaces Postgres error code 23505 for unique_violation via
	// *pgconn.PgError; string-matching the code keeps this package free of
	// an explicit pgconn import for a single check.
	return err != nil && containsSQLState(err, "23505")
}

func containsSQLState(err error, code string) bool {
	type sqlStater interface{ SQLState() string }
	var s sqlStater
	for e := err; e != nil; e = unwrapOnce(e) {
		if ss, ok := e.(sqlStater); ok {
			if ss.SQLState() == code {
				return true
			}
		}
	}
	return false
}

func unwrapOnce(err error) error {
	type unwrapper interface{ Unwrap() error }
	if u, ok := err.(unwrapper); ok {
		return u.Unwrap()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

var _ rowScanner = (pgx.Row)(nil)
