package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/scenestack/pipeline/pkg/domain"
)

// Queue is the Postgres-backed task queue.
type Queue struct {
	pool *pgxpool.Pool
}

// New builds a Queue over an existing pool.
func New(pool *pgxpool.Pool) *Queue {
	return &Queue{pool: pool}
}

// Enqueue inserts a new task row. The caller decides PENDING vs READY based
// on whether dependencies are already satisfied at creation time.
func (q *Queue) Enqueue(ctx context.Context, t *domain.Task) error {
	deps, err := json.Marshal(t.Dependencies)
	if err != nil {
		return fmt.Errorf("taskqueue: marshal dependencies: %w", err)
	}
	input, err := json.Marshal(t.Input)
	if err != nil {
		return fmt.Errorf("taskqueue: marshal input: %w", err)
	}

	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err = q.pool.Exec(ctx, `
		INSERT INTO tasks
			(task_id, project_id, type, status, assignee, priority, dependencies, input,
			 retry_count, max_retries, created_at,
			 estimated_cost_amount, currency, causation_event_id, required_lock_key)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.ProjectID, t.Type, string(t.Status), t.Assignee, t.Priority, deps, input,
		t.RetryCount, t.MaxRetries, t.CreatedAt,
		t.EstimatedCost.Amount.InexactFloat64(), nonEmptyCurrency(t.EstimatedCost.Currency),
		t.CausationEventID, nullableString(t.RequiredLockKey))
	if err != nil {
		return fmt.Errorf("taskqueue: enqueue %s: %w", t.ID, err)
	}
	return nil
}

// MarkReady transitions a PENDING task to READY once its dependencies are
// satisfied (spec §4.4 "Dependency gating").
func (q *Queue) MarkReady(ctx context.Context, taskID string) error {
	tag, err := q.pool.Exec(ctx,
		`UPDATE tasks SET status = 'READY' WHERE task_id = $1 AND status = 'PENDING'`, taskID)
	if err != nil {
		return fmt.Errorf("taskqueue: mark ready %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Claim atomically claims the next READY task ordered by priority (desc),
// then created_at (asc), then id (asc) for tie-breaking (spec §4.4, §4.6
// "Tie-breaking"). Mirrors the FOR UPDATE SKIP LOCKED claim pattern so
// multiple orchestrator replicas can poll concurrently without double-claim.
func (q *Queue) Claim(ctx context.Context, podID string) (*domain.Task, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: begin claim: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM tasks
		WHERE status = 'READY'
		ORDER BY priority DESC, created_at ASC, task_id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`)

	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoTasksAvailable
		}
		return nil, fmt.Errorf("taskqueue: query ready task: %w", err)
	}

	now := time.Now()
	_, err = tx.Exec(ctx, `
		UPDATE tasks
		SET status = 'IN_PROGRESS', pod_id = $2, started_at = $3, heartbeat = $3
		WHERE task_id = $1`, t.ID, podID, now)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: claim %s: %w", t.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("taskqueue: commit claim %s: %w", t.ID, err)
	}

	t.Status = domain.TaskStatusInProgress
	t.PodID = podID
	t.StartedAt = &now
	t.Heartbeat = &now
	return t, nil
}

// Heartbeat refreshes the liveness timestamp on an IN_PROGRESS task; the
// orphan watchdog compares this against OrphanThreshold.
func (q *Queue) Heartbeat(ctx context.Context, taskID string) error {
	tag, err := q.pool.Exec(ctx,
		`UPDATE tasks SET heartbeat = $2 WHERE task_id = $1 AND status = 'IN_PROGRESS'`,
		taskID, time.Now())
	if err != nil {
		return fmt.Errorf("taskqueue: heartbeat %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Complete marks a task COMPLETED and records its output and actual cost.
func (q *Queue) Complete(ctx context.Context, taskID string, output map[string]any, actualCost domain.Money) error {
	out, err := json.Marshal(output)
	if err != nil {
		return fmt.Errorf("taskqueue: marshal output: %w", err)
	}
	tag, err := q.pool.Exec(ctx, `
		UPDATE tasks
		SET status = 'COMPLETED', output = $2, completed_at = $3, actual_cost_amount = $4
		WHERE task_id = $1`,
		taskID, out, time.Now(), actualCost.Amount.InexactFloat64())
	if err != nil {
		return fmt.Errorf("taskqueue: complete %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Fail marks a task FAILED outright, bypassing retry — used for failure
// classes the scheduler knows are not worth retrying (spec §4.6 step 2:
// "mark FAILED with reason BUDGET_EXHAUSTED").
func (q *Queue) Fail(ctx context.Context, taskID, reason string) error {
	out, err := json.Marshal(map[string]any{"error": reason})
	if err != nil {
		return fmt.Errorf("taskqueue: marshal failure output: %w", err)
	}
	tag, err := q.pool.Exec(ctx, `
		UPDATE tasks
		SET status = 'FAILED', output = $2, completed_at = $3, pod_id = NULL, heartbeat = NULL
		WHERE task_id = $1`, taskID, out, time.Now())
	if err != nil {
		return fmt.Errorf("taskqueue: fail %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// Requeue returns an IN_PROGRESS task to READY and bumps retry_count, or
// marks it FAILED if max_retries has been exhausted (spec §4.6 "Retry and
// failure handling"). Returns the resulting status.
func (q *Queue) Requeue(ctx context.Context, taskID string) (domain.TaskStatus, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("taskqueue: begin requeue: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var retryCount, maxRetries int
	err = tx.QueryRow(ctx,
		`SELECT retry_count, max_retries FROM tasks WHERE task_id = $1 FOR UPDATE`, taskID).
		Scan(&retryCount, &maxRetries)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrTaskNotFound
		}
		return "", fmt.Errorf("taskqueue: read retry state %s: %w", taskID, err)
	}

	nextStatus := domain.TaskStatusReady
	retryCount++
	if retryCount > maxRetries {
		nextStatus = domain.TaskStatusFailed
	}

	_, err = tx.Exec(ctx, `
		UPDATE tasks
		SET status = $2, retry_count = $3, pod_id = NULL, started_at = NULL, heartbeat = NULL
		WHERE task_id = $1`, taskID, string(nextStatus), retryCount)
	if err != nil {
		return "", fmt.Errorf("taskqueue: requeue %s: %w", taskID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("taskqueue: commit requeue %s: %w", taskID, err)
	}
	return nextStatus, nil
}

// Defer returns a claimed IN_PROGRESS task to READY without touching
// retry_count — used when the scheduler claims a task but declines to
// dispatch it this round (project paused for approval, or its lock is held
// by another task), as opposed to Requeue which represents an actual
// execution failure (spec §4.6 steps 3-4 "leave in queue, continue").
func (q *Queue) Defer(ctx context.Context, taskID string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE tasks
		SET status = 'READY', pod_id = NULL, started_at = NULL, heartbeat = NULL
		WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("taskqueue: defer %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ProjectsWithPendingTasks returns the distinct set of project ids that
// currently have at least one PENDING task, so the scheduler's readiness
// scan can re-evaluate dependencies without a per-event trigger (spec §4.4:
// "the scheduler must periodically re-scan even when no events arrive").
func (q *Queue) ProjectsWithPendingTasks(ctx context.Context) ([]string, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT DISTINCT project_id FROM tasks WHERE status = 'PENDING'`)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: projects with pending tasks: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("taskqueue: scan project id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Cancel marks a task CANCELLED (used when its project is aborted).
func (q *Queue) Cancel(ctx context.Context, taskID string) error {
	tag, err := q.pool.Exec(ctx,
		`UPDATE tasks SET status = 'CANCELLED' WHERE task_id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("taskqueue: cancel %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// CancelPendingAndReady cancels every PENDING/READY task for a project
// (spec §4.8 "Cancellation": "aborting a project ... marks all PENDING/READY
// tasks CANCELLED"). In-flight IN_PROGRESS tasks are left alone — they're
// allowed to finish or time out.
func (q *Queue) CancelPendingAndReady(ctx context.Context, projectID string) (int64, error) {
	tag, err := q.pool.Exec(ctx, `
		UPDATE tasks SET status = 'CANCELLED'
		WHERE project_id = $1 AND status IN ('PENDING', 'READY')`, projectID)
	if err != nil {
		return 0, fmt.Errorf("taskqueue: cancel pending/ready for %s: %w", projectID, err)
	}
	return tag.RowsAffected(), nil
}

// ForceRetry resets a FAILED task back to READY with a clean retry budget —
// an administrative override for a task that exhausted its normal retries
// (spec §4.8 "force-retrying failed tasks").
func (q *Queue) ForceRetry(ctx context.Context, taskID string) error {
	tag, err := q.pool.Exec(ctx, `
		UPDATE tasks
		SET status = 'READY', retry_count = 0, pod_id = NULL, started_at = NULL,
		    completed_at = NULL, heartbeat = NULL
		WHERE task_id = $1 AND status = 'FAILED'`, taskID)
	if err != nil {
		return fmt.Errorf("taskqueue: force retry %s: %w", taskID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// ListByProjectAndStatus returns every task for a project in the given
// status, for the admin façade's task-listing operation (spec §4.8
// "listing tasks by project/status").
func (q *Queue) ListByProjectAndStatus(ctx context.Context, projectID string, status domain.TaskStatus) ([]*domain.Task, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = $1 AND status = $2
		 ORDER BY priority DESC, created_at ASC`, projectID, string(status))
	if err != nil {
		return nil, fmt.Errorf("taskqueue: list by project/status: %w", err)
	}
	defer rows.Close()

	var out []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("taskqueue: scan task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Get loads a single task by id.
func (q *Queue) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	row := q.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = $1`, taskID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("taskqueue: get %s: %w", taskID, err)
	}
	return t, nil
}

// CompletedSet returns the set of COMPLETED task ids for a project, used by
// the scheduler's dependency re-check (spec §4.4).
func (q *Queue) CompletedSet(ctx context.Context, projectID string) (map[string]bool, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT task_id FROM tasks WHERE project_id = $1 AND status = 'COMPLETED'`, projectID)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: completed set: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("taskqueue: scan completed id: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// PendingForProject returns every PENDING task for a project, for
// re-evaluating readiness after a dependency completes.
func (q *Queue) PendingForProject(ctx context.Context, projectID string) ([]*domain.Task, error) {
	rows, err := q.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = $1 AND status = 'PENDING'`, projectID)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: pending for project: %w", err)
	}
	defer rows.Close()

	var out []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("taskqueue: scan pending task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DetectOrphans finds IN_PROGRESS tasks whose heartbeat is older than
// threshold and requeues them (spec §4.6 "Orphan detection"). Returns the
// requeued task ids. A single global threshold; callers needing a
// per-task-type threshold should use StaleCandidates instead.
func (q *Queue) DetectOrphans(ctx context.Context, threshold time.Duration) ([]string, error) {
	cutoff := time.Now().Add(-threshold)
	rows, err := q.pool.Query(ctx,
		`SELECT task_id FROM tasks WHERE status = 'IN_PROGRESS' AND heartbeat < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: orphan scan: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("taskqueue: scan orphan id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var recovered []string
	for _, id := range ids {
		if _, err := q.Requeue(ctx, id); err != nil {
			continue
		}
		recovered = append(recovered, id)
	}
	return recovered, nil
}

// StaleCandidates returns every IN_PROGRESS task whose heartbeat is older
// than minThreshold — a cheap, loose pre-filter. Callers that need a
// per-task-type orphan threshold (spec §4.6 "default 5 minutes, overridable
// per task type") apply the precise per-type cutoff themselves against each
// returned task's Heartbeat, using minThreshold as the most lenient
// threshold across all configured task types so nothing stale is missed.
func (q *Queue) StaleCandidates(ctx context.Context, minThreshold time.Duration) ([]*domain.Task, error) {
	cutoff := time.Now().Add(-minThreshold)
	rows, err := q.pool.Query(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE status = 'IN_PROGRESS' AND heartbeat < $1`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("taskqueue: stale candidate scan: %w", err)
	}
	defer rows.Close()

	var out []*domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("taskqueue: scan stale candidate: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const taskColumns = `
	task_id, project_id, type, status, assignee, priority, dependencies, input, output,
	retry_count, max_retries, created_at, started_at, completed_at, heartbeat,
	estimated_cost_amount, actual_cost_amount, currency, causation_event_id,
	required_lock_key, pod_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*domain.Task, error) {
	var t domain.Task
	var status string
	var deps, input []byte
	var output []byte
	var actualCost *float64
	var currency string
	var requiredLockKey, podID *string

	err := row.Scan(
		&t.ID, &t.ProjectID, &t.Type, &status, &t.Assignee, &t.Priority, &deps, &input, &output,
		&t.RetryCount, &t.MaxRetries, &t.CreatedAt, &t.StartedAt, &t.CompletedAt, &t.Heartbeat,
		&t.EstimatedCost.Amount, &actualCost, &currency, &t.CausationEventID,
		&requiredLockKey, &podID,
	)
	if err != nil {
		return nil, err
	}

	t.Status = domain.TaskStatus(status)
	t.EstimatedCost.Currency = currency
	if actualCost != nil {
		t.ActualCost = domain.Money{Amount: decimal.NewFromFloat(*actualCost), Currency: currency}
	}
	if requiredLockKey != nil {
		t.RequiredLockKey = *requiredLockKey
	}
	if podID != nil {
		t.PodID = *podID
	}
	if len(deps) > 0 {
		if err := json.Unmarshal(deps, &t.Dependencies); err != nil {
			return nil, fmt.Errorf("unmarshal dependencies: %w", err)
		}
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &t.Input); err != nil {
			return nil, fmt.Errorf("unmarshal input: %w", err)
		}
	}
	if len(output) > 0 {
		if err := json.Unmarshal(output, &t.Output); err != nil {
			return nil, fmt.Errorf("unmarshal output: %w", err)
		}
	}
	return &t, nil
}

func nonEmptyCurrency(c string) string {
	if c == "" {
		return "USD"
	}
	return c
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
