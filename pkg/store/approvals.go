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
)

const approvalColumns = `approval_id, project_id, status, trigger_event_type, trigger_event_id,
	stage, content_summary, created_at, resolved_at, prior_status, deferred_task_templates,
	decider, notes, revision_notes, reminder_sent_at`

// CreateApprovalRequest persists a new ApprovalRequest and mirrors it onto
// the Project's pending_approvals map (spec §4.2 "Approval-request CRUD",
// §4.7 "create an ApprovalRequest, set project status to APPROVAL_PENDING").
func (s *Store) CreateApprovalRequest(ctx context.Context, req *domain.ApprovalRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	templatesJSON, err := json.Marshal(req.DeferredTaskTemplates)
	if err != nil {
		return fmt.Errorf("store: marshal deferred task templates: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: create_approval begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO approval_requests (approval_id, project_id, status, trigger_event_type,
			trigger_event_id, stage, content_summary, created_at, prior_status, deferred_task_templates)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		req.ID, req.ProjectID, domain.ApprovalStatusPending, req.TriggerEventType, req.TriggerEventID,
		req.Stage, req.ContentSummary, req.CreatedAt, req.PriorStatus, templatesJSON)
	if err != nil {
		return fmt.Errorf("store: insert approval request: %w", err)
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("store: marshal approval request: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		UPDATE projects SET
			version = version + 1,
			updated_at = now(),
			pending_approvals = jsonb_set(pending_approvals, ARRAY[$2], $3::jsonb, true)
		WHERE project_id = $1`,
		req.ProjectID, req.ID, reqJSON)
	if err != nil {
		return fmt.Errorf("store: mirror approval onto project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: create_approval commit: %w", err)
	}
	s.cache.invalidate(ctx, req.ProjectID)
	return nil
}

// GetApprovalRequest reads one approval request by id.
func (s *Store) GetApprovalRequest(ctx context.Context, approvalID string) (*domain.ApprovalRequest, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approval_requests WHERE approval_id = $1`, approvalID)
	return scanApprovalRequest(row)
}

// ListPendingApprovals returns every PENDING approval for a project, used by
// the Approval Gate's reminder/timeout scan (spec §4.7).
func (s *Store) ListPendingApprovals(ctx context.Context, projectID string) ([]*domain.ApprovalRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+approvalColumns+` FROM approval_requests
		WHERE project_id = $1 AND status = $2 ORDER BY created_at ASC`,
		projectID, domain.ApprovalStatusPending)
	if err != nil {
		return nil, fmt.Errorf("store: list pending approvals: %w", err)
	}
	defer rows.Close()

	var out []*domain.ApprovalRequest
	for rows.Next() {
		req, err := scanApprovalRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ListAllPendingApprovals scans every project for PENDING approvals — the
// Approval Gate's background reminder/escalation loop runs this instead of
// iterating projects one at a time.
func (s *Store) ListAllPendingApprovals(ctx context.Context) ([]*domain.ApprovalRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+approvalColumns+` FROM approval_requests WHERE status = $1 ORDER BY created_at ASC`,
		domain.ApprovalStatusPending)
	if err != nil {
		return nil, fmt.Errorf("store: list all pending approvals: %w", err)
	}
	defer rows.Close()

	var out []*domain.ApprovalRequest
	for rows.Next() {
		req, err := scanApprovalRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ResolveApprovalRequest transitions an approval to a terminal status with
// the decision attached, removes it from the project's pending_approvals
// mirror, and restores the project's prior status when approved (spec
// §4.7 "Decision ingestion").
func (s *Store) ResolveApprovalRequest(ctx context.Context, approvalID string, status domain.ApprovalStatus, decision domain.ApprovalDecision) (*domain.ApprovalRequest, error) {
	if !status.IsTerminal() {
		return nil, corerr.NewValidationError("status", "resolution status must be terminal")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: resolve_approval begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+approvalColumns+` FROM approval_requests WHERE approval_id = $1 FOR UPDATE`, approvalID)
	req, err := scanApprovalRequest(row)
	if err != nil {
		return nil, err
	}
	if req.Status.IsTerminal() {
		return nil, corerr.ErrInvalidTransition
	}

	now := time.Now().UTC()
	decision.DecidedAt = now
	req.Status = status
	req.ResolvedAt = &now
	req.Decision = decision

	_, err = tx.Exec(ctx, `
		UPDATE approval_requests SET
			status = $2, resolved_at = $3, decider = $4, notes = $5, revision_notes = $6
		WHERE approval_id = $1`,
		approvalID, status, now, nullableStr(decision.Decider), nullableStr(decision.Notes), nullableStr(decision.RevisionNotes))
	if err != nil {
		return nil, fmt.Errorf("store: update approval request: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE projects SET
			version = version + 1,
			updated_at = now(),
			pending_approvals = pending_approvals - $2
		WHERE project_id = $1`,
		req.ProjectID, approvalID)
	if err != nil {
		return nil, fmt.Errorf("store: remove approval from project mirror: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, corerr.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("store: resolve_approval commit: %w", err)
	}
	s.cache.invalidate(ctx, req.ProjectID)
	return req, nil
}

func scanApprovalRequest(row rowScanner) (*domain.ApprovalRequest, error) {
	var req domain.ApprovalRequest
	var resolvedAt, reminderSentAt *time.Time
	var decider, notes, revisionNotes *string
	var templatesJSON []byte

	err := row.Scan(&req.ID, &req.ProjectID, &req.Status, &req.TriggerEventType, &req.TriggerEventID,
		&req.Stage, &req.ContentSummary, &req.CreatedAt, &resolvedAt, &req.PriorStatus, &templatesJSON,
		&decider, &notes, &revisionNotes, &reminderSentAt)
	if err != nil {
		if errors.Is(err, pgxNoRows) {
			return nil, corerr.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan approval request: %w", err)
	}
	req.ResolvedAt = resolvedAt
	req.ReminderSentAt = reminderSentAt
	if decider != nil {
		req.Decision.Decider = *decider
	}
	if notes != nil {
		req.Decision.Notes = *notes
	}
	if revisionNotes != nil {
		req.Decision.RevisionNotes = *revisionNotes
	}
	if len(templatesJSON) > 0 {
		if err := json.Unmarshal(templatesJSON, &req.DeferredTaskTemplates); err != nil {
			return nil, fmt.Errorf("store: unmarshal deferred task templates: %w", err)
		}
	}
	return &req, nil
}

// SearchApprovals full-text searches a project's entire approval history
// (pending and resolved) by content_summary, using the GIN index created
// alongside change_log_entries' (spec §9): unlike ListPendingApprovals this
// is not filtered to PENDING, since the point of search is to find a past
// decision, not just what's currently open.
func (s *Store) SearchApprovals(ctx context.Context, projectID, query string, limit int) ([]*domain.ApprovalRequest, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+approvalColumns+` FROM approval_requests
		WHERE project_id = $1
			AND to_tsvector('english', content_summary) @@ plainto_tsquery('english', $2)
		ORDER BY created_at DESC
		LIMIT $3`, projectID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search approvals: %w", err)
	}
	defer rows.Close()

	var out []*domain.ApprovalRequest
	for rows.Next() {
		req, err := scanApprovalRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// MarkReminderSent stamps reminder_sent_at on a pending approval (spec
// §4.7 "after approval_timeout_minutes, emit a reminder").
func (s *Store) MarkReminderSent(ctx context.Context, approvalID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE approval_requests SET reminder_sent_at = now() WHERE approval_id = $1`, approvalID)
	if err != nil {
		return fmt.Errorf("store: mark reminder sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.ErrNotFound
	}
	return nil
}
