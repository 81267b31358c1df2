package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/scenestack/pipeline/pkg/corerr"
	"github.com/scenestack/pipeline/pkg/domain"
)

const projectColumns = `project_id, version, status, created_at, updated_at, deleted_at,
	spec, budget, dna_bank, shots, locks_mirror, artifacts, error_log, change_log, pending_approvals`

// scanProject decodes one projects row, including every JSONB column, into
// a domain.Project. rowScanner is satisfied by both pgx.Row and pgx.Rows.
func scanProject(row rowScanner) (*domain.Project, error) {
	var p domain.Project
	var deletedAt *time.Time
	var specJSON, budgetJSON, dnaJSON, shotsJSON, locksJSON, artifactsJSON []byte
	var errorLogJSON, changeLogJSON, pendingApprovalsJSON []byte

	err := row.Scan(&p.ID, &p.Version, &p.Status, &p.CreatedAt, &p.UpdatedAt, &deletedAt,
		&specJSON, &budgetJSON, &dnaJSON, &shotsJSON, &locksJSON, &artifactsJSON,
		&errorLogJSON, &changeLogJSON, &pendingApprovalsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, corerr.ErrNotFound
		}
		return nil, fmt.Errorf("store: scan project: %w", err)
	}
	p.DeletedAt = deletedAt

	if err := unmarshalInto(specJSON, &p.Spec); err != nil {
		return nil, fmt.Errorf("store: unmarshal spec: %w", err)
	}
	if err := unmarshalInto(budgetJSON, &p.Budget); err != nil {
		return nil, fmt.Errorf("store: unmarshal budget: %w", err)
	}
	p.DNABank = map[string]domain.DNAEntry{}
	if err := unmarshalInto(dnaJSON, &p.DNABank); err != nil {
		return nil, fmt.Errorf("store: unmarshal dna_bank: %w", err)
	}
	p.Shots = map[string]domain.Shot{}
	if err := unmarshalInto(shotsJSON, &p.Shots); err != nil {
		return nil, fmt.Errorf("store: unmarshal shots: %w", err)
	}
	p.Locks = map[string]domain.LockMirror{}
	if err := unmarshalInto(locksJSON, &p.Locks); err != nil {
		return nil, fmt.Errorf("store: unmarshal locks_mirror: %w", err)
	}
	p.Artifacts = map[string]domain.ArtifactEntry{}
	if err := unmarshalInto(artifactsJSON, &p.Artifacts); err != nil {
		return nil, fmt.Errorf("store: unmarshal artifacts: %w", err)
	}
	if err := unmarshalInto(errorLogJSON, &p.ErrorLog); err != nil {
		return nil, fmt.Errorf("store: unmarshal error_log: %w", err)
	}
	if err := unmarshalInto(changeLogJSON, &p.ChangeLog); err != nil {
		return nil, fmt.Errorf("store: unmarshal change_log: %w", err)
	}
	p.PendingApprovals = map[string]domain.ApprovalRequest{}
	if err := unmarshalInto(pendingApprovalsJSON, &p.PendingApprovals); err != nil {
		return nil, fmt.Errorf("store: unmarshal pending_approvals: %w", err)
	}

	return &p, nil
}

func unmarshalInto(raw []byte, target any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, target)
}
