package worker

import "github.com/scenestack/pipeline/pkg/domain"

// CreateProjectRequest is the HTTP request body for POST /api/v1/projects.
type CreateProjectRequest struct {
	Spec        domain.GlobalSpec `json:"spec"`
	BudgetTotal float64           `json:"budget_total"`
	Currency    string            `json:"currency"`
}

// PublishEventRequest is the HTTP request body for POST
// /api/v1/projects/:project_id/events — the worker-facing publish(event)
// RPC (spec §6: "agent emits an event after finishing work; must include
// causation_id of the triggering event").
type PublishEventRequest struct {
	Type              string         `json:"type"`
	Actor             string         `json:"actor"`
	CausationID       string         `json:"causation_id"`
	Payload           map[string]any `json:"payload"`
	BlackboardPointer string         `json:"blackboard_pointer,omitempty"`

	// TaskResult, when set, closes out the task this event completes —
	// the bridge between an agent's publish() call and the Scheduler's
	// task-lifecycle bookkeeping (release lock, charge cost, rescan
	// dependents), which is otherwise never told a task finished.
	TaskResult *TaskResult `json:"task_result,omitempty"`
}

// TaskResult reports a task's outcome alongside the domain event an agent
// publishes on completion.
type TaskResult struct {
	TaskID     string         `json:"task_id"`
	Status     string         `json:"status"` // "completed" | "failed"
	Output     map[string]any `json:"output,omitempty"`
	ActualCost float64        `json:"actual_cost,omitempty"`
	Currency   string         `json:"currency,omitempty"`
	Reason     string         `json:"reason,omitempty"` // required when status == "failed"
}

// UpdateShotRequest is the request body for PATCH
// /api/v1/projects/:project_id/shots/:shot_id — a state.update_shot RPC
// (spec §6: "state.get_*, state.update_* — partial-update RPCs"). Callers
// read the current Shot via GET, modify it, and PUT the whole value back;
// the Store's own retry-on-conflict loop (spec §4.2) absorbs the race
// against a concurrent writer rather than requiring the caller to supply an
// expected_version.
type UpdateShotRequest struct {
	Shot        domain.Shot `json:"shot"`
	Actor       string      `json:"actor"`
	CausationID string      `json:"causation_id"`
}

// UpdateDNARequest is the request body for PATCH
// /api/v1/projects/:project_id/dna/:entity_id.
type UpdateDNARequest struct {
	Entry       domain.DNAEntry `json:"entry"`
	Actor       string          `json:"actor"`
	CausationID string          `json:"causation_id"`
}

// UpdateBudgetRequest is the request body for PATCH
// /api/v1/projects/:project_id/budget — records spend against a category.
type UpdateBudgetRequest struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Category    string  `json:"category"`
	Actor       string  `json:"actor"`
	CausationID string  `json:"causation_id"`
}

// RegisterArtifactRequest is the request body for POST
// /api/v1/projects/:project_id/artifacts — the core never manages blob
// contents, only references (spec §6 "Persisted state layout": "Blob
// store: artifact files by URI").
type RegisterArtifactRequest struct {
	URI          string  `json:"uri"`
	Seed         int64   `json:"seed"`
	Model        string  `json:"model"`
	ModelVersion string  `json:"model_version"`
	Prompt       string  `json:"prompt"`
	Cost         float64 `json:"cost"`
	Currency     string  `json:"currency"`
}

// AcquireLockRequest is the request body for POST /api/v1/locks/acquire.
type AcquireLockRequest struct {
	Key      string `json:"key"`
	TTLMS    int64  `json:"ttl_ms,omitempty"`
	Blocking bool   `json:"blocking,omitempty"`
}

// ReleaseLockRequest is the request body for POST /api/v1/locks/release.
type ReleaseLockRequest struct {
	LockToken string `json:"lock_token"`
}

// DecisionRequest is the shared request body for the approve/reject/revise
// admin endpoints.
type DecisionRequest struct {
	Decider       string `json:"decider"`
	Notes         string `json:"notes,omitempty"`
	RevisionNotes string `json:"revision_notes,omitempty"`
}

// AbortProjectRequest is the request body for POST
// /api/v1/projects/:project_id/abort.
type AbortProjectRequest struct {
	Reason string `json:"reason"`
}
