package domain

import "time"

// ApprovalRequest is a human-in-the-loop gate instance (spec §3
// "Approval Requests / History", §4.7).
type ApprovalRequest struct {
	ID        string         `json:"id"`
	ProjectID string         `json:"project_id"`
	Status    ApprovalStatus `json:"status"`

	// TriggerEventType is the event type that created this checkpoint, e.g.
	// SCENE_WRITTEN, SHOT_PLANNED, PREVIEW_VIDEO_READY, FINAL_VIDEO_READY.
	TriggerEventType string `json:"trigger_event_type"`
	// TriggerEventID is the id of the event that created this checkpoint —
	// used as the parent task's causation id once the gate resumes.
	TriggerEventID string `json:"trigger_event_id"`

	Stage          string `json:"stage"`
	ContentSummary string `json:"content_summary"`

	CreatedAt time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`

	// PriorStatus is the project status to restore on APPROVED (spec §4.7
	// "restore prior status").
	PriorStatus ProjectStatus `json:"prior_status"`

	// DeferredTaskTemplates are the task templates the mapper produced for
	// TriggerEventID, held back until the gate resolves.
	DeferredTaskTemplates []TaskTemplate `json:"deferred_task_templates,omitempty"`

	Decision ApprovalDecision `json:"decision,omitempty"`

	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
}

// ApprovalDecision records the human decision once made.
type ApprovalDecision struct {
	Decider        string    `json:"decider,omitempty"`
	Notes          string    `json:"notes,omitempty"`          // REJECTED reason
	RevisionNotes  string    `json:"revision_notes,omitempty"` // REVISION_REQUESTED guidance
	DecidedAt      time.Time `json:"decided_at,omitempty"`
}

// TaskTemplate is the mapper's intermediate output before a Task is built —
// the one piece of state deferred by the Approval Gate while a project is
// paused (spec §4.5, §4.7).
type TaskTemplate struct {
	TaskType         string         `json:"task_type"`
	Input            map[string]any `json:"input"`
	CausationEventID string         `json:"causation_event_id"`
	ShotID           string         `json:"shot_id,omitempty"`
}

// IsOverdueForReminder reports whether the request has sat PENDING past one
// full timeout window without a reminder sent yet (spec §4.7).
func (a ApprovalRequest) IsOverdueForReminder(timeout time.Duration, now time.Time) bool {
	return a.Status == ApprovalStatusPending &&
		a.ReminderSentAt == nil &&
		now.Sub(a.CreatedAt) >= timeout
}

// IsOverdueForTimeout reports whether the request has sat PENDING past 2x
// the configured timeout, at which point it escalates to TIMEOUT (spec §4.7).
func (a ApprovalRequest) IsOverdueForTimeout(timeout time.Duration, now time.Time) bool {
	return a.Status == ApprovalStatusPending && now.Sub(a.CreatedAt) >= 2*timeout
}
