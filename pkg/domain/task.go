package domain

import "time"

// Task types named directly by the spec (§3). The Event→Task Mapper's
// configured table may reference others at runtime — this list documents
// the ones the original spec calls out.
const (
	TaskTypeWriteScript          = "WRITE_SCRIPT"
	TaskTypePlanShots            = "PLAN_SHOTS"
	TaskTypeGenerateKeyframe     = "GENERATE_KEYFRAME"
	TaskTypeGeneratePreviewVideo = "GENERATE_PREVIEW_VIDEO"
	TaskTypeGenerateFinalVideo   = "GENERATE_FINAL_VIDEO"
	TaskTypeGenerateMusic        = "GENERATE_MUSIC"
	TaskTypeGenerateVoice        = "GENERATE_VOICE"
	TaskTypeRunVisualQA          = "RUN_VISUAL_QA"
	TaskTypeRunAudioQA           = "RUN_AUDIO_QA"
	TaskTypeRunVideoQA           = "RUN_VIDEO_QA"
	TaskTypeExtractFeatures      = "EXTRACT_FEATURES"
	TaskTypeUpdateDNABank        = "UPDATE_DNA_BANK"
	TaskTypeAdjustPrompts        = "ADJUST_PROMPTS"
	TaskTypeAssembleFinal        = "ASSEMBLE_FINAL"
	TaskTypePromptTuning         = "PROMPT_TUNING"
	TaskTypeModelSwapRetry       = "MODEL_SWAP_RETRY"
	TaskTypeHumanReviewRequired  = "HUMAN_REVIEW_REQUIRED"

	// TaskTypeReviseStage and TaskTypeRedoStage are emitted by the Approval
	// Gate on REVISION_REQUESTED/REJECTED decisions (spec §4.7: "emit a
	// revision task ... carrying the user's notes"; "emit a full-redo task
	// for the same stage"). Both carry "stage" in their input so dispatch
	// routes to whichever agent owns that stage.
	TaskTypeReviseStage = "REVISE_STAGE"
	TaskTypeRedoStage   = "REDO_STAGE"
)

// DefaultMaxRetries is the default retry budget for a task when the
// configured TaskTypeDefault doesn't override it (spec §3 Task: "max
// retries (default 3)").
const DefaultMaxRetries = 3

// DefaultTaskTimeout is the default IN_PROGRESS deadline (spec §4.6:
// "default 5 minutes, overridable per task type").
const DefaultTaskTimeout = 5 * time.Minute

// Task is one scheduled unit of work (spec §3 Task).
type Task struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Status       TaskStatus `json:"status"`
	Assignee     string     `json:"assignee"`
	Priority     int        `json:"priority"` // 1-5, 5 highest
	Dependencies []string   `json:"dependencies"` // task ids

	Input  map[string]any `json:"input"`
	Output map[string]any `json:"output,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Heartbeat   *time.Time `json:"heartbeat,omitempty"`

	EstimatedCost Money `json:"estimated_cost"`
	ActualCost    Money `json:"actual_cost,omitempty"`

	CausationEventID string `json:"causation_event_id"`
	RequiredLockKey  string `json:"required_lock_key,omitempty"`

	ProjectID string `json:"project_id"`
	PodID     string `json:"pod_id,omitempty"` // which orchestrator instance drove this task
}

// IsReady reports whether a task is eligible for dispatch given the set of
// task ids currently in COMPLETED status: it must itself be PENDING/READY
// and every dependency must be completed (spec §4.4 "Dependency gating").
func (t Task) IsReady(completed map[string]bool) bool {
	if t.Status != TaskStatusPending && t.Status != TaskStatusReady {
		return false
	}
	for _, dep := range t.Dependencies {
		if !completed[dep] {
			return false
		}
	}
	return true
}

// Deadline returns the instant after which an IN_PROGRESS task counts as
// orphaned, given its configured timeout (spec §4.6 "overridable per task
// type"). It measures from the most recent heartbeat rather than
// StartedAt, so a task that keeps heartbeating never goes orphaned no
// matter how long it actually runs.
func (t Task) Deadline(timeout time.Duration) time.Time {
	last := t.Heartbeat
	if last == nil {
		last = t.StartedAt
	}
	if last == nil {
		return time.Time{}
	}
	if timeout <= 0 {
		timeout = DefaultTaskTimeout
	}
	return last.Add(timeout)
}
