package domain

import "time"

// Event types named directly by the spec. The full enumerated set is ~40
// values (spec §3); these are the ones whose semantics the spec spells out.
const (
	EventTypeProjectCreated        = "PROJECT_CREATED"
	EventTypeSceneWritten          = "SCENE_WRITTEN"
	EventTypeShotPlanned           = "SHOT_PLANNED"
	EventTypeImageGenerated        = "IMAGE_GENERATED"
	EventTypeDNABankUpdated        = "DNA_BANK_UPDATED"
	EventTypeQAReport              = "QA_REPORT"
	EventTypePreviewVideoReady     = "PREVIEW_VIDEO_READY"
	EventTypeShotApproved          = "SHOT_APPROVED"
	EventTypeFinalVideoReady       = "FINAL_VIDEO_READY"
	EventTypeHumanGateTriggered    = "HUMAN_GATE_TRIGGERED"
	EventTypeTaskAssigned          = "TASK_ASSIGNED"
	EventTypeErrorOccurred         = "ERROR_OCCURRED"
	EventTypeUserApprovalRequired  = "USER_APPROVAL_REQUIRED"
	EventTypeUserApproved          = "USER_APPROVED"
	EventTypeUserRevisionRequested = "USER_REVISION_REQUESTED"
	EventTypeUserRejected          = "USER_REJECTED"
	EventTypeCostOverrunWarning    = "COST_OVERRUN_WARNING"
	EventTypeQueuePressure         = "QUEUE_PRESSURE"
	EventTypeForceAbort            = "FORCE_ABORT"
)

// Event is one entry in the causally-ordered event log (spec §3 Event, §6
// "Event payload schema").
type Event struct {
	ID                string         `json:"id"`
	ProjectID         string         `json:"project_id"`
	Type              string         `json:"type"`
	Actor             string         `json:"actor"` // publishing agent
	CausationID       string         `json:"causation_id,omitempty"` // null for externally-triggered roots
	Timestamp         time.Time      `json:"timestamp"` // UTC
	Payload           map[string]any `json:"payload"`
	BlackboardPointer string         `json:"blackboard_pointer,omitempty"` // JSON-pointer-like
	Metadata          EventMetadata  `json:"metadata"`
}

// EventMetadata carries ancillary accounting data about the operation that
// produced the event (spec §3 Event).
type EventMetadata struct {
	Cost      Money `json:"cost,omitempty"`
	LatencyMS int64 `json:"latency_ms,omitempty"`
	RetryCount int  `json:"retry_count,omitempty"`
}

// IsRoot reports whether the event is an externally-triggered root of the
// causation DAG (spec §3: "causation graph is a DAG, rooted at externally
// triggered events").
func (e Event) IsRoot() bool {
	return e.CausationID == ""
}
