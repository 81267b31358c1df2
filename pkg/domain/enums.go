package domain

// ProjectStatus is the Project aggregate's lifecycle status (spec §3).
type ProjectStatus string

const (
	ProjectStatusCreated          ProjectStatus = "CREATED"
	ProjectStatusPlanning         ProjectStatus = "PLANNING"
	ProjectStatusRendering        ProjectStatus = "RENDERING"
	ProjectStatusQA               ProjectStatus = "QA"
	ProjectStatusEditing          ProjectStatus = "EDITING"
	ProjectStatusApprovalPending  ProjectStatus = "APPROVAL_PENDING"
	ProjectStatusDelivered        ProjectStatus = "DELIVERED"
	ProjectStatusAborted          ProjectStatus = "ABORTED"
	ProjectStatusFailed           ProjectStatus = "FAILED"
)

func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectStatusCreated, ProjectStatusPlanning, ProjectStatusRendering,
		ProjectStatusQA, ProjectStatusEditing, ProjectStatusApprovalPending,
		ProjectStatusDelivered, ProjectStatusAborted, ProjectStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is a terminal state — no further
// scheduling should occur for the project.
func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectStatusDelivered || s == ProjectStatusAborted || s == ProjectStatusFailed
}

// QualityTier is the GlobalSpec quality tier (spec §3).
type QualityTier string

const (
	QualityTierHigh     QualityTier = "high"
	QualityTierBalanced QualityTier = "balanced"
	QualityTierFast     QualityTier = "fast"
)

func (t QualityTier) IsValid() bool {
	return t == QualityTierHigh || t == QualityTierBalanced || t == QualityTierFast
}

// MergeStrategy governs how DNA Bank embedding versions combine into the
// entry's current aggregated confidence (spec §3 DNA Bank, §9 Open Question 2).
type MergeStrategy string

const (
	MergeStrategyWeightedAverage     MergeStrategy = "weighted_average"
	MergeStrategyLatestPriority      MergeStrategy = "latest_priority"
	MergeStrategyConfidenceThreshold MergeStrategy = "confidence_threshold"
	MergeStrategyManualSelection     MergeStrategy = "manual_selection"
)

func (m MergeStrategy) IsValid() bool {
	switch m {
	case MergeStrategyWeightedAverage, MergeStrategyLatestPriority,
		MergeStrategyConfidenceThreshold, MergeStrategyManualSelection:
		return true
	default:
		return false
	}
}

// ShotStatus is a Shot's independent status chain (spec §3).
type ShotStatus string

const (
	ShotStatusInit             ShotStatus = "INIT"
	ShotStatusKeyframeGenerated ShotStatus = "KEYFRAME_GENERATED"
	ShotStatusPreviewReady     ShotStatus = "PREVIEW_READY"
	ShotStatusQAPassed         ShotStatus = "QA_PASSED"
	ShotStatusApproved         ShotStatus = "APPROVED"
	ShotStatusFinalRendered    ShotStatus = "FINAL_RENDERED"
	ShotStatusFailed           ShotStatus = "FAILED"
)

func (s ShotStatus) IsValid() bool {
	switch s {
	case ShotStatusInit, ShotStatusKeyframeGenerated, ShotStatusPreviewReady,
		ShotStatusQAPassed, ShotStatusApproved, ShotStatusFinalRendered, ShotStatusFailed:
		return true
	default:
		return false
	}
}

// AudioStrategy is a Shot's audio compositing strategy (spec §3).
type AudioStrategy string

const (
	AudioStrategyModelEmbedded      AudioStrategy = "MODEL_EMBEDDED"
	AudioStrategyExternalFull       AudioStrategy = "EXTERNAL_FULL"
	AudioStrategyHybridOverlay      AudioStrategy = "HYBRID_OVERLAY"
	AudioStrategyExternalFullReplace AudioStrategy = "EXTERNAL_FULL_REPLACE"
)

func (a AudioStrategy) IsValid() bool {
	switch a {
	case AudioStrategyModelEmbedded, AudioStrategyExternalFull,
		AudioStrategyHybridOverlay, AudioStrategyExternalFullReplace:
		return true
	default:
		return false
	}
}

// QAStatus is the outcome of a quality-assurance pass (spec §3).
type QAStatus string

const (
	QAStatusPass QAStatus = "PASS"
	QAStatusWarn QAStatus = "WARN"
	QAStatusFail QAStatus = "FAIL"
)

func (q QAStatus) IsValid() bool {
	return q == QAStatusPass || q == QAStatusWarn || q == QAStatusFail
}

// TaskStatus is a Task's lifecycle status (spec §3).
type TaskStatus string

const (
	TaskStatusPending         TaskStatus = "PENDING"
	TaskStatusReady           TaskStatus = "READY"
	TaskStatusInProgress      TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted       TaskStatus = "COMPLETED"
	TaskStatusFailed          TaskStatus = "FAILED"
	TaskStatusCancelled       TaskStatus = "CANCELLED"
	TaskStatusWaitingApproval TaskStatus = "WAITING_APPROVAL"
)

func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusInProgress, TaskStatusCompleted,
		TaskStatusFailed, TaskStatusCancelled, TaskStatusWaitingApproval:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the task status is a terminal state.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// ApprovalStatus is an ApprovalRequest's lifecycle status (spec §4.7).
type ApprovalStatus string

const (
	ApprovalStatusPending            ApprovalStatus = "PENDING"
	ApprovalStatusApproved           ApprovalStatus = "APPROVED"
	ApprovalStatusRevisionRequested  ApprovalStatus = "REVISION_REQUESTED"
	ApprovalStatusRejected           ApprovalStatus = "REJECTED"
	ApprovalStatusTimeout            ApprovalStatus = "TIMEOUT"
)

func (s ApprovalStatus) IsValid() bool {
	switch s {
	case ApprovalStatusPending, ApprovalStatusApproved, ApprovalStatusRevisionRequested,
		ApprovalStatusRejected, ApprovalStatusTimeout:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the approval status is a terminal state.
func (s ApprovalStatus) IsTerminal() bool {
	return s != ApprovalStatusPending
}

// ErrorSeverity classifies an Error Log entry.
type ErrorSeverity string

const (
	ErrorSeverityWarning  ErrorSeverity = "WARNING"
	ErrorSeverityError    ErrorSeverity = "ERROR"
	ErrorSeverityCritical ErrorSeverity = "CRITICAL"
)
