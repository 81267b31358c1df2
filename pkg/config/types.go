package config

import "time"

// BudgetConfig controls the budget-gate thresholds the scheduler applies
// before dispatching a task (spec §4.6 step 2, §7 "Budget" failure class).
type BudgetConfig struct {
	// WarningThreshold is the spent/total ratio at which a COST_OVERRUN
	// warning is first emitted.
	WarningThreshold float64 `yaml:"warning_threshold" validate:"gt=0,lt=1"`

	// CriticalThreshold is the spent/total ratio at which budget is
	// considered exhausted and fallback/degrade kicks in (spec §7.2).
	CriticalThreshold float64 `yaml:"critical_threshold" validate:"gte=1"`

	// ForceAbortMultiplier bounds how far spend may exceed total before the
	// project is force-aborted regardless of in-flight work.
	ForceAbortMultiplier float64 `yaml:"force_abort_multiplier" validate:"gt=1"`
}

// LockConfig controls the Lock Service's default TTL and blocking-poll
// cadence (spec §4.3).
type LockConfig struct {
	DefaultTTL        time.Duration `yaml:"default_ttl"`
	BlockingPollEvery time.Duration `yaml:"blocking_poll_interval"`
}

// ApprovalConfig controls the Approval Gate's default checkpoint set and
// timeout behavior (spec §4.7).
type ApprovalConfig struct {
	// DefaultCheckpoints lists the event types gated by default when a
	// project's own checkpoint list is empty.
	DefaultCheckpoints []string `yaml:"default_checkpoints"`

	// DefaultTimeoutMinutes is used when a project doesn't override it.
	DefaultTimeoutMinutes int `yaml:"default_timeout_minutes" validate:"min=1"`

	// ReminderAtTimeout, when true, emits a reminder at 1x timeout before
	// escalating at 2x timeout (spec §4.7).
	ReminderAtTimeout bool `yaml:"reminder_at_timeout"`

	// AutoApproveOnTimeout auto-approves instead of marking TIMEOUT once the
	// 2x-timeout mark is reached.
	AutoApproveOnTimeout bool `yaml:"auto_approve_on_timeout"`

	// ScanInterval is how often Gate.Run re-evaluates every pending approval
	// for reminder/timeout/escalation (spec §4.7 "Timeout").
	ScanInterval time.Duration `yaml:"scan_interval" validate:"gt=0"`
}

// NotifyConfig controls the Slack notifier used for approval reminders and
// human-gate escalations.
type NotifyConfig struct {
	Enabled  bool   `yaml:"enabled"`
	TokenEnv string `yaml:"token_env,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// TaskTemplateConfig is one entry of the Event→Task Mapper's declarative
// table (spec §4.5): for a given event type, one task type to emit.
type TaskTemplateConfig struct {
	TaskType string `yaml:"task_type" validate:"required"`

	// PerShot, when true, means one task is emitted per shot referenced by
	// the event payload (e.g. SHOT_PLANNED → one GENERATE_KEYFRAME per shot)
	// instead of a single project-level task.
	PerShot bool `yaml:"per_shot,omitempty"`

	// Condition names a predicate evaluated against the event payload that
	// gates whether this template fires, e.g. "qa_status=PASS". Empty means
	// unconditional.
	Condition string `yaml:"condition,omitempty"`
}

// EventTaskMapConfig is the full declarative mapper table: event type name
// to the task templates it produces. It is data, not code (spec §4.5) — it
// is reloadable without recompiling the scheduler.
type EventTaskMapConfig map[string][]TaskTemplateConfig

// TaskTypeDefault captures the per-task-type defaults the mapper fills in
// when building a Task from a template (spec §4.5 "Task template → Task").
type TaskTypeDefault struct {
	Priority int    `yaml:"priority" validate:"min=1,max=5"`
	Assignee string `yaml:"assignee"`

	// RequiredLockKeyTemplate, if non-empty, is formatted with the event's
	// project/shot ids to produce the task's required lock key, e.g.
	// "project:%s:shot:%s".
	RequiredLockKeyTemplate string `yaml:"required_lock_key_template,omitempty"`

	MaxRetries    int           `yaml:"max_retries" validate:"min=0"`
	Timeout       time.Duration `yaml:"timeout"`
	EstimatedCost float64       `yaml:"estimated_cost" validate:"min=0"`
}

// TaskDefaultsConfig maps task type name to its per-type defaults.
type TaskDefaultsConfig map[string]TaskTypeDefault
