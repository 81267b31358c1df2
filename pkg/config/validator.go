package config

import (
	"fmt"
	"os"
)

// Validator validates configuration comprehensively with clear error
// messages, mirroring the section-by-section validation the teacher
// performs before a configuration is allowed to drive live traffic.
type Validator struct {
	cfg *Config
}

// NewValidator creates a validator for the given configuration.
func NewValidator(cfg *Config) *Validator {
	return &Validator{cfg: cfg}
}

// ValidateAll performs comprehensive validation (fail-fast — stops at the
// first error). Order matters: the mapper table is validated last because
// it references task types that must already be known-good.
func (v *Validator) ValidateAll() error {
	if err := v.validateQueue(); err != nil {
		return fmt.Errorf("queue validation failed: %w", err)
	}
	if err := v.validateRetention(); err != nil {
		return fmt.Errorf("retention validation failed: %w", err)
	}
	if err := v.validateBudget(); err != nil {
		return fmt.Errorf("budget validation failed: %w", err)
	}
	if err := v.validateLock(); err != nil {
		return fmt.Errorf("lock validation failed: %w", err)
	}
	if err := v.validateApproval(); err != nil {
		return fmt.Errorf("approval validation failed: %w", err)
	}
	if err := v.validateNotify(); err != nil {
		return fmt.Errorf("notify validation failed: %w", err)
	}
	if err := v.validateTaskDefaults(); err != nil {
		return fmt.Errorf("task_defaults validation failed: %w", err)
	}
	if err := v.validateEventTaskMap(); err != nil {
		return fmt.Errorf("event_task_map validation failed: %w", err)
	}
	return nil
}

func (v *Validator) validateQueue() error {
	q := v.cfg.Queue
	if q == nil {
		return fmt.Errorf("queue configuration is nil")
	}
	if q.WorkerCount < 1 || q.WorkerCount > 50 {
		return fmt.Errorf("worker_count must be between 1 and 50, got %d", q.WorkerCount)
	}
	if q.MaxConcurrentTasks < 1 {
		return fmt.Errorf("max_concurrent_tasks must be at least 1, got %d", q.MaxConcurrentTasks)
	}
	if q.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", q.PollInterval)
	}
	if q.PollIntervalJitter < 0 {
		return fmt.Errorf("poll_interval_jitter must be non-negative, got %v", q.PollIntervalJitter)
	}
	if q.PollIntervalJitter >= q.PollInterval {
		return fmt.Errorf("poll_interval_jitter must be less than poll_interval, got jitter=%v interval=%v", q.PollIntervalJitter, q.PollInterval)
	}
	if q.TaskTimeout <= 0 {
		return fmt.Errorf("task_timeout must be positive, got %v", q.TaskTimeout)
	}
	if q.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("graceful_shutdown_timeout must be positive, got %v", q.GracefulShutdownTimeout)
	}
	if q.OrphanDetectionInterval <= 0 {
		return fmt.Errorf("orphan_detection_interval must be positive, got %v", q.OrphanDetectionInterval)
	}
	if q.OrphanThreshold <= 0 {
		return fmt.Errorf("orphan_threshold must be positive, got %v", q.OrphanThreshold)
	}
	if q.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat_interval must be positive, got %v", q.HeartbeatInterval)
	}
	if q.HeartbeatInterval >= q.OrphanThreshold {
		return fmt.Errorf("heartbeat_interval must be less than orphan_threshold to prevent false orphan detection, got heartbeat=%v threshold=%v", q.HeartbeatInterval, q.OrphanThreshold)
	}
	return nil
}

func (v *Validator) validateRetention() error {
	r := v.cfg.Retention
	if r == nil {
		return fmt.Errorf("retention configuration is nil")
	}
	if r.ProjectRetentionDays < 1 {
		return fmt.Errorf("project_retention_days must be at least 1, got %d", r.ProjectRetentionDays)
	}
	if r.EventTTL <= 0 {
		return fmt.Errorf("event_ttl must be positive, got %v", r.EventTTL)
	}
	if r.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive, got %v", r.CleanupInterval)
	}
	return nil
}

func (v *Validator) validateBudget() error {
	b := v.cfg.Budget
	if b == nil {
		return fmt.Errorf("budget configuration is nil")
	}
	if b.WarningThreshold <= 0 || b.WarningThreshold >= 1 {
		return fmt.Errorf("warning_threshold must be in (0, 1), got %v", b.WarningThreshold)
	}
	if b.CriticalThreshold < 1 {
		return fmt.Errorf("critical_threshold must be at least 1, got %v", b.CriticalThreshold)
	}
	if b.WarningThreshold >= b.CriticalThreshold {
		return fmt.Errorf("warning_threshold must be less than critical_threshold, got warning=%v critical=%v", b.WarningThreshold, b.CriticalThreshold)
	}
	if b.ForceAbortMultiplier <= b.CriticalThreshold {
		return fmt.Errorf("force_abort_multiplier must exceed critical_threshold, got multiplier=%v critical=%v", b.ForceAbortMultiplier, b.CriticalThreshold)
	}
	return nil
}

func (v *Validator) validateLock() error {
	l := v.cfg.Lock
	if l == nil {
		return fmt.Errorf("lock configuration is nil")
	}
	if l.DefaultTTL <= 0 {
		return fmt.Errorf("default_ttl must be positive, got %v", l.DefaultTTL)
	}
	if l.BlockingPollEvery <= 0 {
		return fmt.Errorf("blocking_poll_interval must be positive, got %v", l.BlockingPollEvery)
	}
	if l.BlockingPollEvery >= l.DefaultTTL {
		return fmt.Errorf("blocking_poll_interval must be less than default_ttl, got poll=%v ttl=%v", l.BlockingPollEvery, l.DefaultTTL)
	}
	return nil
}

func (v *Validator) validateApproval() error {
	a := v.cfg.Approval
	if a == nil {
		return fmt.Errorf("approval configuration is nil")
	}
	if a.DefaultTimeoutMinutes < 1 {
		return fmt.Errorf("default_timeout_minutes must be at least 1, got %d", a.DefaultTimeoutMinutes)
	}
	if a.ScanInterval <= 0 {
		return fmt.Errorf("scan_interval must be positive, got %v", a.ScanInterval)
	}
	for i, ckpt := range a.DefaultCheckpoints {
		if ckpt == "" {
			return fmt.Errorf("default_checkpoints[%d] is empty", i)
		}
	}
	return nil
}

func (v *Validator) validateNotify() error {
	n := v.cfg.Notify
	if n == nil || !n.Enabled {
		return nil
	}
	if n.Channel == "" {
		return fmt.Errorf("notify.channel is required when notify is enabled")
	}
	if n.TokenEnv == "" {
		return fmt.Errorf("notify.token_env is required when notify is enabled")
	}
	if token := os.Getenv(n.TokenEnv); token == "" {
		return fmt.Errorf("notify.token_env: environment variable %s is not set", n.TokenEnv)
	}
	return nil
}

func (v *Validator) validateTaskDefaults() error {
	for taskType, def := range v.cfg.TaskDefaults {
		if def.Priority < 1 || def.Priority > 5 {
			return NewValidationError("task_defaults", taskType, "priority", fmt.Errorf("must be between 1 and 5"))
		}
		if def.Assignee == "" {
			return NewValidationError("task_defaults", taskType, "assignee", fmt.Errorf("required"))
		}
		if def.MaxRetries < 0 {
			return NewValidationError("task_defaults", taskType, "max_retries", fmt.Errorf("must be non-negative"))
		}
		if def.EstimatedCost < 0 {
			return NewValidationError("task_defaults", taskType, "estimated_cost", fmt.Errorf("must be non-negative"))
		}
	}
	return nil
}

func (v *Validator) validateEventTaskMap() error {
	for eventType, templates := range v.cfg.EventTaskMap {
		if len(templates) == 0 {
			return NewValidationError("event_task_map", eventType, "", fmt.Errorf("at least one task template required"))
		}
		for i, tmpl := range templates {
			if tmpl.TaskType == "" {
				return NewValidationError("event_task_map", eventType, fmt.Sprintf("[%d].task_type", i), fmt.Errorf("required"))
			}
			if _, ok := v.cfg.TaskDefaults[tmpl.TaskType]; !ok {
				return NewValidationError("event_task_map", eventType, fmt.Sprintf("[%d].task_type", i),
					fmt.Errorf("%w: %s", ErrUnknownTaskType, tmpl.TaskType))
			}
		}
	}
	return nil
}
