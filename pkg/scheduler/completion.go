package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scenestack/pipeline/pkg/domain"
)

// CompleteTask records a task's successful result, releases any lock held
// for it, charges its actual cost against the project budget, and
// immediately re-evaluates dependents rather than waiting for the next
// readiness tick. Called by the orchestrator when it ingests the event an
// agent posts on finishing a task.
func (s *Scheduler) CompleteTask(ctx context.Context, taskID string, output map[string]any, actualCost domain.Money, causationID string) error {
	task, err := s.queue.Get(ctx, taskID)
	if err != nil {
		return fmt.Errorf("scheduler: complete %s: %w", taskID, err)
	}

	if err := s.queue.Complete(ctx, taskID, output, actualCost); err != nil {
		return fmt.Errorf("scheduler: complete %s: %w", taskID, err)
	}
	s.releaseLock(ctx, taskID)

	if !actualCost.Amount.IsZero() {
		if err := s.store.AddCost(ctx, task.ProjectID, actualCost, task.Type, "scheduler", causationID); err != nil {
			s.log.Error("complete task: add cost failed", "task_id", taskID, "error", err)
		} else if s.budgetGate != nil {
			if err := s.budgetGate.EvaluateThresholds(ctx, task.ProjectID, causationID); err != nil {
				s.log.Error("complete task: evaluate budget thresholds failed", "task_id", taskID, "error", err)
			}
		}
	}

	if err := s.rescanProject(ctx, task.ProjectID); err != nil {
		s.log.Error("complete task: readiness rescan failed", "project_id", task.ProjectID, "error", err)
	}
	return nil
}

// FailTask records a failed execution attempt: Requeue bumps retry_count and
// returns the task to READY, or marks it FAILED once max_retries is
// exhausted. The held lock is released either way — a retry re-acquires it
// on its next dispatch.
func (s *Scheduler) FailTask(ctx context.Context, taskID, reason, causationID string) (domain.TaskStatus, error) {
	task, err := s.queue.Get(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("scheduler: fail %s: %w", taskID, err)
	}

	status, err := s.queue.Requeue(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("scheduler: fail %s: %w", taskID, err)
	}
	s.releaseLock(ctx, taskID)

	if status == domain.TaskStatusFailed {
		_ = s.emit(ctx, task.ProjectID, domain.EventTypeErrorOccurred, causationID, map[string]any{
			"task_id": taskID,
			"reason":  reason,
			"message": "task failed and exhausted its retry budget",
		})

		entry := domain.ErrorLogEntry{
			ID:               uuid.NewString(),
			Timestamp:        time.Now().UTC(),
			Severity:         domain.ErrorSeverityError,
			Source:           task.Type,
			Message:          reason,
			RecoveryAttempts: task.RetryCount,
		}
		if s.masker != nil {
			entry = s.masker.MaskErrorLogEntry(entry)
		}
		if err := s.store.AppendError(ctx, task.ProjectID, entry); err != nil {
			s.log.Error("fail task: append error log failed", "task_id", taskID, "error", err)
		}
	}
	return status, nil
}
