package scheduler

import (
	"context"
	"time"

	"github.com/scenestack/pipeline/pkg/domain"
)

// orphanLoop is the timeout watchdog: it periodically recovers IN_PROGRESS
// tasks whose heartbeat has gone stale, modeled on the teacher's orphan
// detection ticker (spec §4.6 "Orphan detection").
func (s *Scheduler) orphanLoop(ctx context.Context) {
	interval := s.cfg.OrphanDetectionInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.detectOrphans(ctx)
		}
	}
}

// orphanTimeoutFor returns the IN_PROGRESS timeout for a task type: its
// configured TaskTypeDefault.Timeout if one is set, else cfg.OrphanThreshold
// (spec §4.6 "default 5 minutes, overridable per task type").
func (s *Scheduler) orphanTimeoutFor(taskType string) time.Duration {
	if def, ok := s.taskDefaults[taskType]; ok && def.Timeout > 0 {
		return def.Timeout
	}
	return s.cfg.OrphanThreshold
}

// minOrphanTimeout is the loosest threshold across every configured task
// type, used to pre-filter candidates at the database before the precise
// per-type check runs in Go.
func (s *Scheduler) minOrphanTimeout() time.Duration {
	min := s.cfg.OrphanThreshold
	for _, def := range s.taskDefaults {
		if def.Timeout > 0 && def.Timeout < min {
			min = def.Timeout
		}
	}
	return min
}

// detectOrphans requeues (or fails, on retry exhaustion) every IN_PROGRESS
// task whose heartbeat has gone stale past its own task type's timeout,
// releases any lock it held — its original holder will never call
// CompleteTask/FailTask — and raises ERROR_OCCURRED for tasks that end up
// FAILED.
func (s *Scheduler) detectOrphans(ctx context.Context) {
	candidates, err := s.queue.StaleCandidates(ctx, s.minOrphanTimeout())
	if err != nil {
		s.log.Error("orphan detection failed", "error", err)
		return
	}

	now := time.Now()
	var recovered int
	for _, task := range candidates {
		if task.Heartbeat == nil {
			continue
		}
		deadline := task.Deadline(s.orphanTimeoutFor(task.Type))
		if deadline.IsZero() || now.Before(deadline) {
			continue
		}

		s.releaseLock(ctx, task.ID)

		status, err := s.queue.Requeue(ctx, task.ID)
		if err != nil {
			s.log.Error("orphan recovery: requeue failed", "task_id", task.ID, "error", err)
			continue
		}
		recovered++

		if status != domain.TaskStatusFailed {
			continue
		}
		_ = s.emit(ctx, task.ProjectID, domain.EventTypeErrorOccurred, task.CausationEventID, map[string]any{
			"task_id": task.ID,
			"reason":  "TASK_TIMEOUT",
			"message": "task orphaned: no heartbeat before retry budget was exhausted",
		})
	}
	if recovered > 0 {
		s.log.Warn("recovered orphaned tasks", "count", recovered)
	}
}
