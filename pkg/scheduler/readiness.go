package scheduler

import (
	"context"
	"time"
)

// readinessLoop periodically re-evaluates every PENDING task's dependencies
// against the current COMPLETED set, independent of any event arriving
// (spec §4.4: "the scheduler must periodically re-scan even when no events
// arrive, because a dependency may have been satisfied by an out-of-band
// operation").
func (s *Scheduler) readinessLoop(ctx context.Context) {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = time.Second
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
			s.rescanReadiness(ctx)
		}
	}
}

func (s *Scheduler) rescanReadiness(ctx context.Context) {
	projectIDs, err := s.queue.ProjectsWithPendingTasks(ctx)
	if err != nil {
		s.log.Error("readiness scan: list pending projects failed", "error", err)
		return
	}
	for _, projectID := range projectIDs {
		if err := s.rescanProject(ctx, projectID); err != nil {
			s.log.Error("readiness scan: project failed", "project_id", projectID, "error", err)
		}
	}
}

// rescanProject promotes every PENDING task of projectID whose dependencies
// are now all COMPLETED to READY, making it eligible for Claim.
func (s *Scheduler) rescanProject(ctx context.Context, projectID string) error {
	pending, err := s.queue.PendingForProject(ctx, projectID)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	completed, err := s.queue.CompletedSet(ctx, projectID)
	if err != nil {
		return err
	}

	for _, task := range pending {
		if !task.IsReady(completed) {
			continue
		}
		if err := s.queue.MarkReady(ctx, task.ID); err != nil {
			s.log.Error("readiness scan: mark ready failed", "task_id", task.ID, "error", err)
		}
	}
	return nil
}
