package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/scenestack/pipeline/pkg/budget"
	"github.com/scenestack/pipeline/pkg/corerr"
	"github.com/scenestack/pipeline/pkg/domain"
	"github.com/scenestack/pipeline/pkg/taskqueue"
)

// dispatchLoop is the main worker poll loop (spec §4.6): claim the next
// READY task, then either dispatch it or return it to the queue.
func (s *Scheduler) dispatchLoop(ctx context.Context, workerID int) {
	log := s.log.With("worker_id", workerID, "pod_id", s.podID)
	log.Info("dispatch worker started")

	for {
		select {
		case <-s.stopCh:
			log.Info("dispatch worker shutting down")
			return
		case <-ctx.Done():
			return
		default:
		}

		task, err := s.queue.Claim(ctx, s.podID)
		if err != nil {
			if errors.Is(err, taskqueue.ErrNoTasksAvailable) {
				s.sleep(ctx, s.pollInterval())
				continue
			}
			log.Error("claim failed", "error", err)
			s.sleep(ctx, time.Second)
			continue
		}

		s.dispatch(ctx, task)
	}
}

// dispatch re-validates a freshly claimed task against current project
// state and either publishes TASK_ASSIGNED or returns the task to the queue
// (spec §4.6 steps 1-6).
func (s *Scheduler) dispatch(ctx context.Context, task *domain.Task) {
	log := s.log.With("task_id", task.ID, "task_type", task.Type, "project_id", task.ProjectID)

	project, err := s.store.GetProjectBypassingCache(ctx, task.ProjectID)
	if err != nil {
		log.Error("load project failed, deferring task", "error", err)
		s.deferTask(ctx, task.ID)
		return
	}

	// Step 1: dependency re-check. Claim only pulls from READY, and READY
	// tasks have already cleared the readiness scan's dependency check, but
	// a concurrently-aborted project still needs to cancel this task rather
	// than dispatch it.
	if project.Status.IsTerminal() {
		if err := s.queue.Cancel(ctx, task.ID); err != nil {
			log.Error("cancel task for terminal project failed", "error", err)
		}
		return
	}

	// Step 3: approval pause. A checkpoint may have opened after this task
	// became READY; leave it claimed-but-undispatched until the project
	// resumes.
	if project.Status == domain.ProjectStatusApprovalPending {
		s.deferTask(ctx, task.ID)
		return
	}

	// Step 2: budget check.
	if !budget.CanAfford(project.Budget, task.EstimatedCost) {
		s.failForBudget(ctx, task)
		return
	}

	// Step 4: lock acquisition, non-blocking — on contention the task stays
	// in the queue for a later poll rather than blocking this worker.
	if task.RequiredLockKey != "" {
		handle, err := s.locks.TryAcquire(ctx, task.RequiredLockKey, 0)
		if err != nil {
			if !errors.Is(err, corerr.ErrLockHeld) {
				log.Error("lock acquire failed, deferring task", "lock_key", task.RequiredLockKey, "error", err)
			}
			s.deferTask(ctx, task.ID)
			return
		}
		s.takeLock(task.ID, handle)
	}

	// Steps 5-6: the task is already IN_PROGRESS (set by Claim); publish the
	// assignment event so the owning agent picks it up.
	if err := s.emit(ctx, task.ProjectID, domain.EventTypeTaskAssigned, task.CausationEventID, map[string]any{
		"task_id":  task.ID,
		"type":     task.Type,
		"assignee": task.Assignee,
		"input":    task.Input,
	}); err != nil {
		log.Error("publish TASK_ASSIGNED failed", "error", err)
	}

	log.Info("task dispatched", "assignee", task.Assignee, "priority", task.Priority)
}

// deferTask returns a claimed task to READY without touching its retry
// budget — used whenever the scheduler itself declines to dispatch this
// round, as opposed to a downstream execution failure.
func (s *Scheduler) deferTask(ctx context.Context, taskID string) {
	if err := s.queue.Defer(ctx, taskID); err != nil {
		s.log.Error("defer task failed", "task_id", taskID, "error", err)
	}
}

// failForBudget marks a task FAILED with reason BUDGET_EXHAUSTED and raises
// ERROR_OCCURRED (spec §4.6 step 2, §7 "Budget" failure class).
func (s *Scheduler) failForBudget(ctx context.Context, task *domain.Task) {
	const reason = "BUDGET_EXHAUSTED"
	if err := s.queue.Fail(ctx, task.ID, reason); err != nil {
		s.log.Error("mark task failed for budget exhaustion failed", "task_id", task.ID, "error", err)
		return
	}
	_ = s.emit(ctx, task.ProjectID, domain.EventTypeErrorOccurred, task.CausationEventID, map[string]any{
		"task_id": task.ID,
		"reason":  reason,
		"message": "estimated cost exceeds remaining project budget",
	})
}
