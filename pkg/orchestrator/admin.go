package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scenestack/pipeline/pkg/domain"
)

// ListPendingApprovals lists a project's open approval requests (spec §4.8
// admin surface: "listing pending approvals").
func (o *Orchestrator) ListPendingApprovals(ctx context.Context, projectID string) ([]*domain.ApprovalRequest, error) {
	return o.store.ListPendingApprovals(ctx, projectID)
}

// ListTasks lists a project's tasks in the given status (spec §4.8:
// "listing tasks by project/status").
func (o *Orchestrator) ListTasks(ctx context.Context, projectID string, status domain.TaskStatus) ([]*domain.Task, error) {
	return o.queue.ListByProjectAndStatus(ctx, projectID, status)
}

// Approve publishes a USER_APPROVED decision event; the project's own
// consumer picks it up and resumes the deferred tasks (spec §4.8
// "Administrative operations": "approve(project_id, approval_id)").
func (o *Orchestrator) Approve(ctx context.Context, projectID, approvalID, decider string) error {
	return o.emitDecision(ctx, projectID, domain.EventTypeUserApproved, map[string]any{
		"approval_id": approvalID,
		"decider":     decider,
	})
}

// Reject publishes a USER_REJECTED decision event carrying notes (spec
// §4.8: "reject(project_id, approval_id, notes)").
func (o *Orchestrator) Reject(ctx context.Context, projectID, approvalID, decider, notes string) error {
	return o.emitDecision(ctx, projectID, domain.EventTypeUserRejected, map[string]any{
		"approval_id": approvalID,
		"decider":     decider,
		"notes":       notes,
	})
}

// Revise publishes a USER_REVISION_REQUESTED decision event carrying
// revision notes (spec §4.8: "revise(project_id, approval_id,
// revision_notes)").
func (o *Orchestrator) Revise(ctx context.Context, projectID, approvalID, decider, revisionNotes string) error {
	return o.emitDecision(ctx, projectID, domain.EventTypeUserRevisionRequested, map[string]any{
		"approval_id":    approvalID,
		"decider":        decider,
		"revision_notes": revisionNotes,
	})
}

func (o *Orchestrator) emitDecision(ctx context.Context, projectID, eventType string, payload map[string]any) error {
	return o.bus.Publish(ctx, &domain.Event{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Type:      eventType,
		Actor:     "admin",
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

// ForceRetryTask resets a FAILED task back to READY with a clean retry
// budget (spec §4.8: "force-retrying failed tasks").
func (o *Orchestrator) ForceRetryTask(ctx context.Context, taskID string) error {
	return o.queue.ForceRetry(ctx, taskID)
}

// AbortProject transitions a project to ABORTED and cancels every
// PENDING/READY task; in-flight tasks are left to finish or time out (spec
// §4.8 "Cancellation").
func (o *Orchestrator) AbortProject(ctx context.Context, projectID, reason string) error {
	project, err := o.store.GetProjectBypassingCache(ctx, projectID)
	if err != nil {
		return fmt.Errorf("orchestrator: abort %s: %w", projectID, err)
	}
	if project.Status.IsTerminal() {
		return nil
	}

	if err := o.store.UpdateProjectStatus(ctx, projectID, domain.ProjectStatusAborted, project.Version); err != nil {
		return fmt.Errorf("orchestrator: abort %s: %w", projectID, err)
	}

	n, err := o.queue.CancelPendingAndReady(ctx, projectID)
	if err != nil {
		o.log.Error("orchestrator: cancel pending/ready tasks failed", "project_id", projectID, "error", err)
	} else {
		o.log.Info("orchestrator: project aborted", "project_id", projectID, "cancelled_tasks", n, "reason", reason)
	}
	return nil
}
