package orchestrator

import (
	"context"
	"fmt"

	"github.com/scenestack/pipeline/pkg/domain"
)

// handleEvent is the per-project consumer's Handler: it routes decision
// events to the Approval Gate and every other event through the mapper and,
// where the project's checkpoints gate it, the Approval Gate's Trigger
// (spec §4.8: "routes to Event→Task Mapper then through Budget and Approval
// gates").
func (o *Orchestrator) handleEvent(ctx context.Context, e *domain.Event) error {
	switch e.Type {
	case domain.EventTypeUserApproved, domain.EventTypeUserRevisionRequested, domain.EventTypeUserRejected:
		return o.approv.HandleDecision(ctx, e)
	case domain.EventTypeForceAbort:
		return o.AbortProject(ctx, e.ProjectID, "budget force-abort threshold exceeded")
	}

	project, err := o.store.GetProjectBypassingCache(ctx, e.ProjectID)
	if err != nil {
		return fmt.Errorf("orchestrator: load project for %s: %w", e.Type, err)
	}
	if project.Status.IsTerminal() {
		return nil
	}

	templates, err := o.mapper.Map(e, project)
	if err != nil {
		return fmt.Errorf("orchestrator: map event %s: %w", e.Type, err)
	}
	if len(templates) == 0 {
		return nil
	}

	if o.approv.IsGated(e.Type, project) {
		_, err := o.approv.Trigger(ctx, e, project, templates)
		return err
	}

	return o.enqueueTemplates(ctx, templates, project.ID)
}

// enqueueTemplates builds a Task per template and enqueues it READY (no
// dependency population is wired here yet — every mapped template is
// independent of the others at this point) or PENDING when BuildTask leaves
// dependencies populated by a future caller.
func (o *Orchestrator) enqueueTemplates(ctx context.Context, templates []domain.TaskTemplate, projectID string) error {
	for _, tmpl := range templates {
		task, err := o.mapper.BuildTask(tmpl, projectID)
		if err != nil {
			o.log.Error("orchestrator: build task failed", "task_type", tmpl.TaskType, "project_id", projectID, "error", err)
			continue
		}
		if len(task.Dependencies) == 0 {
			task.Status = domain.TaskStatusReady
		}
		if err := o.queue.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("orchestrator: enqueue task %s: %w", task.ID, err)
		}
	}
	return nil
}
