// Package approval implements the Approval Gate: human-in-the-loop
// checkpoints that pause a project pending a decision before its mapped
// tasks are enqueued (spec §4.7).
package approval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scenestack/pipeline/pkg/config"
	"github.com/scenestack/pipeline/pkg/corerr"
	"github.com/scenestack/pipeline/pkg/domain"
	"github.com/scenestack/pipeline/pkg/eventbus"
	"github.com/scenestack/pipeline/pkg/mapper"
	"github.com/scenestack/pipeline/pkg/store"
	"github.com/scenestack/pipeline/pkg/taskqueue"
)

// Notifier delivers a human-facing notification for an approval checkpoint
// or escalation. Implemented by the adapted Slack service; nil disables
// notification (decisions still ingest and resolve normally).
type Notifier interface {
	NotifyApprovalRequested(ctx context.Context, req *domain.ApprovalRequest)
	NotifyApprovalEscalated(ctx context.Context, req *domain.ApprovalRequest)
}

// Gate is the Approval Gate.
type Gate struct {
	cfg      *config.ApprovalConfig
	store    *store.Store
	bus      *eventbus.Bus
	mapper   *mapper.Mapper
	queue    *taskqueue.Queue
	notifier Notifier
	log      *slog.Logger
}

// New builds a Gate. notifier may be nil.
func New(cfg *config.ApprovalConfig, st *store.Store, bus *eventbus.Bus, m *mapper.Mapper, q *taskqueue.Queue, notifier Notifier, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{cfg: cfg, store: st, bus: bus, mapper: m, queue: q, notifier: notifier, log: log}
}

// checkpoints returns the project's configured checkpoint set, falling back
// to the Gate's default when the project hasn't overridden it (spec §4.7:
// "read from GlobalSpec.user_options.approval_checkpoints").
func (g *Gate) checkpoints(project *domain.Project) []string {
	if len(project.Spec.UserOptions.ApprovalCheckpoints) > 0 {
		return project.Spec.UserOptions.ApprovalCheckpoints
	}
	return g.cfg.DefaultCheckpoints
}

// IsGated reports whether eventType requires a pause for this project. A
// project with auto_mode set bypasses every checkpoint (spec §4.7:
// "if auto_mode is true, all checkpoints are bypassed").
func (g *Gate) IsGated(eventType string, project *domain.Project) bool {
	if project.Spec.UserOptions.AutoMode {
		return false
	}
	for _, ck := range g.checkpoints(project) {
		if ck == eventType {
			return true
		}
	}
	return false
}

// Trigger pauses the project: creates an ApprovalRequest holding the
// templates the mapper produced for event (deferred until the gate
// resolves), sets the project to APPROVAL_PENDING, and publishes
// USER_APPROVAL_REQUIRED (spec §4.7 "Contract").
func (g *Gate) Trigger(ctx context.Context, event *domain.Event, project *domain.Project, templates []domain.TaskTemplate) (*domain.ApprovalRequest, error) {
	req := &domain.ApprovalRequest{
		ProjectID:             project.ID,
		TriggerEventType:      event.Type,
		TriggerEventID:        event.ID,
		Stage:                 stageFor(event.Type),
		ContentSummary:        fmt.Sprintf("%s triggered a review checkpoint", event.Type),
		PriorStatus:           project.Status,
		DeferredTaskTemplates: templates,
	}
	if err := g.store.CreateApprovalRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("approval: create request: %w", err)
	}

	if err := g.store.UpdateProjectStatus(ctx, project.ID, domain.ProjectStatusApprovalPending, project.Version); err != nil {
		return nil, fmt.Errorf("approval: pause project %s: %w", project.ID, err)
	}

	if err := g.emit(ctx, project.ID, domain.EventTypeUserApprovalRequired, event.ID, map[string]any{
		"approval_id": req.ID,
		"stage":       req.Stage,
	}); err != nil {
		return nil, err
	}

	if g.notifier != nil {
		g.notifier.NotifyApprovalRequested(ctx, req)
	}
	return req, nil
}

func stageFor(eventType string) string {
	switch eventType {
	case domain.EventTypeSceneWritten:
		return "script"
	case domain.EventTypeShotPlanned:
		return "shots"
	case domain.EventTypePreviewVideoReady:
		return "preview"
	case domain.EventTypeFinalVideoReady:
		return "final"
	default:
		return "general"
	}
}

// HandleDecision ingests a USER_APPROVED/USER_REVISION_REQUESTED/
// USER_REJECTED event, each carrying the approval id in its payload (spec
// §4.7 "Decision ingestion").
func (g *Gate) HandleDecision(ctx context.Context, event *domain.Event) error {
	approvalID, _ := event.Payload["approval_id"].(string)
	if approvalID == "" {
		return corerr.NewValidationError("approval_id", "decision event missing approval_id")
	}

	decision := domain.ApprovalDecision{
		Decider: stringPayload(event.Payload, "decider"),
		Notes:   stringPayload(event.Payload, "notes"),
	}
	if notes := stringPayload(event.Payload, "revision_notes"); notes != "" {
		decision.RevisionNotes = notes
	}

	var status domain.ApprovalStatus
	switch event.Type {
	case domain.EventTypeUserApproved:
		status = domain.ApprovalStatusApproved
	case domain.EventTypeUserRevisionRequested:
		status = domain.ApprovalStatusRevisionRequested
	case domain.EventTypeUserRejected:
		status = domain.ApprovalStatusRejected
	default:
		return fmt.Errorf("approval: %s is not a decision event", event.Type)
	}

	return g.resolve(ctx, approvalID, status, decision, event.ID)
}

func stringPayload(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}

// resolve transitions the approval request and takes the status-specific
// follow-up action (spec §4.7: resume on APPROVED, revision task on
// REVISION_REQUESTED, full-redo task on REJECTED).
func (g *Gate) resolve(ctx context.Context, approvalID string, status domain.ApprovalStatus, decision domain.ApprovalDecision, causationID string) error {
	req, err := g.store.ResolveApprovalRequest(ctx, approvalID, status, decision)
	if err != nil {
		return fmt.Errorf("approval: resolve %s: %w", approvalID, err)
	}

	switch status {
	case domain.ApprovalStatusApproved:
		return g.resume(ctx, req, causationID)
	case domain.ApprovalStatusRevisionRequested:
		return g.enqueueFollowUp(ctx, req, domain.TaskTypeReviseStage, decision.RevisionNotes, causationID)
	case domain.ApprovalStatusRejected:
		return g.enqueueFollowUp(ctx, req, domain.TaskTypeRedoStage, decision.Notes, causationID)
	}
	return nil
}

// resume restores the project's prior status and enqueues every task
// template that was deferred while the gate was open (spec §4.7: "restore
// prior status, release the soft-pause, emit the downstream tasks that were
// deferred").
func (g *Gate) resume(ctx context.Context, req *domain.ApprovalRequest, causationID string) error {
	project, err := g.store.GetProjectBypassingCache(ctx, req.ProjectID)
	if err != nil {
		return err
	}
	if err := g.store.UpdateProjectStatus(ctx, req.ProjectID, req.PriorStatus, project.Version); err != nil {
		return fmt.Errorf("approval: restore status for %s: %w", req.ProjectID, err)
	}

	for _, tmpl := range req.DeferredTaskTemplates {
		task, err := g.mapper.BuildTask(tmpl, req.ProjectID)
		if err != nil {
			g.log.Error("approval: build deferred task failed", "approval_id", req.ID, "task_type", tmpl.TaskType, "error", err)
			continue
		}
		task.Status = domain.TaskStatusReady
		if err := g.queue.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("approval: enqueue deferred task %s: %w", task.ID, err)
		}
	}
	return nil
}

// enqueueFollowUp builds and enqueues a single revision/redo task for the
// request's stage, carrying the human's notes and the original trigger
// event id so the agent can retrieve prior content.
func (g *Gate) enqueueFollowUp(ctx context.Context, req *domain.ApprovalRequest, taskType, notes, causationID string) error {
	task, err := g.mapper.BuildTask(domain.TaskTemplate{
		TaskType:         taskType,
		CausationEventID: req.TriggerEventID,
		Input: map[string]any{
			"stage": req.Stage,
			"notes": notes,
		},
	}, req.ProjectID)
	if err != nil {
		return fmt.Errorf("approval: build follow-up task: %w", err)
	}
	task.Status = domain.TaskStatusReady
	if err := g.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("approval: enqueue follow-up task %s: %w", task.ID, err)
	}
	return nil
}

func (g *Gate) emit(ctx context.Context, projectID, eventType, causationID string, payload map[string]any) error {
	return g.bus.Publish(ctx, &domain.Event{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Type:        eventType,
		Actor:       "approval_gate",
		CausationID: causationID,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	})
}
