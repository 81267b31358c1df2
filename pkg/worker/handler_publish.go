package worker

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/scenestack/pipeline/pkg/corerr"
	"github.com/scenestack/pipeline/pkg/domain"
)

// publishEventHandler handles POST /api/v1/projects/:project_id/events —
// the worker-facing publish(event) RPC (spec §6: "agent emits an event
// after finishing work; must include causation_id of the triggering
// event"). If the event carries a TaskResult, the task's lifecycle is
// closed out through the Scheduler first, so the completion bookkeeping
// (lock release, cost accounting, dependency rescan) happens before the
// domain event is appended for the Orchestrator's own consumer to route.
func (s *Server) publishEventHandler(c *echo.Context) error {
	var req PublishEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Type == "" {
		return mapCoreError(corerr.NewValidationError("type", "event type is required"))
	}
	if req.CausationID == "" {
		return mapCoreError(corerr.NewValidationError("causation_id", "causation_id is required (spec §6: publish must include the triggering event's id)"))
	}

	projectID := c.Param("project_id")
	ctx := c.Request().Context()

	if req.TaskResult != nil {
		if err := s.closeOutTask(ctx, req.TaskResult, req.CausationID); err != nil {
			return mapCoreError(err)
		}
	}

	event := &domain.Event{
		ID:                uuid.NewString(),
		ProjectID:         projectID,
		Type:              req.Type,
		Actor:             req.Actor,
		CausationID:       req.CausationID,
		Timestamp:         time.Now().UTC(),
		Payload:           req.Payload,
		BlackboardPointer: req.BlackboardPointer,
	}
	if err := s.bus.Publish(ctx, event); err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusAccepted, EventAckResponse{EventID: event.ID})
}

// heartbeatHandler handles POST /api/v1/tasks/:task_id/heartbeat — an agent
// still working an IN_PROGRESS task calls this periodically so the
// scheduler's orphan sweep doesn't requeue live work out from under it
// (spec §4.6 "watchdog scans periodically"; HeartbeatInterval must stay
// below the task's orphan threshold, enforced at config load).
func (s *Server) heartbeatHandler(c *echo.Context) error {
	if err := s.queue.Heartbeat(c.Request().Context(), c.Param("task_id")); err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusAccepted, AckResponse{OK: true})
}

// closeOutTask routes a publish()-attached TaskResult to the Scheduler's
// completion path (spec §4.6 step 7: lock release happens "only when a
// later completion event arrives").
func (s *Server) closeOutTask(ctx context.Context, result *TaskResult, causationID string) error {
	switch result.Status {
	case "completed":
		cost := domain.NewMoney(result.ActualCost, result.Currency)
		return s.sched.CompleteTask(ctx, result.TaskID, result.Output, cost, causationID)
	case "failed":
		_, err := s.sched.FailTask(ctx, result.TaskID, result.Reason, causationID)
		return err
	default:
		return corerr.NewValidationError("task_result.status", fmt.Sprintf("unknown status %q, expected \"completed\" or \"failed\"", result.Status))
	}
}
