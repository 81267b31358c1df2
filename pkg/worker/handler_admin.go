package worker

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/scenestack/pipeline/pkg/domain"
)

// listApprovalsHandler handles GET /api/v1/projects/:project_id/approvals
// — "List pending approvals for a project: returns approval id, stage,
// content summary, created_at" (spec §6). A ?q= query parameter instead
// full-text searches the project's entire approval history (pending and
// resolved) by content summary.
func (s *Server) listApprovalsHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	projectID := c.Param("project_id")

	if q := c.QueryParam("q"); q != "" {
		found, err := s.store.SearchApprovals(ctx, projectID, q, 0)
		if err != nil {
			return mapCoreError(err)
		}
		return c.JSON(http.StatusOK, found)
	}

	pending, err := s.orch.ListPendingApprovals(ctx, projectID)
	if err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusOK, pending)
}

// approveHandler handles POST
// /api/v1/projects/:project_id/approvals/:approval_id/approve.
func (s *Server) approveHandler(c *echo.Context) error {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.orch.Approve(c.Request().Context(), c.Param("project_id"), c.Param("approval_id"), req.Decider); err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusAccepted, AckResponse{OK: true})
}

// rejectHandler handles POST
// /api/v1/projects/:project_id/approvals/:approval_id/reject.
func (s *Server) rejectHandler(c *echo.Context) error {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.orch.Reject(c.Request().Context(), c.Param("project_id"), c.Param("approval_id"), req.Decider, req.Notes); err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusAccepted, AckResponse{OK: true})
}

// reviseHandler handles POST
// /api/v1/projects/:project_id/approvals/:approval_id/revise.
func (s *Server) reviseHandler(c *echo.Context) error {
	var req DecisionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.orch.Revise(c.Request().Context(), c.Param("project_id"), c.Param("approval_id"), req.Decider, req.RevisionNotes); err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusAccepted, AckResponse{OK: true})
}

// listTasksHandler handles GET /api/v1/projects/:project_id/tasks?status=
// — "List tasks: filter by project, status, assignee" (spec §6). Assignee
// filtering is done client-side on the returned list; the Task Queue
// indexes by project+status, not assignee.
func (s *Server) listTasksHandler(c *echo.Context) error {
	status := domain.TaskStatus(c.QueryParam("status"))
	if status == "" {
		status = domain.TaskStatusReady
	}
	tasks, err := s.orch.ListTasks(c.Request().Context(), c.Param("project_id"), status)
	if err != nil {
		return mapCoreError(err)
	}
	if assignee := c.QueryParam("assignee"); assignee != "" {
		filtered := tasks[:0]
		for _, t := range tasks {
			if t.Assignee == assignee {
				filtered = append(filtered, t)
			}
		}
		tasks = filtered
	}
	return c.JSON(http.StatusOK, tasks)
}

// retryTaskHandler handles POST /api/v1/tasks/:task_id/retry —
// force-retrying failed tasks (spec §6 admin surface).
func (s *Server) retryTaskHandler(c *echo.Context) error {
	if err := s.orch.ForceRetryTask(c.Request().Context(), c.Param("task_id")); err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusAccepted, AckResponse{OK: true})
}

// changeLogHandler handles GET /api/v1/projects/:project_id/change-log —
// the full (uncapped) change history behind Project.ChangeLog's
// most-recent-100 mirror (spec §4.2, §9). A ?q= query parameter switches to
// a full-text search over entry descriptions.
func (s *Server) changeLogHandler(c *echo.Context) error {
	ctx := c.Request().Context()
	projectID := c.Param("project_id")

	if q := c.QueryParam("q"); q != "" {
		entries, err := s.store.SearchChangeLog(ctx, projectID, q, 0)
		if err != nil {
			return mapCoreError(err)
		}
		return c.JSON(http.StatusOK, entries)
	}

	entries, err := s.store.FullChangeLog(ctx, projectID, 0)
	if err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

// abortProjectHandler handles POST /api/v1/projects/:project_id/abort —
// "Force-abort project" (spec §6).
func (s *Server) abortProjectHandler(c *echo.Context) error {
	var req AbortProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := s.orch.AbortProject(c.Request().Context(), c.Param("project_id"), req.Reason); err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusAccepted, AckResponse{OK: true})
}
