// Package worker is the HTTP surface spec §6 calls the "worker-facing API"
// and "Administrative operations": the wire boundary that lets agents
// written in any language plug into the pipeline without an in-process
// dispatch table (spec §9 "Callback-style event handling": "the event bus
// [is] a wire protocol, not an in-process dispatch"), and that gives an
// Admin CLI somewhere to call.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/scenestack/pipeline/pkg/budget"
	"github.com/scenestack/pipeline/pkg/corerr"
	"github.com/scenestack/pipeline/pkg/eventbus"
	"github.com/scenestack/pipeline/pkg/lockservice"
	"github.com/scenestack/pipeline/pkg/orchestrator"
	"github.com/scenestack/pipeline/pkg/scheduler"
	"github.com/scenestack/pipeline/pkg/store"
	"github.com/scenestack/pipeline/pkg/taskqueue"
	"github.com/scenestack/pipeline/pkg/version"
)

// Server is the HTTP API server agents and the Admin CLI both talk to.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	store   *store.Store
	bus     *eventbus.Bus
	queue   *taskqueue.Queue
	locks   *lockservice.Service
	sched   *scheduler.Scheduler
	budget  *budget.Gate
	orch    *orchestrator.Orchestrator
	log     *slog.Logger

	lockHandles *handleRegistry
}

// NewServer wires an echo.Echo and registers every route.
func NewServer(st *store.Store, bus *eventbus.Bus, q *taskqueue.Queue, locks *lockservice.Service, sched *scheduler.Scheduler, budgetGate *budget.Gate, orch *orchestrator.Orchestrator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	e := echo.New()

	s := &Server{
		echo: e, store: st, bus: bus, queue: q, locks: locks,
		sched: sched, budget: budgetGate, orch: orch, log: log,
		lockHandles: newHandleRegistry(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")

	// Worker-facing API (spec §6): publish/subscribe, state RPCs, locks.
	v1.POST("/projects", s.createProjectHandler)
	v1.POST("/projects/:project_id/events", s.publishEventHandler)
	v1.GET("/projects/:project_id/subscribe", s.subscribeHandler)

	v1.GET("/projects/:project_id", s.getProjectHandler)
	v1.GET("/projects/:project_id/shots/:shot_id", s.getShotHandler)
	v1.PATCH("/projects/:project_id/shots/:shot_id", s.updateShotHandler)
	v1.GET("/projects/:project_id/dna", s.getDNABankHandler)
	v1.PATCH("/projects/:project_id/dna/:entity_id", s.updateDNAHandler)
	v1.PATCH("/projects/:project_id/budget", s.updateBudgetHandler)
	v1.POST("/projects/:project_id/artifacts", s.registerArtifactHandler)

	v1.POST("/locks/acquire", s.acquireLockHandler)
	v1.POST("/locks/release", s.releaseLockHandler)

	// Administrative operations (spec §6, §4.8): the Admin CLI surface.
	v1.GET("/projects/:project_id/approvals", s.listApprovalsHandler)
	v1.POST("/projects/:project_id/approvals/:approval_id/approve", s.approveHandler)
	v1.POST("/projects/:project_id/approvals/:approval_id/reject", s.rejectHandler)
	v1.POST("/projects/:project_id/approvals/:approval_id/revise", s.reviseHandler)
	v1.GET("/projects/:project_id/change-log", s.changeLogHandler)
	v1.GET("/projects/:project_id/tasks", s.listTasksHandler)
	v1.POST("/tasks/:task_id/retry", s.retryTaskHandler)
	v1.POST("/tasks/:task_id/heartbeat", s.heartbeatHandler)
	v1.POST("/projects/:project_id/abort", s.abortProjectHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StartWithListener serves on a pre-created listener — used by tests that
// need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: version.Full(),
	})
}

// mapCoreError maps pkg/corerr sentinels to HTTP status codes (spec §7
// error taxonomy: Validation errors are permanent and surface immediately;
// everything else maps to the closest HTTP semantics).
func mapCoreError(err error) *echo.HTTPError {
	var verr *corerr.ValidationError
	if errors.As(err, &verr) {
		return echo.NewHTTPError(http.StatusBadRequest, verr.Error())
	}
	switch {
	case errors.Is(err, corerr.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	case errors.Is(err, corerr.ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, "resource already exists")
	case errors.Is(err, corerr.ErrConcurrentModification):
		return echo.NewHTTPError(http.StatusConflict, "concurrent modification, retry with a fresh version")
	case errors.Is(err, corerr.ErrLockHeld):
		return echo.NewHTTPError(http.StatusConflict, "lock is held by another caller")
	case errors.Is(err, corerr.ErrBudgetExhausted):
		return echo.NewHTTPError(http.StatusPaymentRequired, "project budget exhausted")
	case errors.Is(err, corerr.ErrDependencyNotSatisfied):
		return echo.NewHTTPError(http.StatusConflict, "task dependency not satisfied")
	case errors.Is(err, corerr.ErrApprovalPending):
		return echo.NewHTTPError(http.StatusConflict, "project is paused at an approval checkpoint")
	case errors.Is(err, corerr.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, corerr.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	slog.Error("worker: unexpected error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
