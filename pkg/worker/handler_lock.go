package worker

import (
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/scenestack/pipeline/pkg/lockservice"
)

// acquireLockHandler handles POST /api/v1/locks/acquire — lock.acquire
// (spec §6). Blocking mode polls until acquired or the request context is
// cancelled; non-blocking mode (the default) returns corerr.ErrLockHeld
// immediately on contention (spec §8 boundary behavior: "lock acquire with
// zero timeout in blocking mode immediately returns failure if contested").
func (s *Server) acquireLockHandler(c *echo.Context) error {
	var req AcquireLockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Key == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key is required")
	}
	ttl := time.Duration(req.TTLMS) * time.Millisecond

	var (
		handle *lockservice.Handle
		err    error
	)
	if req.Blocking {
		handle, err = s.locks.Acquire(c.Request().Context(), req.Key, ttl)
	} else {
		handle, err = s.locks.TryAcquire(c.Request().Context(), req.Key, ttl)
	}
	if err != nil {
		return mapCoreError(err)
	}

	return c.JSON(http.StatusOK, LockAcquiredResponse{
		LockToken: s.lockHandles.put(handle),
		Key:       req.Key,
	})
}

// releaseLockHandler handles POST /api/v1/locks/release — lock.release
// (spec §6).
func (s *Server) releaseLockHandler(c *echo.Context) error {
	var req ReleaseLockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	h, ok := s.lockHandles.take(req.LockToken)
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown lock_token")
	}
	if err := h.Release(c.Request().Context()); err != nil {
		return mapCoreError(err)
	}
	return c.JSON(http.StatusOK, AckResponse{OK: true})
}
