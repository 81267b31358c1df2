package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	echo "github.com/labstack/echo/v5"

	"github.com/scenestack/pipeline/pkg/domain"
)

// subscribeHandler handles GET /api/v1/projects/:project_id/subscribe — the
// worker-facing subscribe(agent_name, event_types[]) RPC (spec §6). The
// Event Bus's streams are scoped per project (spec §4.1), so an agent
// subscribes one active project at a time; query params agent_name and
// event_types (comma-separated, empty = all) select registration and a
// client-side filter. Registration is idempotent: reconnecting with the
// same agent_name joins the same consumer group, so no event delivered
// while this agent was briefly disconnected is lost (spec §6: "idempotent
// registration").
func (s *Server) subscribeHandler(c *echo.Context) error {
	agentName := c.QueryParam("agent_name")
	if agentName == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "agent_name is required")
	}
	var wantTypes map[string]bool
	if raw := c.QueryParam("event_types"); raw != "" {
		wantTypes = make(map[string]bool)
		for _, t := range strings.Split(raw, ",") {
			wantTypes[strings.TrimSpace(t)] = true
		}
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true, // deferred to a future auth layer, same as the health/admin endpoints
	})
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	ctx := c.Request().Context()
	projectID := c.Param("project_id")
	group := "worker:" + agentName
	consumer := uuid.NewString()

	err = s.bus.StartConsuming(ctx, projectID, group, consumer, func(ctx context.Context, e *domain.Event) error {
		if wantTypes != nil && !wantTypes[e.Type] {
			return nil // acked but not forwarded — agent didn't ask for this type
		}
		payload, err := json.Marshal(e)
		if err != nil {
			return err
		}
		return conn.Write(ctx, websocket.MessageText, payload)
	})
	if err != nil && ctx.Err() == nil {
		s.log.Error("worker: subscribe consumer stopped", "project_id", projectID, "agent", agentName, "error", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
	return nil
}
