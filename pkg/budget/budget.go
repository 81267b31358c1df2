// Package budget implements the Budget Gate the Scheduler consults before
// dispatching a task, and the threshold watcher that fires warnings and a
// force-abort as a project's spend climbs (spec §4.6 step 2, §7 "Budget"
// failure class).
package budget

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/scenestack/pipeline/pkg/config"
	"github.com/scenestack/pipeline/pkg/domain"
	"github.com/scenestack/pipeline/pkg/eventbus"
	"github.com/scenestack/pipeline/pkg/store"
)

// Gate evaluates task affordability against a project's remaining budget and
// watches spend thresholds, emitting COST_OVERRUN_WARNING and FORCE_ABORT
// events (spec §3 Budget invariant: "spent ≤ total × 1.2 before FORCE_ABORT;
// warning thresholds at 0.8 and 1.0").
type Gate struct {
	cfg   *config.BudgetConfig
	bus   *eventbus.Bus
	store *store.Store
	log   *slog.Logger
}

// New builds a Gate.
func New(cfg *config.BudgetConfig, bus *eventbus.Bus, st *store.Store, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{cfg: cfg, bus: bus, store: st, log: log}
}

// CanAfford reports whether estimatedCost fits within the project's
// remaining budget (spec §4.6 step 2: "estimated_cost ≤ remaining budget ×
// 1.0").
func CanAfford(budget domain.Budget, estimatedCost domain.Money) bool {
	remaining := budget.Remaining()
	return !estimatedCost.GreaterThan(remaining)
}

// EvaluateThresholds re-reads the project's budget and emits
// COST_OVERRUN_WARNING once spend crosses WarningThreshold and FORCE_ABORT
// once it crosses ForceAbortMultiplier. Called after every AddCost so the
// thresholds are checked against the freshest spend figure (spec Scenario 2:
// "after total spent crosses 80%, COST_OVERRUN_WARNING emitted").
func (g *Gate) EvaluateThresholds(ctx context.Context, projectID string, causationID string) error {
	budget, err := g.store.GetBudget(ctx, projectID)
	if err != nil {
		return err
	}

	ratio := budget.SpendRatio()
	switch {
	case ratio >= g.cfg.ForceAbortMultiplier:
		return g.emit(ctx, projectID, domain.EventTypeForceAbort, causationID, map[string]any{
			"reason":      "budget force-abort threshold exceeded",
			"spend_ratio": ratio,
		})
	case ratio >= g.cfg.CriticalThreshold:
		return g.emit(ctx, projectID, domain.EventTypeCostOverrunWarning, causationID, map[string]any{
			"severity":    "critical",
			"spend_ratio": ratio,
		})
	case ratio >= g.cfg.WarningThreshold:
		return g.emit(ctx, projectID, domain.EventTypeCostOverrunWarning, causationID, map[string]any{
			"severity":    "warning",
			"spend_ratio": ratio,
		})
	}
	return nil
}

func (g *Gate) emit(ctx context.Context, projectID, eventType, causationID string, payload map[string]any) error {
	return g.bus.Publish(ctx, &domain.Event{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Type:        eventType,
		Actor:       "budget_gate",
		CausationID: causationID,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	})
}
