package approval

import (
	"context"
	"time"

	"github.com/scenestack/pipeline/pkg/domain"
)

// Run scans for overdue approvals every interval until ctx is cancelled —
// the reminder/timeout/escalation watchdog (spec §4.7 "Timeout"), modeled
// on a periodic background scan rather than a per-request timer so it
// survives an orchestrator restart with no lost state (every pending
// approval is re-evaluated from its own created_at on each pass).
func (g *Gate) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.scanOnce(ctx); err != nil {
				g.log.Error("approval: scan failed", "error", err)
			}
		}
	}
}

func (g *Gate) scanOnce(ctx context.Context) error {
	pending, err := g.store.ListAllPendingApprovals(ctx)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, req := range pending {
		timeout := g.timeoutFor(ctx, req)

		if req.IsOverdueForTimeout(timeout, now) {
			g.escalate(ctx, req)
			continue
		}
		if req.IsOverdueForReminder(timeout, now) {
			g.remind(ctx, req)
		}
	}
	return nil
}

// timeoutFor resolves the per-project approval_timeout_minutes override,
// falling back to the gate's configured default.
func (g *Gate) timeoutFor(ctx context.Context, req *domain.ApprovalRequest) time.Duration {
	minutes := g.cfg.DefaultTimeoutMinutes
	if spec, err := g.store.GetGlobalSpec(ctx, req.ProjectID); err == nil && spec.UserOptions.ApprovalTimeoutMinutes > 0 {
		minutes = spec.UserOptions.ApprovalTimeoutMinutes
	}
	return time.Duration(minutes) * time.Minute
}

func (g *Gate) remind(ctx context.Context, req *domain.ApprovalRequest) {
	if !g.cfg.ReminderAtTimeout {
		return
	}
	if err := g.store.MarkReminderSent(ctx, req.ID); err != nil {
		g.log.Error("approval: mark reminder sent failed", "approval_id", req.ID, "error", err)
		return
	}
	_ = g.emit(ctx, req.ProjectID, domain.EventTypeUserApprovalRequired, req.TriggerEventID, map[string]any{
		"approval_id": req.ID,
		"reminder":    true,
	})
}

// escalate either auto-approves the request (if configured) or marks it
// TIMEOUT and raises HUMAN_GATE_TRIGGERED for manual intervention (spec
// §4.7: "transition approval to TIMEOUT and either auto-approve ... or
// escalate").
func (g *Gate) escalate(ctx context.Context, req *domain.ApprovalRequest) {
	if g.cfg.AutoApproveOnTimeout {
		decision := domain.ApprovalDecision{Decider: "system:auto_approve_on_timeout"}
		if err := g.resolve(ctx, req.ID, domain.ApprovalStatusApproved, decision, req.TriggerEventID); err != nil {
			g.log.Error("approval: auto-approve on timeout failed", "approval_id", req.ID, "error", err)
		}
		return
	}

	resolved, err := g.store.ResolveApprovalRequest(ctx, req.ID, domain.ApprovalStatusTimeout, domain.ApprovalDecision{
		Decider: "system:timeout",
	})
	if err != nil {
		g.log.Error("approval: timeout resolution failed", "approval_id", req.ID, "error", err)
		return
	}

	_ = g.emit(ctx, req.ProjectID, domain.EventTypeHumanGateTriggered, req.TriggerEventID, map[string]any{
		"approval_id": resolved.ID,
		"reason":      "approval timed out awaiting human decision",
	})
	if g.notifier != nil {
		g.notifier.NotifyApprovalEscalated(ctx, resolved)
	}
}
