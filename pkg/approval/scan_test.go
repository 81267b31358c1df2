package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/scenestack/pipeline/pkg/domain"
)

func TestGate_ScanSendsReminderPastTimeout(t *testing.T) {
	gate, st, _, client := newTestGate(t)
	ctx := context.Background()
	gate.cfg.DefaultTimeoutMinutes = 1
	gate.cfg.ReminderAtTimeout = true

	p := domain.NewProject("proj-scan-1", domain.GlobalSpec{Title: "t"}, domain.Budget{Total: domain.NewMoney(10, "USD")})
	require.NoError(t, st.CreateProject(ctx, p))

	event := &domain.Event{ID: "evt-scan-1", ProjectID: p.ID, Type: domain.EventTypeSceneWritten, Payload: map[string]any{}}
	req, err := gate.Trigger(ctx, event, p, nil)
	require.NoError(t, err)

	_, err = client.Pool().Exec(ctx, `UPDATE approval_requests SET created_at = $2 WHERE approval_id = $1`,
		req.ID, time.Now().UTC().Add(-2*time.Minute))
	require.NoError(t, err)

	require.NoError(t, gate.scanOnce(ctx))

	got, err := st.GetApprovalRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalStatusPending, got.Status)
	require.NotNil(t, got.ReminderSentAt)
}

func TestGate_ScanAutoApprovesPastDoubleTimeoutWhenConfigured(t *testing.T) {
	gate, st, q, client := newTestGate(t)
	ctx := context.Background()
	gate.cfg.DefaultTimeoutMinutes = 1
	gate.cfg.AutoApproveOnTimeout = true

	p := domain.NewProject("proj-scan-2", domain.GlobalSpec{Title: "t"}, domain.Budget{Total: domain.NewMoney(10, "USD")})
	p.Status = domain.ProjectStatusPlanning
	require.NoError(t, st.CreateProject(ctx, p))

	event := &domain.Event{ID: "evt-scan-2", ProjectID: p.ID, Type: domain.EventTypeShotPlanned, Payload: map[string]any{}}
	templates := []domain.TaskTemplate{{TaskType: "GENERATE_KEYFRAME", ShotID: "shot-1", CausationEventID: event.ID}}
	req, err := gate.Trigger(ctx, event, p, templates)
	require.NoError(t, err)

	_, err = client.Pool().Exec(ctx, `UPDATE approval_requests SET created_at = $2 WHERE approval_id = $1`,
		req.ID, time.Now().UTC().Add(-3*time.Minute))
	require.NoError(t, err)

	require.NoError(t, gate.scanOnce(ctx))

	got, err := st.GetApprovalRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalStatusApproved, got.Status)
	require.Equal(t, "system:auto_approve_on_timeout", got.Decision.Decider)

	project, err := st.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProjectStatusPlanning, project.Status)

	pending, err := q.PendingForProject(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestGate_ScanEscalatesToTimeoutWhenNotAutoApprove(t *testing.T) {
	gate, st, _, client := newTestGate(t)
	ctx := context.Background()
	gate.cfg.DefaultTimeoutMinutes = 1
	gate.cfg.AutoApproveOnTimeout = false

	p := domain.NewProject("proj-scan-3", domain.GlobalSpec{Title: "t"}, domain.Budget{Total: domain.NewMoney(10, "USD")})
	require.NoError(t, st.CreateProject(ctx, p))

	event := &domain.Event{ID: "evt-scan-3", ProjectID: p.ID, Type: domain.EventTypeSceneWritten, Payload: map[string]any{}}
	req, err := gate.Trigger(ctx, event, p, nil)
	require.NoError(t, err)

	_, err = client.Pool().Exec(ctx, `UPDATE approval_requests SET created_at = $2 WHERE approval_id = $1`,
		req.ID, time.Now().UTC().Add(-3*time.Minute))
	require.NoError(t, err)

	require.NoError(t, gate.scanOnce(ctx))

	got, err := st.GetApprovalRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalStatusTimeout, got.Status)
	require.Equal(t, "system:timeout", got.Decision.Decider)
}
