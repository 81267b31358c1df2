package approval

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/scenestack/pipeline/pkg/config"
	"github.com/scenestack/pipeline/pkg/corerr"
	"github.com/scenestack/pipeline/pkg/database"
	"github.com/scenestack/pipeline/pkg/domain"
	"github.com/scenestack/pipeline/pkg/eventbus"
	"github.com/scenestack/pipeline/pkg/mapper"
	"github.com/scenestack/pipeline/pkg/store"
	"github.com/scenestack/pipeline/pkg/taskqueue"
)

func newTestGate(t *testing.T) (*Gate, *store.Store, *taskqueue.Queue, *database.Client) {
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = testcontainers.TerminateContainer(pgContainer) })

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	client, err := database.NewClient(ctx, database.Config{
		Host: host, Port: port.Int(), User: "test", Password: "test", Database: "test",
		SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 5,
		ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	st := store.New(client.Pool(), rdb, nil)
	bus := eventbus.New(rdb, eventbus.NewStore(client.Pool()), nil)
	q := taskqueue.New(client.Pool())
	m := mapper.New(&config.Config{EventTaskMap: config.DefaultEventTaskMap(), TaskDefaults: config.DefaultTaskDefaults()})

	cfg := config.DefaultApprovalConfig()
	return New(cfg, st, bus, m, q, nil, nil), st, q, client
}

func TestGate_TriggerPausesProjectAndDefersTemplates(t *testing.T) {
	gate, st, _, _ := newTestGate(t)
	ctx := context.Background()

	p := domain.NewProject("proj-a1", domain.GlobalSpec{Title: "t"}, domain.Budget{Total: domain.NewMoney(10, "USD")})
	require.NoError(t, st.CreateProject(ctx, p))
	require.True(t, gate.IsGated(domain.EventTypeSceneWritten, p))

	event := &domain.Event{ID: "evt-1", ProjectID: p.ID, Type: domain.EventTypeSceneWritten, Payload: map[string]any{}}
	templates := []domain.TaskTemplate{{TaskType: "PLAN_SHOTS", CausationEventID: event.ID}}

	req, err := gate.Trigger(ctx, event, p, templates)
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalStatusPending, req.Status)

	got, err := st.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProjectStatusApprovalPending, got.Status)
	require.Len(t, got.PendingApprovals, 1)
}

func TestGate_ApprovedDecisionResumesAndEnqueuesDeferredTasks(t *testing.T) {
	gate, st, q, _ := newTestGate(t)
	ctx := context.Background()

	p := domain.NewProject("proj-a2", domain.GlobalSpec{Title: "t"}, domain.Budget{Total: domain.NewMoney(10, "USD")})
	p.Status = domain.ProjectStatusPlanning
	require.NoError(t, st.CreateProject(ctx, p))

	current, err := st.GetProject(ctx, p.ID)
	require.NoError(t, err)

	event := &domain.Event{ID: "evt-2", ProjectID: p.ID, Type: domain.EventTypeShotPlanned, Payload: map[string]any{}}
	templates := []domain.TaskTemplate{{TaskType: "GENERATE_KEYFRAME", ShotID: "shot-1", CausationEventID: event.ID}}
	req, err := gate.Trigger(ctx, event, current, templates)
	require.NoError(t, err)

	decisionEvent := &domain.Event{ID: "evt-3", ProjectID: p.ID, Type: domain.EventTypeUserApproved,
		Payload: map[string]any{"approval_id": req.ID, "decider": "user-1"}}
	require.NoError(t, gate.HandleDecision(ctx, decisionEvent))

	got, err := st.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProjectStatusPlanning, got.Status)
	require.Empty(t, got.PendingApprovals)

	pending, err := q.PendingForProject(ctx, p.ID)
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestGate_RejectedDecisionEnqueuesRedoTask(t *testing.T) {
	gate, st, _, _ := newTestGate(t)
	ctx := context.Background()

	p := domain.NewProject("proj-a3", domain.GlobalSpec{Title: "t"}, domain.Budget{Total: domain.NewMoney(10, "USD")})
	require.NoError(t, st.CreateProject(ctx, p))

	event := &domain.Event{ID: "evt-4", ProjectID: p.ID, Type: domain.EventTypeSceneWritten, Payload: map[string]any{}}
	req, err := gate.Trigger(ctx, event, p, nil)
	require.NoError(t, err)

	decisionEvent := &domain.Event{ID: "evt-5", ProjectID: p.ID, Type: domain.EventTypeUserRejected,
		Payload: map[string]any{"approval_id": req.ID, "notes": "bad tone"}}
	require.NoError(t, gate.HandleDecision(ctx, decisionEvent))

	_, err = st.GetApprovalRequest(ctx, req.ID)
	require.NoError(t, err)

	err = gate.HandleDecision(ctx, decisionEvent)
	require.ErrorIs(t, err, corerr.ErrInvalidTransition)
}
