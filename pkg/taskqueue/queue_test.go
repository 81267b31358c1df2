package taskqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/scenestack/pipeline/pkg/database"
	"github.com/scenestack/pipeline/pkg/domain"
)

func newTestQueue(t *testing.T) *Queue {
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

	cfg := database.Config{
		Host: host, Port: port.Int(), User: "test", Password: "test", Database: "test",
		SSLMode: "disable", MaxOpenConns: 10, MaxIdleConns: 5,
		ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 15 * time.Minute,
	}
	client, err := database.NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)

	_, err = client.Pool().Exec(ctx,
		`INSERT INTO projects (project_id, status, spec, budget) VALUES ('proj-1', 'RENDERING', '{}', '{}')`)
	require.NoError(t, err)

	return New(client.Pool())
}

func TestQueue_ClaimOrdersByPriorityThenFIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	low := &domain.Task{ID: "t-low", ProjectID: "proj-1", Type: "GENERATE_KEYFRAME",
		Status: domain.TaskStatusReady, Assignee: "image_gen", Priority: 2,
		MaxRetries: 3, CausationEventID: "evt-1", EstimatedCost: domain.NewMoney(1, "USD")}
	high := &domain.Task{ID: "t-high", ProjectID: "proj-1", Type: "RUN_VISUAL_QA",
		Status: domain.TaskStatusReady, Assignee: "qa_agent", Priority: 5,
		MaxRetries: 3, CausationEventID: "evt-2", EstimatedCost: domain.NewMoney(0.5, "USD")}

	require.NoError(t, q.Enqueue(ctx, low))
	require.NoError(t, q.Enqueue(ctx, high))

	claimed, err := q.Claim(ctx, "pod-1")
	require.NoError(t, err)
	require.Equal(t, "t-high", claimed.ID)
	require.Equal(t, domain.TaskStatusInProgress, claimed.Status)

	_, err = q.Claim(ctx, "pod-1")
	require.NoError(t, err)

	_, err = q.Claim(ctx, "pod-1")
	require.ErrorIs(t, err, ErrNoTasksAvailable)
}

func TestQueue_RequeueExhaustsRetries(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task := &domain.Task{ID: "t-retry", ProjectID: "proj-1", Type: "GENERATE_MUSIC",
		Status: domain.TaskStatusReady, Assignee: "music_agent", Priority: 3,
		MaxRetries: 1, CausationEventID: "evt-3", EstimatedCost: domain.NewMoney(2, "USD")}
	require.NoError(t, q.Enqueue(ctx, task))

	_, err := q.Claim(ctx, "pod-1")
	require.NoError(t, err)

	status, err := q.Requeue(ctx, "t-retry")
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusReady, status)

	_, err = q.Claim(ctx, "pod-1")
	require.NoError(t, err)

	status, err = q.Requeue(ctx, "t-retry")
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusFailed, status)
}

func TestQueue_DetectOrphans(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task := &domain.Task{ID: "t-orphan", ProjectID: "proj-1", Type: "GENERATE_VOICE",
		Status: domain.TaskStatusReady, Assignee: "voice_agent", Priority: 3,
		MaxRetries: 3, CausationEventID: "evt-4", EstimatedCost: domain.NewMoney(1, "USD")}
	require.NoError(t, q.Enqueue(ctx, task))
	_, err := q.Claim(ctx, "pod-1")
	require.NoError(t, err)

	_, err = q.pool.Exec(ctx,
		`UPDATE tasks SET heartbeat = $1 WHERE task_id = $2`, time.Now().Add(-time.Hour), "t-orphan")
	require.NoError(t, err)

	recovered, err := q.DetectOrphans(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, []string{"t-orphan"}, recovered)

	got, err := q.Get(ctx, "t-orphan")
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusReady, got.Status)
}

func TestQueue_StaleCandidates(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	stale := &domain.Task{ID: "t-stale", ProjectID: "proj-1", Type: "GENERATE_VOICE",
		Status: domain.TaskStatusReady, Assignee: "voice_agent", Priority: 3,
		MaxRetries: 3, CausationEventID: "evt-5", EstimatedCost: domain.NewMoney(1, "USD")}
	fresh := &domain.Task{ID: "t-fresh", ProjectID: "proj-1", Type: "GENERATE_VOICE",
		Status: domain.TaskStatusReady, Assignee: "voice_agent", Priority: 3,
		MaxRetries: 3, CausationEventID: "evt-6", EstimatedCost: domain.NewMoney(1, "USD")}
	require.NoError(t, q.Enqueue(ctx, stale))
	require.NoError(t, q.Enqueue(ctx, fresh))
	_, err := q.Claim(ctx, "pod-1")
	require.NoError(t, err)
	_, err = q.Claim(ctx, "pod-1")
	require.NoError(t, err)

	_, err = q.pool.Exec(ctx,
		`UPDATE tasks SET heartbeat = $1 WHERE task_id = $2`, time.Now().Add(-time.Hour), "t-stale")
	require.NoError(t, err)

	candidates, err := q.StaleCandidates(ctx, 5*time.Minute)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, "t-stale", candidates[0].ID)
	require.NotNil(t, candidates[0].Heartbeat)
}
