package orchestrator

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

	"github.com/scenestack/pipeline/pkg/approval"
	"github.com/scenestack/pipeline/pkg/budget"
	"github.com/scenestack/pipeline/pkg/config"
	"github.com/scenestack/pipeline/pkg/database"
	"github.com/scenestack/pipeline/pkg/domain"
	"github.com/scenestack/pipeline/pkg/eventbus"
	"github.com/scenestack/pipeline/pkg/lockservice"
	"github.com/scenestack/pipeline/pkg/mapper"
	"github.com/scenestack/pipeline/pkg/scheduler"
	"github.com/scenestack/pipeline/pkg/store"
	"github.com/scenestack/pipeline/pkg/taskqueue"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *taskqueue.Queue) {
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
	locks := lockservice.New(rdb, 30*time.Second, 50*time.Millisecond)
	m := mapper.New(&config.Config{EventTaskMap: config.DefaultEventTaskMap(), TaskDefaults: config.DefaultTaskDefaults()})
	budgetGate := budget.New(config.DefaultBudgetConfig(), bus, st, nil)
	approvalGate := approval.New(config.DefaultApprovalConfig(), st, bus, m, q, nil, nil)

	qcfg := config.DefaultQueueConfig()
	qcfg.WorkerCount = 1
	qcfg.PollInterval = 20 * time.Millisecond
	qcfg.PollIntervalJitter = 5 * time.Millisecond
	qcfg.OrphanDetectionInterval = time.Hour
	sched := scheduler.New("pod-test", qcfg, q, st, bus, budgetGate, locks, nil)

	orch := New("pod-test", st, bus, q, m, budgetGate, approvalGate, sched, nil)
	return orch, q
}

func TestOrchestrator_CreateProjectEnqueuesMappedTask(t *testing.T) {
	orch, q := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer orch.Stop()

	require.NoError(t, orch.Start(ctx))

	p, err := orch.CreateProject(ctx, domain.GlobalSpec{Title: "demo"}, domain.Budget{Total: domain.NewMoney(50, "USD")})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		tasks, err := q.ListByProjectAndStatus(ctx, p.ID, domain.TaskStatusReady)
		return err == nil && len(tasks) == 1 && tasks[0].Type == "WRITE_SCRIPT"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestOrchestrator_ApprovalCheckpointPausesThenResumesOnApprove(t *testing.T) {
	orch, q := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer orch.Stop()

	require.NoError(t, orch.Start(ctx))

	p, err := orch.CreateProject(ctx, domain.GlobalSpec{Title: "demo"}, domain.Budget{Total: domain.NewMoney(50, "USD")})
	require.NoError(t, err)

	// SCENE_WRITTEN is a default checkpoint — publish it directly as if the
	// scriptwriter agent emitted it.
	require.NoError(t, orch.emit(ctx, p.ID, domain.EventTypeSceneWritten, "", map[string]any{}))

	var approvalID string
	require.Eventually(t, func() bool {
		pending, err := orch.ListPendingApprovals(ctx, p.ID)
		if err != nil || len(pending) == 0 {
			return false
		}
		approvalID = pending[0].ID
		return true
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, orch.Approve(ctx, p.ID, approvalID, "reviewer-1"))

	require.Eventually(t, func() bool {
		tasks, err := q.ListByProjectAndStatus(ctx, p.ID, domain.TaskStatusReady)
		return err == nil && len(tasks) == 1 && tasks[0].Type == "PLAN_SHOTS"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestOrchestrator_AbortProjectCancelsQueuedTasks(t *testing.T) {
	orch, q := newTestOrchestrator(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer orch.Stop()

	require.NoError(t, orch.Start(ctx))

	p, err := orch.CreateProject(ctx, domain.GlobalSpec{Title: "demo"}, domain.Budget{Total: domain.NewMoney(50, "USD")})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		tasks, err := q.ListByProjectAndStatus(ctx, p.ID, domain.TaskStatusReady)
		return err == nil && len(tasks) == 1
	}, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, orch.AbortProject(ctx, p.ID, "test abort"))

	tasks, err := q.ListByProjectAndStatus(ctx, p.ID, domain.TaskStatusCancelled)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
}
