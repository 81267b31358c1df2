package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/scenestack/pipeline/pkg/budget"
	"github.com/scenestack/pipeline/pkg/config"
	"github.com/scenestack/pipeline/pkg/database"
	"github.com/scenestack/pipeline/pkg/domain"
	"github.com/scenestack/pipeline/pkg/eventbus"
	"github.com/scenestack/pipeline/pkg/lockservice"
	"github.com/scenestack/pipeline/pkg/store"
	"github.com/scenestack/pipeline/pkg/taskqueue"
)

type testHarness struct {
	sched *Scheduler
	store *store.Store
	queue *taskqueue.Queue
	bus   *eventbus.Bus
	locks *lockservice.Service
}

func newTestHarness(t *testing.T) *testHarness {
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
	budgetGate := budget.New(config.DefaultBudgetConfig(), bus, st, nil)

	cfg := config.DefaultQueueConfig()
	cfg.WorkerCount = 1
	cfg.PollInterval = 20 * time.Millisecond
	cfg.PollIntervalJitter = 5 * time.Millisecond
	cfg.OrphanDetectionInterval = time.Hour

	sched := New("pod-test", cfg, q, st, bus, budgetGate, locks, nil)
	return &testHarness{sched: sched, store: st, queue: q, bus: bus, locks: locks}
}

func newTestProject(t *testing.T, h *testHarness, total float64) *domain.Project {
	p := domain.NewProject(uuid.NewString(), domain.GlobalSpec{Title: "t"}, domain.Budget{Total: domain.NewMoney(total, "USD")})
	require.NoError(t, h.store.CreateProject(context.Background(), p))
	return p
}

func waitForEvent(t *testing.T, ch <-chan *domain.Event, eventType string) *domain.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Type == eventType {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", eventType)
		}
	}
}

func TestScheduler_DispatchesAffordableTaskAndPublishesAssignment(t *testing.T) {
	h := newTestHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newTestProject(t, h, 10)

	task := &domain.Task{
		ID: uuid.NewString(), ProjectID: p.ID, Type: "WRITE_SCRIPT", Status: domain.TaskStatusReady,
		Priority: 5, MaxRetries: 2, EstimatedCost: domain.NewMoney(0.5, "USD"),
	}
	require.NoError(t, h.queue.Enqueue(ctx, task))

	received := make(chan *domain.Event, 8)
	go func() {
		_ = h.bus.StartConsuming(ctx, p.ID, "sched-test", "c1", func(_ context.Context, e *domain.Event) error {
			received <- e
			return nil
		})
	}()

	h.sched.Start(ctx)
	defer h.sched.Stop()

	e := waitForEvent(t, received, domain.EventTypeTaskAssigned)
	require.Equal(t, task.ID, e.Payload["task_id"])

	got, err := h.queue.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusInProgress, got.Status)
}

func TestScheduler_FailsTaskWhenBudgetExhausted(t *testing.T) {
	h := newTestHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newTestProject(t, h, 1)

	task := &domain.Task{
		ID: uuid.NewString(), ProjectID: p.ID, Type: "GENERATE_FINAL_VIDEO", Status: domain.TaskStatusReady,
		Priority: 1, MaxRetries: 3, EstimatedCost: domain.NewMoney(5, "USD"),
	}
	require.NoError(t, h.queue.Enqueue(ctx, task))

	received := make(chan *domain.Event, 8)
	go func() {
		_ = h.bus.StartConsuming(ctx, p.ID, "sched-test", "c1", func(_ context.Context, e *domain.Event) error {
			received <- e
			return nil
		})
	}()

	h.sched.Start(ctx)
	defer h.sched.Stop()

	e := waitForEvent(t, received, domain.EventTypeErrorOccurred)
	require.Equal(t, "BUDGET_EXHAUSTED", e.Payload["reason"])

	got, err := h.queue.Get(ctx, task.ID)
	require.NoError(t, err)
	require.Equal(t, domain.TaskStatusFailed, got.Status)
}

func TestScheduler_DefersTaskWhenLockHeld(t *testing.T) {
	h := newTestHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newTestProject(t, h, 10)
	lockKey := "project:" + p.ID + ":shot:shot-1"

	other, err := h.locks.TryAcquire(ctx, lockKey, 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = other.Release(context.Background()) }()

	task := &domain.Task{
		ID: uuid.NewString(), ProjectID: p.ID, Type: "GENERATE_KEYFRAME", Status: domain.TaskStatusReady,
		Priority: 3, MaxRetries: 3, EstimatedCost: domain.NewMoney(0.1, "USD"), RequiredLockKey: lockKey,
	}
	require.NoError(t, h.queue.Enqueue(ctx, task))

	h.sched.Start(ctx)
	defer h.sched.Stop()

	require.Eventually(t, func() bool {
		got, err := h.queue.Get(ctx, task.ID)
		return err == nil && got.Status == domain.TaskStatusReady && got.RetryCount == 0
	}, 2*time.Second, 20*time.Millisecond)
}
