package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/scenestack/pipeline/pkg/database"
	"github.com/scenestack/pipeline/pkg/domain"
)

func newTestBus(t *testing.T) (*Bus, *Store) {
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

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := NewStore(client.Pool())
	return New(rdb, store, nil), store
}

func TestBus_PublishAppendsThenFansOut(t *testing.T) {
	bus, store := newTestBus(t)
	ctx := context.Background()

	root := &domain.Event{ProjectID: "proj-1", Type: domain.EventTypeProjectCreated, Actor: "api"}
	require.NoError(t, bus.Publish(ctx, root))

	child := &domain.Event{ProjectID: "proj-1", Type: domain.EventTypeSceneWritten,
		Actor: "script_writer", CausationID: root.ID}
	require.NoError(t, bus.Publish(ctx, child))

	chain, err := store.CausationChain(ctx, child.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, root.ID, chain[0].ID)
	require.Equal(t, child.ID, chain[1].ID)

	descendants, err := store.Descendants(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, descendants, 1)
	require.Equal(t, child.ID, descendants[0].ID)
}

func TestBus_StartConsumingDeliversAndAcks(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := &domain.Event{ProjectID: "proj-1", Type: domain.EventTypeShotPlanned, Actor: "director"}
	require.NoError(t, bus.Publish(ctx, e))

	var mu sync.Mutex
	var received []string

	go func() {
		_ = bus.StartConsuming(ctx, "proj-1", "scheduler", "scheduler-1", func(_ context.Context, ev *domain.Event) error {
			mu.Lock()
			received = append(received, ev.ID)
			mu.Unlock()
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1 && received[0] == e.ID
	}, 3*time.Second, 20*time.Millisecond)
}

func TestBus_DeadLettersAfterMaxDeliveries(t *testing.T) {
	bus, _ := newTestBus(t)
	bus = bus.WithMaxDeliveries(2).WithClaimMinIdle(10 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := &domain.Event{ProjectID: "proj-1", Type: domain.EventTypeQAReport, Actor: "qa_agent"}
	require.NoError(t, bus.Publish(ctx, e))

	var attempts int
	var mu sync.Mutex

	go func() {
		_ = bus.StartConsuming(ctx, "proj-1", "budget_gate", "budget-1", func(_ context.Context, _ *domain.Event) error {
			mu.Lock()
			attempts++
			mu.Unlock()
			return context.DeadlineExceeded
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 2
	}, 3*time.Second, 20*time.Millisecond)
}
