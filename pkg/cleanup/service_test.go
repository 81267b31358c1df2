package cleanup

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/scenestack/pipeline/pkg/config"
	"github.com/scenestack/pipeline/pkg/database"
	"github.com/scenestack/pipeline/pkg/eventbus"
	"github.com/scenestack/pipeline/pkg/store"
)

func newTestService(t *testing.T) (*Service, *database.Client) {
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

	st := store.New(client.Pool(), nil, nil)
	eventStore := eventbus.NewStore(client.Pool())

	retention := &config.RetentionConfig{
		ProjectRetentionDays: 30,
		EventTTL:             time.Hour,
		CleanupInterval:      time.Hour,
	}
	return NewService(retention, st, eventStore, slog.Default()), client
}

func insertProject(t *testing.T, client *database.Client, id, status string, updatedAt time.Time) {
	t.Helper()
	_, err := client.Pool().Exec(context.Background(),
		`INSERT INTO projects (project_id, status, spec, budget, updated_at) VALUES ($1, $2, '{}', '{}', $3)`,
		id, status, updatedAt)
	require.NoError(t, err)
}

func insertEvent(t *testing.T, client *database.Client, id, projectID string, ts time.Time) {
	t.Helper()
	_, err := client.Pool().Exec(context.Background(),
		`INSERT INTO events (event_id, project_id, type, actor, "timestamp", payload) VALUES ($1, $2, 'TEST_EVENT', 'test', $3, '{}')`,
		id, projectID, ts)
	require.NoError(t, err)
}

func TestService_SoftDeletesStaleTerminalProjects(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	insertProject(t, client, "proj-old", "DELIVERED", time.Now().Add(-60*24*time.Hour))
	insertProject(t, client, "proj-recent", "DELIVERED", time.Now())
	insertProject(t, client, "proj-active", "RENDERING", time.Now().Add(-60*24*time.Hour))

	svc.runAll(ctx)

	var deletedAt *time.Time
	require.NoError(t, client.Pool().QueryRow(ctx,
		`SELECT deleted_at FROM projects WHERE project_id = 'proj-old'`).Scan(&deletedAt))
	require.NotNil(t, deletedAt)

	require.NoError(t, client.Pool().QueryRow(ctx,
		`SELECT deleted_at FROM projects WHERE project_id = 'proj-recent'`).Scan(&deletedAt))
	require.Nil(t, deletedAt)

	require.NoError(t, client.Pool().QueryRow(ctx,
		`SELECT deleted_at FROM projects WHERE project_id = 'proj-active'`).Scan(&deletedAt))
	require.Nil(t, deletedAt)
}

func TestService_PurgesOrphanedEvents(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()

	insertProject(t, client, "proj-gone", "ABORTED", time.Now().Add(-60*24*time.Hour))
	insertEvent(t, client, "evt-old", "proj-gone", time.Now().Add(-2*time.Hour))

	insertProject(t, client, "proj-here", "RENDERING", time.Now())
	insertEvent(t, client, "evt-live", "proj-here", time.Now().Add(-2*time.Hour))

	svc.runAll(ctx)

	var count int
	require.NoError(t, client.Pool().QueryRow(ctx, `SELECT count(*) FROM events WHERE event_id = 'evt-old'`).Scan(&count))
	require.Equal(t, 0, count, "event belonging to a soft-deleted project past its TTL should be purged")

	require.NoError(t, client.Pool().QueryRow(ctx, `SELECT count(*) FROM events WHERE event_id = 'evt-live'`).Scan(&count))
	require.Equal(t, 1, count, "event belonging to an active project must be preserved regardless of age")
}
