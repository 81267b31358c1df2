package store

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

	"github.com/scenestack/pipeline/pkg/corerr"
	"github.com/scenestack/pipeline/pkg/database"
	"github.com/scenestack/pipeline/pkg/domain"
	"github.com/scenestack/pipeline/pkg/lockservice"
)

func newTestStore(t *testing.T) *Store {
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

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	locks := lockservice.New(rdb, 30*time.Second, 10*time.Millisecond)
	return New(client.Pool(), rdb, locks)
}

func newTestProject(id string) *domain.Project {
	return domain.NewProject(id, domain.GlobalSpec{Title: "Test Project", DurationSeconds: 30},
		domain.Budget{Total: domain.NewMoney(100, "USD")})
}

func TestStore_CreateAndGetProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := newTestProject("proj-1")
	require.NoError(t, s.CreateProject(ctx, p))

	require.ErrorIs(t, s.CreateProject(ctx, p), corerr.ErrAlreadyExists)

	got, err := s.GetProject(ctx, "proj-1")
	require.NoError(t, err)
	require.Equal(t, "Test Project", got.Spec.Title)
	require.Equal(t, int64(1), got.Version)
	require.True(t, got.Budget.Total.Amount.Equal(p.Budget.Total.Amount))

	_, err = s.GetProject(ctx, "missing")
	require.ErrorIs(t, err, corerr.ErrNotFound)
}

func TestStore_UpdateProjectStatusVersioning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, newTestProject("proj-2")))

	require.NoError(t, s.UpdateProjectStatus(ctx, "proj-2", domain.ProjectStatusPlanning, 1))

	err := s.UpdateProjectStatus(ctx, "proj-2", domain.ProjectStatusRendering, 1)
	require.ErrorIs(t, err, corerr.ErrConcurrentModification)

	got, err := s.GetProject(ctx, "proj-2")
	require.NoError(t, err)
	require.Equal(t, domain.ProjectStatusPlanning, got.Status)
	require.Equal(t, int64(2), got.Version)
}

func TestStore_AddCostAccumulatesAtomically(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, newTestProject("proj-3")))

	require.NoError(t, s.AddCost(ctx, "proj-3", domain.NewMoney(1.50, "USD"), "image_generation", "image_gen", "evt-1"))
	require.NoError(t, s.AddCost(ctx, "proj-3", domain.NewMoney(2.25, "USD"), "image_generation", "image_gen", "evt-2"))

	got, err := s.GetProject(ctx, "proj-3")
	require.NoError(t, err)
	spent, _ := got.Budget.Spent.Amount.Float64()
	require.InDelta(t, 3.75, spent, 0.0001)

	breakdown, _ := got.Budget.Breakdown["image_generation"].Amount.Float64()
	require.InDelta(t, 3.75, breakdown, 0.0001)
}

func TestStore_UpdateShotRequiresLock(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, newTestProject("proj-4")))

	shot := domain.Shot{ID: "shot-1", Status: domain.ShotStatusKeyframeGenerated}
	require.NoError(t, s.UpdateShot(ctx, "proj-4", "shot-1", shot, "scheduler", "evt-3"))

	got, err := s.GetShot(ctx, "proj-4", "shot-1")
	require.NoError(t, err)
	require.Equal(t, domain.ShotStatusKeyframeGenerated, got.Status)
}

func TestStore_ApprovalRequestLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, newTestProject("proj-5")))

	req := &domain.ApprovalRequest{
		ProjectID: "proj-5", TriggerEventType: domain.EventTypeSceneWritten, TriggerEventID: "evt-4",
		Stage: "script", ContentSummary: "scene written", PriorStatus: domain.ProjectStatusPlanning,
	}
	require.NoError(t, s.CreateApprovalRequest(ctx, req))

	pending, err := s.ListPendingApprovals(ctx, "proj-5")
	require.NoError(t, err)
	require.Len(t, pending, 1)

	resolved, err := s.ResolveApprovalRequest(ctx, req.ID, domain.ApprovalStatusApproved,
		domain.ApprovalDecision{Decider: "user-1"})
	require.NoError(t, err)
	require.Equal(t, domain.ApprovalStatusApproved, resolved.Status)

	_, err = s.ResolveApprovalRequest(ctx, req.ID, domain.ApprovalStatusApproved, domain.ApprovalDecision{})
	require.ErrorIs(t, err, corerr.ErrInvalidTransition)

	pending, err = s.ListPendingApprovals(ctx, "proj-5")
	require.NoError(t, err)
	require.Empty(t, pending)
}

func TestStore_ChangeLogFullHistoryAndSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, newTestProject("proj-6")))

	require.NoError(t, s.AppendChange(ctx, "proj-6", domain.ChangeLogEntry{
		Actor: "director_agent", ChangeType: "UPDATE_SHOT", ChangePath: "/shots/shot-1",
		Description: "widened the establishing shot framing",
	}))
	require.NoError(t, s.AppendChange(ctx, "proj-6", domain.ChangeLogEntry{
		Actor: "budget_gate", ChangeType: "ADD_COST", ChangePath: "/budget",
		Description: "recorded image generation spend",
	}))

	full, err := s.FullChangeLog(ctx, "proj-6", 0)
	require.NoError(t, err)
	require.Len(t, full, 2)

	found, err := s.SearchChangeLog(ctx, "proj-6", "framing", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "UPDATE_SHOT", found[0].ChangeType)

	none, err := s.SearchChangeLog(ctx, "proj-6", "nonexistent_term_xyz", 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestStore_SearchApprovals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateProject(ctx, newTestProject("proj-7")))

	req := &domain.ApprovalRequest{
		ProjectID: "proj-7", TriggerEventType: domain.EventTypeSceneWritten, TriggerEventID: "evt-7",
		Stage: "script", ContentSummary: "rooftop chase scene needs review", PriorStatus: domain.ProjectStatusPlanning,
	}
	require.NoError(t, s.CreateApprovalRequest(ctx, req))
	_, err := s.ResolveApprovalRequest(ctx, req.ID, domain.ApprovalStatusApproved, domain.ApprovalDecision{Decider: "user-1"})
	require.NoError(t, err)

	found, err := s.SearchApprovals(ctx, "proj-7", "rooftop", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, domain.ApprovalStatusApproved, found[0].Status)

	none, err := s.SearchApprovals(ctx, "proj-7", "nonexistent_term_xyz", 0)
	require.NoError(t, err)
	require.Empty(t, none)
}
