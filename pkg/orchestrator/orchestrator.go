// Package orchestrator is the façade spec §4.8 describes: it subscribes to
// every project's event stream, routes each event through the Event→Task
// Mapper and the Budget/Approval gates, and exposes the admin operations an
// operator (or Admin CLI) drives a pipeline run with.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scenestack/pipeline/pkg/approval"
	"github.com/scenestack/pipeline/pkg/budget"
	"github.com/scenestack/pipeline/pkg/domain"
	"github.com/scenestack/pipeline/pkg/eventbus"
	"github.com/scenestack/pipeline/pkg/mapper"
	"github.com/scenestack/pipeline/pkg/scheduler"
	"github.com/scenestack/pipeline/pkg/store"
	"github.com/scenestack/pipeline/pkg/taskqueue"
)

// consumerGroup is the shared consumer-group name every orchestrator
// replica uses — each replica is a distinct consumer within the group, so
// the event bus load-balances delivery across replicas (spec §4.8
// "Scheduling model: parallel ... multiple orchestrator instances may run").
const consumerGroup = "orchestrator"

// Orchestrator ties the Event Bus, Event→Task Mapper, Budget Gate, Approval
// Gate, Task Queue, and Scheduler together.
type Orchestrator struct {
	podID  string
	store  *store.Store
	bus    *eventbus.Bus
	queue  *taskqueue.Queue
	mapper *mapper.Mapper
	budget *budget.Gate
	approv *approval.Gate
	sched  *scheduler.Scheduler
	log    *slog.Logger

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New builds an Orchestrator. podID identifies this replica as a distinct
// consumer within the shared consumer group.
func New(podID string, st *store.Store, bus *eventbus.Bus, q *taskqueue.Queue, m *mapper.Mapper, budgetGate *budget.Gate, approvalGate *approval.Gate, sched *scheduler.Scheduler, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		podID: podID, store: st, bus: bus, queue: q, mapper: m,
		budget: budgetGate, approv: approvalGate, sched: sched, log: log,
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start resumes event consumption for every non-terminal project and starts
// the Scheduler. Call once at process startup.
func (o *Orchestrator) Start(ctx context.Context) error {
	ids, err := o.store.ListActiveProjectIDs(ctx)
	if err != nil {
		return fmt.Errorf("orchestrator: list active projects: %w", err)
	}
	for _, id := range ids {
		o.watch(ctx, id)
	}
	o.sched.Start(ctx)
	o.log.Info("orchestrator started", "pod_id", o.podID, "resumed_projects", len(ids))
	return nil
}

// Stop stops every per-project consumer and the Scheduler.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	for _, cancel := range o.cancels {
		cancel()
	}
	o.cancels = make(map[string]context.CancelFunc)
	o.mu.Unlock()
	o.wg.Wait()
	o.sched.Stop()
}

// watch starts a dedicated consumer goroutine for projectID's event stream,
// unless one is already running.
func (o *Orchestrator) watch(ctx context.Context, projectID string) {
	o.mu.Lock()
	if _, ok := o.cancels[projectID]; ok {
		o.mu.Unlock()
		return
	}
	watchCtx, cancel := context.WithCancel(ctx)
	o.cancels[projectID] = cancel
	o.mu.Unlock()

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if err := o.bus.StartConsuming(watchCtx, projectID, consumerGroup, o.podID, o.handleEvent); err != nil && watchCtx.Err() == nil {
			o.log.Error("orchestrator: consumer stopped unexpectedly", "project_id", projectID, "error", err)
		}
	}()
}

// CreateProject creates a new Project aggregate, starts consuming its event
// stream, and publishes PROJECT_CREATED (spec §4.8 admin surface; spec §3
// "Lifecycles": "Project created by external API call").
func (o *Orchestrator) CreateProject(ctx context.Context, spec domain.GlobalSpec, projectBudget domain.Budget) (*domain.Project, error) {
	p := domain.NewProject(uuid.NewString(), spec, projectBudget)
	if err := o.store.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("orchestrator: create project: %w", err)
	}

	o.watch(ctx, p.ID)

	if err := o.emit(ctx, p.ID, domain.EventTypeProjectCreated, "", map[string]any{
		"title": spec.Title,
	}); err != nil {
		return p, err
	}
	return p, nil
}

func (o *Orchestrator) emit(ctx context.Context, projectID, eventType, causationID string, payload map[string]any) error {
	return o.bus.Publish(ctx, &domain.Event{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Type:        eventType,
		Actor:       "orchestrator",
		CausationID: causationID,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	})
}
