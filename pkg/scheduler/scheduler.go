// Package scheduler is the orchestrator's dispatch loop: it claims READY
// tasks, re-validates them against current project state, checks budget and
// lock constraints, and dispatches a TASK_ASSIGNED event per claimed task
// (spec §4.6 "Scheduler main loop").
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scenestack/pipeline/pkg/budget"
	"github.com/scenestack/pipeline/pkg/config"
	"github.com/scenestack/pipeline/pkg/corerr"
	"github.com/scenestack/pipeline/pkg/domain"
	"github.com/scenestack/pipeline/pkg/eventbus"
	"github.com/scenestack/pipeline/pkg/lockservice"
	"github.com/scenestack/pipeline/pkg/masking"
	"github.com/scenestack/pipeline/pkg/store"
	"github.com/scenestack/pipeline/pkg/taskqueue"
)

// Scheduler owns a pool of dispatch workers plus the background readiness
// and orphan-detection scans. One instance runs per orchestrator replica;
// every operation is safe for concurrent replicas since taskqueue.Queue
// claims with FOR UPDATE SKIP LOCKED.
type Scheduler struct {
	podID      string
	cfg        *config.QueueConfig
	queue      *taskqueue.Queue
	store      *store.Store
	bus        *eventbus.Bus
	budgetGate *budget.Gate
	locks      *lockservice.Service
	masker     *masking.Service
	log        *slog.Logger

	// taskDefaults supplies the per-task-type IN_PROGRESS timeout the orphan
	// scan uses (spec §4.6 "default 5 minutes, overridable per task type").
	// Optional; a nil map (or a type missing from it) falls back to
	// cfg.OrphanThreshold.
	taskDefaults config.TaskDefaultsConfig

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool

	mu        sync.Mutex
	heldLocks map[string]*lockservice.Handle // task_id -> lock held across its IN_PROGRESS lifetime
}

// New builds a Scheduler. podID identifies this orchestrator replica for
// the tasks table's pod_id column.
func New(podID string, cfg *config.QueueConfig, queue *taskqueue.Queue, st *store.Store, bus *eventbus.Bus, budgetGate *budget.Gate, locks *lockservice.Service, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		podID:      podID,
		cfg:        cfg,
		queue:      queue,
		store:      st,
		bus:        bus,
		budgetGate: budgetGate,
		locks:      locks,
		log:        log,
		stopCh:     make(chan struct{}),
		heldLocks:  make(map[string]*lockservice.Handle),
	}
}

// SetMasker attaches a redaction service applied to error-log messages
// before they're persisted. Optional; a nil masker leaves messages as-is.
func (s *Scheduler) SetMasker(m *masking.Service) {
	s.masker = m
}

// SetTaskDefaults attaches the per-task-type defaults table the orphan scan
// reads Timeout from. Optional; without it every task type uses
// cfg.OrphanThreshold.
func (s *Scheduler) SetTaskDefaults(d config.TaskDefaultsConfig) {
	s.taskDefaults = d
}

// Start spawns the dispatch workers and the readiness/orphan background
// scans. Safe to call once; a second call is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if s.started {
		s.log.Warn("scheduler already started, ignoring duplicate Start call", "pod_id", s.podID)
		return
	}
	s.started = true

	for i := 0; i < s.cfg.WorkerCount; i++ {
		s.wg.Add(1)
		workerID := i
		go func() {
			defer s.wg.Done()
			s.dispatchLoop(ctx, workerID)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.readinessLoop(ctx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.orphanLoop(ctx)
	}()

	s.log.Info("scheduler started", "pod_id", s.podID, "worker_count", s.cfg.WorkerCount)
}

// Stop signals every loop to exit and waits for them to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	s.log.Info("scheduler stopped", "pod_id", s.podID)
}

// sleep waits for d or until stop/ctx is signalled, whichever comes first.
func (s *Scheduler) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-s.stopCh:
	case <-ctx.Done():
	case <-time.After(d):
	}
}

// pollInterval returns the base poll interval jittered so concurrent
// replicas don't poll in lockstep.
func (s *Scheduler) pollInterval() time.Duration {
	base := s.cfg.PollInterval
	jitter := s.cfg.PollIntervalJitter
	if jitter <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(int64(2 * jitter)))
	return base - jitter + offset
}

func (s *Scheduler) emit(ctx context.Context, projectID, eventType, causationID string, payload map[string]any) error {
	return s.bus.Publish(ctx, &domain.Event{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Type:        eventType,
		Actor:       "scheduler",
		CausationID: causationID,
		Timestamp:   time.Now().UTC(),
		Payload:     payload,
	})
}

// takeLock records a held lock for the task's lifetime.
func (s *Scheduler) takeLock(taskID string, h *lockservice.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heldLocks[taskID] = h
}

// releaseLock releases and forgets any lock held for taskID (spec §4.6 step
// 7: "release the lock only once the task's completion event arrives").
func (s *Scheduler) releaseLock(ctx context.Context, taskID string) {
	s.mu.Lock()
	h, ok := s.heldLocks[taskID]
	if ok {
		delete(s.heldLocks, taskID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	if err := h.Release(ctx); err != nil && !errors.Is(err, corerr.ErrLockHeld) {
		s.log.Error("scheduler: lock release failed", "task_id", taskID, "key", h.Key(), "error", err)
	}
}
