// Package cleanup provides data retention and cleanup services.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/scenestack/pipeline/pkg/config"
	"github.com/scenestack/pipeline/pkg/eventbus"
	"github.com/scenestack/pipeline/pkg/store"
)

// Service periodically enforces retention policies:
//   - Soft-deletes projects past ProjectRetentionDays in a terminal status
//   - Purges orphaned Event rows past EventTTL
//
// All operations are idempotent and safe to run from multiple pods.
type Service struct {
	config     *config.RetentionConfig
	store      *store.Store
	eventStore *eventbus.Store
	log        *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a new cleanup service.
func NewService(cfg *config.RetentionConfig, st *store.Store, eventStore *eventbus.Store, log *slog.Logger) *Service {
	return &Service{
		config:     cfg,
		store:      st,
		eventStore: eventStore,
		log:        log,
	}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	s.log.Info("cleanup service started",
		"project_retention_days", s.config.ProjectRetentionDays,
		"event_ttl", s.config.EventTTL,
		"interval", s.config.CleanupInterval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.log.Info("cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.runAll(ctx)

	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runAll(ctx)
		}
	}
}

func (s *Service) runAll(ctx context.Context) {
	s.softDeleteStaleProjects(ctx)
	s.purgeOrphanedEvents(ctx)
}

func (s *Service) softDeleteStaleProjects(ctx context.Context) {
	count, err := s.store.SoftDeleteStaleProjects(ctx, s.config.ProjectRetentionDays)
	if err != nil {
		s.log.Error("retention: soft-delete projects failed", "error", err)
		return
	}
	if count > 0 {
		s.log.Info("retention: soft-deleted stale projects", "count", count)
	}
}

func (s *Service) purgeOrphanedEvents(ctx context.Context) {
	count, err := s.eventStore.PurgeOrphanedEvents(ctx, s.config.EventTTL)
	if err != nil {
		s.log.Error("retention: event purge failed", "error", err)
		return
	}
	if count > 0 {
		s.log.Info("retention: purged orphaned events", "count", count)
	}
}
