// Package lockservice provides the Redis-backed distributed lock used to
// serialize concurrent writers to the same shot or DNA-bank entry (spec §4.3
// Locks). The Project aggregate's locks_mirror column is an advisory,
// observability-only mirror of this service's state — this package is the
// actual source of mutual exclusion.
package lockservice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/scenestack/pipeline/pkg/corerr"
)

// releaseScript deletes the key only if the stored holder token still
// matches — prevents a slow holder from releasing a lock a later holder has
// since acquired after the first holder's TTL expired.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// extendScript renews TTL only if the caller still holds the lock.
const extendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end`

// Service acquires and releases named locks with a TTL, backed by Redis
// SET NX PX for acquisition and a Lua check-and-delete for release.
type Service struct {
	client            redis.UniversalClient
	defaultTTL        time.Duration
	blockingPollEvery time.Duration
}

// New builds a Service. defaultTTL and blockingPollEvery come from
// config.LockConfig.
func New(client redis.UniversalClient, defaultTTL, blockingPollEvery time.Duration) *Service {
	return &Service{client: client, defaultTTL: defaultTTL, blockingPollEvery: blockingPollEvery}
}

// Handle represents a held lock. Release is idempotent.
type Handle struct {
	key   string
	token string
	svc   *Service
}

// Key returns the locked key, e.g. "project:{id}:shot:{shot_id}".
func (h *Handle) Key() string { return h.key }

// Release gives up the lock if this handle still holds it.
func (h *Handle) Release(ctx context.Context) error {
	res, err := h.svc.client.Eval(ctx, releaseScript, []string{h.key}, h.token).Int64()
	if err != nil {
		return fmt.Errorf("lockservice: release %s: %w", h.key, err)
	}
	if res == 0 {
		return corerr.ErrLockHeld
	}
	return nil
}

// Extend renews the TTL on a held lock, used by long-running holders to
// avoid losing the lock mid-operation.
func (h *Handle) Extend(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = h.svc.defaultTTL
	}
	res, err := h.svc.client.Eval(ctx, extendScript, []string{h.key}, h.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("lockservice: extend %s: %w", h.key, err)
	}
	if res == 0 {
		return corerr.ErrLockHeld
	}
	return nil
}

// TryAcquire attempts to acquire key once, returning corerr.ErrLockHeld
// immediately if another holder has it.
func (s *Service) TryAcquire(ctx context.Context, key string, ttl time.Duration) (*Handle, error) {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	token := uuid.NewString()

	ok, err := s.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("lockservice: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, corerr.ErrLockHeld
	}
	return &Handle{key: key, token: token, svc: s}, nil
}

// Acquire blocks, polling every blockingPollEvery, until key is acquired or
// ctx is cancelled (spec §4.3: "blocking acquire with poll interval").
func (s *Service) Acquire(ctx context.Context, key string, ttl time.Duration) (*Handle, error) {
	poll := s.blockingPollEvery
	if poll <= 0 {
		poll = 100 * time.Millisecond
	}

	for {
		h, err := s.TryAcquire(ctx, key, ttl)
		if err == nil {
			return h, nil
		}
		if !errors.Is(err, corerr.ErrLockHeld) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(poll):
		}
	}
}

// WithLock acquires key, runs fn, and always releases — the scoped-helper
// pattern that guarantees release on every exit path including panics
// recovered higher up the stack.
func (s *Service) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	h, err := s.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Release(releaseCtx)
	}()

	return fn(ctx)
}

// ShotLockKey builds the lock key for a project shot (spec §4.3 example
// "project:{id}:shot:{shot_id}").
func ShotLockKey(projectID, shotID string) string {
	return fmt.Sprintf("project:%s:shot:%s", projectID, shotID)
}

// GlobalSpecLockKey builds the lock key guarding whole-project GlobalSpec/
// style mutations.
func GlobalSpecLockKey(projectID string) string {
	return fmt.Sprintf("project:%s:global_spec", projectID)
}

// DNABankLockKey builds the lock key guarding a single DNA bank entry.
func DNABankLockKey(projectID, entityID string) string {
	return fmt.Sprintf("project:%s:dna:%s", projectID, entityID)
}
