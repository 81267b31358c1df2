package worker

import (
	"sync"

	"github.com/google/uuid"

	"github.com/scenestack/pipeline/pkg/lockservice"
)

// handleRegistry keeps server-side lockservice.Handle values alive between
// an HTTP acquire call and the later release call, keyed by an opaque token
// handed back to the caller — the HTTP boundary can't carry a Go value
// across requests the way an in-process caller would hold onto a Handle.
type handleRegistry struct {
	mu      sync.Mutex
	handles map[string]*lockservice.Handle
}

func newHandleRegistry() *handleRegistry {
	return &handleRegistry{handles: make(map[string]*lockservice.Handle)}
}

func (r *handleRegistry) put(h *lockservice.Handle) string {
	token := uuid.NewString()
	r.mu.Lock()
	r.handles[token] = h
	r.mu.Unlock()
	return token
}

func (r *handleRegistry) take(token string) (*lockservice.Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[token]
	if ok {
		delete(r.handles, token)
	}
	return h, ok
}
