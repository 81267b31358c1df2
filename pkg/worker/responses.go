package worker

import "github.com/scenestack/pipeline/pkg/domain"

// ProjectResponse wraps a Project with read-only derived fields not worth
// persisting on the aggregate itself.
type ProjectResponse struct {
	*domain.Project
	PredictedFinal domain.Money `json:"predicted_final"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// AckResponse is a generic acknowledgement for write endpoints that have no
// richer response body.
type AckResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

// EventAckResponse is returned by POST /api/v1/projects/:project_id/events.
type EventAckResponse struct {
	EventID string `json:"event_id"`
}

// LockAcquiredResponse is returned by POST /api/v1/locks/acquire. LockToken
// is an opaque handle the caller must echo back to /locks/release — the
// underlying lockservice.Handle carries an unexported acquisition token, so
// the server keeps the real Handle and hands the caller a registry key
// instead of trying to serialize it.
type LockAcquiredResponse struct {
	LockToken string `json:"lock_token"`
	Key       string `json:"key"`
}
