package slack

import (
	"context"
	"log/slog"
	"time"

	"github.com/scenestack/pipeline/pkg/domain"
)

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token        string
	Channel      string
	DashboardURL string
}

// Service delivers Approval Gate notifications to Slack. It implements
// approval.Notifier. Nil-safe: all methods are no-ops when the service
// itself is nil, so a possibly-nil *Service can be passed wherever a
// Notifier is expected — notification delivery is fire-and-forget and
// never blocks the gate (spec §9).
type Service struct {
	client       *Client
	dashboardURL string
	logger       *slog.Logger
}

// NewService creates a new Slack notification service.
// Returns nil if Token or Channel is empty — the approval gate then runs
// with notifications disabled rather than failing to start.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client:       NewClient(cfg.Token, cfg.Channel),
		dashboardURL: cfg.DashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client, dashboardURL string) *Service {
	return &Service{
		client:       client,
		dashboardURL: dashboardURL,
		logger:       slog.Default().With("component", "slack-service"),
	}
}

// NotifyApprovalRequested posts the initial notification for a newly
// opened approval checkpoint (spec §4.7 HUMAN_GATE_TRIGGERED).
// Fail-open: errors are logged, never returned — a dropped Slack message
// must never fail the gate or block the project.
func (s *Service) NotifyApprovalRequested(ctx context.Context, req *domain.ApprovalRequest) {
	if s == nil {
		return
	}
	blocks := BuildApprovalRequestedMessage(req, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, "", 5*time.Second); err != nil {
		s.logger.Error("failed to send approval-requested notification",
			"project_id", req.ProjectID, "approval_id", req.ID, "error", err)
	}
}

// NotifyApprovalEscalated posts a follow-up notification when a checkpoint
// has sat unresolved past its escalation threshold (spec §4.7 escalation).
// It threads onto the original request message when that message can still
// be found by its fingerprint; otherwise it posts standalone.
func (s *Service) NotifyApprovalEscalated(ctx context.Context, req *domain.ApprovalRequest) {
	if s == nil {
		return
	}
	threadTS, err := s.client.FindMessageByFingerprint(ctx, approvalFingerprint(req))
	if err != nil {
		s.logger.Warn("failed to find Slack thread for approval",
			"project_id", req.ProjectID, "approval_id", req.ID, "error", err)
	}
	blocks := BuildApprovalEscalatedMessage(req, s.dashboardURL)
	if err := s.client.PostMessage(ctx, blocks, threadTS, 10*time.Second); err != nil {
		s.logger.Error("failed to send approval-escalated notification",
			"project_id", req.ProjectID, "approval_id", req.ID, "error", err)
	}
}
