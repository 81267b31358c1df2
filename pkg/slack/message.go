package slack

import (
	"fmt"

	goslack "github.com/slack-go/slack"

	"github.com/scenestack/pipeline/pkg/domain"
)

const maxBlockTextLength = 2900

func approvalURL(req *domain.ApprovalRequest, dashboardURL string) string {
	return fmt.Sprintf("%s/projects/%s/approvals/%s", dashboardURL, req.ProjectID, req.ID)
}

// BuildApprovalRequestedMessage creates Block Kit blocks for a newly opened
// approval checkpoint (spec §4.7 HUMAN_GATE_TRIGGERED).
func BuildApprovalRequestedMessage(req *domain.ApprovalRequest, dashboardURL string) []goslack.Block {
	headerText := fmt.Sprintf(":raised_hand: *Approval needed — %s*\n%s", req.Stage, truncateForSlack(req.ContentSummary))

	var blocks []goslack.Block
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
		nil, nil,
	))

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "Review", false, false))
	btn.URL = approvalURL(req, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

// BuildApprovalEscalatedMessage creates Block Kit blocks for an escalation
// reminder on a checkpoint that has sat unresolved too long.
func BuildApprovalEscalatedMessage(req *domain.ApprovalRequest, dashboardURL string) []goslack.Block {
	headerText := fmt.Sprintf(":rotating_light: *Still waiting — %s*\nOpened %s, no decision yet.", req.Stage, req.CreatedAt.Format("Jan 2 15:04 MST"))

	var blocks []goslack.Block
	blocks = append(blocks, goslack.NewSectionBlock(
		goslack.NewTextBlockObject(goslack.MarkdownType, headerText, false, false),
		nil, nil,
	))

	btn := goslack.NewButtonBlockElement("", "", goslack.NewTextBlockObject(goslack.PlainTextType, "Review", false, false))
	btn.URL = approvalURL(req, dashboardURL)
	blocks = append(blocks, goslack.NewActionBlock("", btn))

	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated — view full details in dashboard)_"
}
