package slack

import (
	"fmt"
	"regexp"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/scenestack/pipeline/pkg/domain"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// approvalFingerprint returns the text the initial request message was
// posted with, so the escalation notification can thread onto it by
// searching channel history (mirroring the fingerprint lookup used for
// session notifications).
func approvalFingerprint(req *domain.ApprovalRequest) string {
	return fmt.Sprintf("Approval needed — %s", req.Stage)
}

func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

func collectMessageText(msg goslack.Message) string {
	var parts []string
	if msg.Text != "" {
		parts = append(parts, msg.Text)
	}
	for _, att := range msg.Attachments {
		if att.Text != "" {
			parts = append(parts, att.Text)
		}
		if att.Fallback != "" {
			parts = append(parts, att.Fallback)
		}
	}
	return strings.Join(parts, " ")
}
