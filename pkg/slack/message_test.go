package slack

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scenestack/pipeline/pkg/domain"
)

func TestBuildApprovalRequestedMessage(t *testing.T) {
	req := &domain.ApprovalRequest{
		ID:             "appr-1",
		ProjectID:      "proj-1",
		Stage:          "SCENE_WRITTEN",
		ContentSummary: "3 scenes, 12 shots",
	}
	blocks := BuildApprovalRequestedMessage(req, "https://dash.example.com")

	require.Len(t, blocks, 2)

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":raised_hand:")
	assert.Contains(t, header.Text.Text, "SCENE_WRITTEN")
	assert.Contains(t, header.Text.Text, "3 scenes, 12 shots")

	action := blocks[1].(*goslack.ActionBlock)
	require.Len(t, action.Elements.ElementSet, 1)
	btn, ok := action.Elements.ElementSet[0].(*goslack.ButtonBlockElement)
	require.True(t, ok)
	assert.Equal(t, "Review", btn.Text.Text)
	assert.Contains(t, btn.URL, "https://dash.example.com/projects/proj-1/approvals/appr-1")
}

func TestBuildApprovalEscalatedMessage(t *testing.T) {
	req := &domain.ApprovalRequest{
		ID:        "appr-2",
		ProjectID: "proj-1",
		Stage:     "FINAL_VIDEO_READY",
		CreatedAt: time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC),
	}
	blocks := BuildApprovalEscalatedMessage(req, "https://dash.example.com")

	require.Len(t, blocks, 2)
	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":rotating_light:")
	assert.Contains(t, header.Text.Text, "FINAL_VIDEO_READY")
}

func TestTruncateForSlack(t *testing.T) {
	t.Run("short text unchanged", func(t *testing.T) {
		assert.Equal(t, "hello", truncateForSlack("hello"))
	})

	t.Run("exact limit unchanged", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength)
		assert.Equal(t, text, truncateForSlack(text))
	})

	t.Run("over limit truncated", func(t *testing.T) {
		text := strings.Repeat("a", maxBlockTextLength+100)
		result := truncateForSlack(text)
		assert.True(t, len(result) < len(text))
		assert.Contains(t, result, "truncated")
	})

	t.Run("multi-byte runes not split", func(t *testing.T) {
		text := strings.Repeat("🔥", maxBlockTextLength+10)
		result := truncateForSlack(text)
		assert.Contains(t, result, "truncated")
		assert.True(t, utf8.ValidString(result), "result should be valid UTF-8")
		prefix := strings.Split(result, "\n\n_...")[0]
		assert.Equal(t, maxBlockTextLength, utf8.RuneCountInString(prefix))
	})
}
