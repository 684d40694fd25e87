package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sylas-dev/sylas/internal/runner"
)

func TestBuildPostToolHooks_ReturnsAttachmentUploadHook(t *testing.T) {
	hooks := BuildPostToolHooks(nil)
	assert.Len(t, hooks, 1)
}

func TestAttachmentUploadHook_ScreenshotToolWithPathAppendsGuidance(t *testing.T) {
	ev := runner.Event{
		Kind:     runner.EventToolUse,
		ToolName: "playwright_screenshot",
		FilePath: "/tmp/shot.png",
	}
	got := attachmentUploadHook(ev)
	assert.Contains(t, got, "/tmp/shot.png")
	assert.Contains(t, got, "linear_upload_file")
}

func TestAttachmentUploadHook_NonScreenshotToolProducesNoGuidance(t *testing.T) {
	ev := runner.Event{
		Kind:     runner.EventToolUse,
		ToolName: "Bash",
		FilePath: "/tmp/shot.png",
	}
	assert.Empty(t, attachmentUploadHook(ev))
}

func TestAttachmentUploadHook_ActionGatedToolRequiresMatchingAction(t *testing.T) {
	ev := runner.Event{
		Kind:      runner.EventToolUse,
		ToolName:  "mcp__claude-in-chrome__computer",
		ToolInput: map[string]interface{}{"action": "click"},
		FilePath:  "/tmp/shot.png",
	}
	assert.Empty(t, attachmentUploadHook(ev), "a non-screenshot action of a multi-action tool must produce no guidance")

	ev.ToolInput["action"] = "screenshot"
	assert.NotEmpty(t, attachmentUploadHook(ev))
}

func TestAttachmentUploadHook_NoFilePathProducesNoGuidance(t *testing.T) {
	ev := runner.Event{
		Kind:     runner.EventToolUse,
		ToolName: "playwright_screenshot",
	}
	assert.Empty(t, attachmentUploadHook(ev))
}

func TestAttachmentUploadHook_NonToolEventProducesNoGuidance(t *testing.T) {
	ev := runner.Event{
		Kind:     runner.EventAssistant,
		ToolName: "playwright_screenshot",
		FilePath: "/tmp/shot.png",
	}
	assert.Empty(t, attachmentUploadHook(ev))
}

func TestExtractFilePath_FallsBackToToolInputKeys(t *testing.T) {
	ev := runner.Event{ToolInput: map[string]interface{}{"output_path": "/tmp/out.png"}}
	assert.Equal(t, "/tmp/out.png", extractFilePath(ev))
}
