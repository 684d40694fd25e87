package relay

import (
	"fmt"

	"github.com/sylas-dev/sylas/internal/runner"
	"github.com/sylas-dev/sylas/internal/session"
)

// screenshotTools fire on any action.
var screenshotTools = map[string]bool{
	"playwright_screenshot":                 true,
	"mcp__chrome-devtools__take_screenshot": true,
}

// screenshotActionTools fire only when ToolInput["action"] matches.
var screenshotActionTools = map[string]string{
	"mcp__claude-in-chrome__computer":    "screenshot",
	"mcp__claude-in-chrome__gif_creator": "export",
}

// uploadGuidance is the instruction text appended to a runner's context
// after a screenshot-producing tool call, telling it to make the file
// viewable in the tracker (spec.md §4.7).
const uploadGuidance = "The file at %q was just produced. Upload it via the linear_upload_file tool so it is viewable in the tracker before continuing."

// BuildPostToolHooks returns the post-tool-use hooks every runner this
// session spawns should carry. Its signature matches
// session.Config.PostToolHooks, letting cmd/sylas wire it in directly
// without internal/session importing this package (avoiding an import
// cycle, since this package already depends on internal/session for the
// Session type).
func BuildPostToolHooks(s *session.Session) []runner.PostToolHook {
	return []runner.PostToolHook{attachmentUploadHook}
}

// attachmentUploadHook implements spec.md §4.7's hook: it fires only for
// the closed set of screenshot/recording tools, and only when the tool
// use produced a file path, per the boundary behaviour "Tool hook invoked
// on a non-screenshot action of a multi-action tool → no upload-guidance
// text appended."
func attachmentUploadHook(ev runner.Event) string {
	if ev.Kind != runner.EventToolUse {
		return ""
	}
	if !matchesScreenshotTool(ev.ToolName, ev.ToolInput) {
		return ""
	}
	path := extractFilePath(ev)
	if path == "" {
		return ""
	}
	return fmt.Sprintf(uploadGuidance, path)
}

func matchesScreenshotTool(toolName string, input map[string]interface{}) bool {
	if screenshotTools[toolName] {
		return true
	}
	if wantAction, ok := screenshotActionTools[toolName]; ok {
		action, _ := input["action"].(string)
		return action == wantAction
	}
	return false
}

func extractFilePath(ev runner.Event) string {
	if ev.FilePath != "" {
		return ev.FilePath
	}
	for _, key := range []string{"file_path", "path", "output_path", "filePath"} {
		if v, ok := ev.ToolInput[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
