package hooks

import (
	"encoding/json"

	"github.com/lazypower/hebbian/internal/adapter"
)

// HookInput represents the JSON that Claude Code sends on stdin to hook handlers.
// All fields are optional; different events populate different subsets.
type HookInput struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	CWD            string `json:"cwd"`
	HookEventName  string `json:"hook_event_name"`

	// SessionStart
	Source string `json:"source,omitempty"`

	// UserPromptSubmit
	Prompt string `json:"prompt,omitempty"`

	// PreToolUse / PostToolUse
	ToolName     string          `json:"tool_name,omitempty"`
	ToolUseID    string          `json:"tool_use_id,omitempty"`
	ToolInput    json.RawMessage `json:"tool_input,omitempty"`
	ToolResponse json.RawMessage `json:"tool_response,omitempty"`

	// SessionEnd
	Reason string `json:"reason,omitempty"`
}

// skipTools are meta-tools that generate noise, not useful accesses.
var skipTools = map[string]bool{
	"TodoRead":   true,
	"TodoWrite":  true,
	"Thinking":   true,
	"TaskList":   true,
	"TaskCreate": true,
	"TaskGet":    true,
	"TaskUpdate": true,
}

// SkipTool returns true if the named tool should not be recorded.
func SkipTool(name string) bool {
	return name == "" || skipTools[name]
}

// ShouldSkipTool returns true if this tool should not be recorded.
func (h *HookInput) ShouldSkipTool() bool {
	return SkipTool(h.ToolName)
}

// ToolUse returns the tool invocation carried by a tool hook.
func (h *HookInput) ToolUse() adapter.ToolUse {
	return adapter.ToolUse{Name: h.ToolName, Input: h.ToolInput, Response: h.ToolResponse}
}
