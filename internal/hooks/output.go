package hooks

import (
	"encoding/json"
	"io"
)

// Host event names echoed back in hook output.
const (
	EventSessionStart     = "SessionStart"
	EventUserPromptSubmit = "UserPromptSubmit"
	EventPreToolUse       = "PreToolUse"
	EventPostToolUse      = "PostToolUse"
)

// Output is the JSON structure Claude Code expects on stdout from hooks
// that inject context.
type Output struct {
	HookSpecificOutput struct {
		HookEventName     string `json:"hookEventName"`
		AdditionalContext string `json:"additionalContext"`
	} `json:"hookSpecificOutput"`
}

// WriteOutput writes a context injection for event to w.
func WriteOutput(w io.Writer, event, context string) error {
	out := Output{}
	out.HookSpecificOutput.HookEventName = event
	out.HookSpecificOutput.AdditionalContext = context
	return json.NewEncoder(w).Encode(out)
}
