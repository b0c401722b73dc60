// Package adapter turns agent tool invocations into memory access events.
//
// Each supported tool has a fixed input shape. Unknown tools become a
// single tool neuron named after the tool. Nothing here touches the store.
package adapter

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lazypower/hebbian/internal/engine"
	"github.com/lazypower/hebbian/internal/store"
)

// Tool names with dedicated handling.
const (
	Read         = "Read"
	Edit         = "Edit"
	MultiEdit    = "MultiEdit"
	Write        = "Write"
	NotebookEdit = "NotebookEdit"
	Grep         = "Grep"
	Glob         = "Glob"
	Bash         = "Bash"
)

// ToolUse is one invocation as reported by the agent host.
type ToolUse struct {
	Name     string          `json:"tool_name"`
	Input    json.RawMessage `json:"tool_input,omitempty"`
	Response json.RawMessage `json:"tool_response,omitempty"`
}

// Result is what a tool use teaches the memory.
type Result struct {
	Events []engine.AccessEvent
	// ErrorText is the failure output when the tool failed.
	ErrorText string
	// Query is searchable text describing what the agent looked for.
	Query string
}

type fileInput struct {
	FilePath     string `json:"file_path"`
	NotebookPath string `json:"notebook_path"`
	Content      string `json:"content"`
}

type searchInput struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
	Glob    string `json:"glob"`
}

type bashInput struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// Convert validates a tool use and maps it onto access events.
func Convert(u ToolUse) (*Result, error) {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		return nil, fmt.Errorf("tool use: empty tool name")
	}

	switch name {
	case Read, Edit, MultiEdit, Write, NotebookEdit:
		return convertFile(name, u)
	case Grep, Glob:
		return convertSearch(name, u)
	case Bash:
		return convertBash(u)
	}
	return &Result{Events: []engine.AccessEvent{{Type: store.ToolNeuron, Path: name}}}, nil
}

// Query extracts the search text of a tool use without converting it; it
// is what a pre-tool recall should look up.
func Query(u ToolUse) string {
	switch u.Name {
	case Grep, Glob:
		var in searchInput
		if json.Unmarshal(u.Input, &in) == nil {
			return strings.TrimSpace(in.Pattern)
		}
	case Bash:
		var in bashInput
		if json.Unmarshal(u.Input, &in) == nil {
			return strings.TrimSpace(in.Description)
		}
	}
	return ""
}

func decode(name string, raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%s: missing tool input", name)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: decode tool input: %w", name, err)
	}
	return nil
}

func convertFile(name string, u ToolUse) (*Result, error) {
	var in fileInput
	if err := decode(name, u.Input, &in); err != nil {
		return nil, err
	}
	path := in.FilePath
	if name == NotebookEdit {
		path = in.NotebookPath
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%s: missing file path", name)
	}

	ev := engine.AccessEvent{Type: store.FileNeuron, Path: filepath.Clean(path)}
	switch name {
	case Write:
		ev.SizeBytes = int64(len(in.Content))
	case Read:
		ev.SizeBytes = readSize(u.Response)
	}
	return &Result{Events: []engine.AccessEvent{ev}}, nil
}

// readSize recovers the size of a file from a Read response, which carries
// the returned content.
func readSize(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var resp struct {
		File struct {
			Content string `json:"content"`
		} `json:"file"`
	}
	if json.Unmarshal(raw, &resp) == nil && resp.File.Content != "" {
		return int64(len(resp.File.Content))
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return int64(len(s))
	}
	return 0
}

func convertSearch(name string, u ToolUse) (*Result, error) {
	var in searchInput
	if err := decode(name, u.Input, &in); err != nil {
		return nil, err
	}
	pattern := strings.TrimSpace(in.Pattern)
	if pattern == "" {
		return nil, fmt.Errorf("%s: missing pattern", name)
	}
	ev := engine.AccessEvent{
		Type:    store.ToolNeuron,
		Path:    strings.ToLower(name) + ": " + pattern,
		Context: strings.TrimSpace(in.Path + " " + in.Glob),
	}
	return &Result{Events: []engine.AccessEvent{ev}, Query: pattern}, nil
}

func convertBash(u ToolUse) (*Result, error) {
	var in bashInput
	if err := decode(Bash, u.Input, &in); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Command) == "" {
		return nil, fmt.Errorf("%s: missing command", Bash)
	}

	res := &Result{Query: strings.TrimSpace(in.Description)}
	seen := make(map[string]bool)
	for _, cmd := range Commands(in.Command) {
		if seen[cmd] {
			continue
		}
		seen[cmd] = true
		res.Events = append(res.Events, engine.AccessEvent{
			Type:    store.ToolNeuron,
			Path:    cmd,
			Context: res.Query,
		})
	}
	res.ErrorText = bashFailure(u.Response)
	return res, nil
}
