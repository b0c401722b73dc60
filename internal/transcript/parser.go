// Package transcript extracts tool invocations from Claude Code JSONL
// transcripts so past sessions can be replayed into memory.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/lazypower/hebbian/internal/adapter"
)

// Entry represents a single line in a Claude Code JSONL transcript.
type Entry struct {
	Type      string          `json:"type"` // "user", "assistant", "system"
	SessionID string          `json:"sessionId"`
	Message   json.RawMessage `json:"message"`
}

// Message is the parsed message content.
type Message struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"` // string or []ContentItem
}

// ContentItem represents a single content block (text, tool_use, tool_result).
type ContentItem struct {
	Type      string          `json:"type"` // "text", "tool_use", "tool_result"
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// Call is one tool invocation, paired with its result when the transcript
// carries one.
type Call struct {
	SessionID string
	Use       adapter.ToolUse
}

var systemReminderRe = regexp.MustCompile(`<system-reminder>[\s\S]*?</system-reminder>`)

const maxLine = 16 * 1024 * 1024

// ParseFile reads a JSONL transcript file and returns its tool calls in
// order.
func ParseFile(path string) ([]Call, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads JSONL transcript content. Malformed lines are skipped.
func Parse(r io.Reader) ([]Call, error) {
	var calls []Call
	pending := make(map[string]int) // tool_use id -> index in calls

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024*1024), maxLine)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		entry, items, err := parseLine(line)
		if err != nil {
			continue
		}
		for _, item := range items {
			switch item.Type {
			case "tool_use":
				if item.Name == "" {
					continue
				}
				if item.ID != "" {
					pending[item.ID] = len(calls)
				}
				calls = append(calls, Call{
					SessionID: entry.SessionID,
					Use:       adapter.ToolUse{Name: item.Name, Input: item.Input},
				})
			case "tool_result":
				i, ok := pending[item.ToolUseID]
				if !ok {
					continue
				}
				delete(pending, item.ToolUseID)
				calls[i].Use.Response = resultResponse(item)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return calls, nil
}

func parseLine(line []byte) (*Entry, []ContentItem, error) {
	var entry Entry
	if err := json.Unmarshal(line, &entry); err != nil {
		return nil, nil, err
	}
	if entry.Type == "" || entry.Message == nil {
		return &entry, nil, nil
	}

	var msg Message
	if err := json.Unmarshal(entry.Message, &msg); err != nil {
		return nil, nil, err
	}
	var items []ContentItem
	if err := json.Unmarshal(msg.Content, &items); err != nil {
		// plain string content carries no tool blocks
		return &entry, nil, nil
	}
	return &entry, items, nil
}

// resultResponse shapes a tool_result block like a hook tool_response:
// errors become an object flagged is_error, output a plain string.
func resultResponse(item ContentItem) json.RawMessage {
	text := strings.TrimSpace(systemReminderRe.ReplaceAllString(extractText(item.Content), ""))
	var (
		data []byte
		err  error
	)
	if item.IsError {
		data, err = json.Marshal(map[string]any{"stderr": text, "is_error": true})
	} else {
		data, err = json.Marshal(text)
	}
	if err != nil {
		return nil
	}
	return data
}

// extractText handles the polymorphic content field.
// It may be a plain string or an array of ContentItem.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var items []ContentItem
	if err := json.Unmarshal(raw, &items); err == nil {
		var texts []string
		for _, item := range items {
			if item.Type == "text" && item.Text != "" {
				texts = append(texts, item.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}

// Sessions returns the distinct session ids of calls in first-seen order.
func Sessions(calls []Call) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range calls {
		if c.SessionID != "" && !seen[c.SessionID] {
			seen[c.SessionID] = true
			out = append(out, c.SessionID)
		}
	}
	return out
}
