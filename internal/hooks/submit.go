package hooks

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lazypower/hebbian/internal/engine"
	"github.com/lazypower/hebbian/internal/store"
)

// signalTriggers are phrases that indicate the user wants something remembered.
var signalTriggers = []string{
	"remember this", "don't forget",
	"always use", "never use", "always do", "never do",
	"architecture decision", "we decided",
	"this pattern", "the trick is",
	"bug was", "root cause", "the fix was",
}

const maxSignalRunes = 200

// signal returns the sentence of prompt carrying a trigger phrase, or "".
func signal(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, trigger := range signalTriggers {
		i := strings.Index(lower, trigger)
		if i < 0 {
			continue
		}
		start := strings.LastIndexAny(prompt[:i], ".!?\n") + 1
		end := len(prompt)
		if j := strings.IndexAny(prompt[i:], ".!?\n"); j >= 0 {
			end = i + j
		}
		s := strings.TrimSpace(prompt[start:end])
		if utf8.RuneCountInString(s) > maxSignalRunes {
			s = string([]rune(s)[:maxSignalRunes])
		}
		return s
	}
	return ""
}

func (h *Handler) handleSubmit(ctx context.Context, input *HookInput) error {
	prompt := strings.TrimSpace(input.Prompt)
	if prompt == "" {
		return nil
	}

	if s := signal(prompt); s != "" {
		if h.Scrubber != nil {
			s = h.Scrubber.Scrub(s)
		}
		ev := engine.AccessEvent{Type: store.SemanticNeuron, Path: s, Context: input.CWD}
		if err := h.Backend.Record(ctx, input.SessionID, ev); err != nil {
			return fmt.Errorf("record signal: %w", err)
		}
	}

	results, err := h.recall(ctx, input.SessionID, prompt)
	if err != nil {
		return fmt.Errorf("recall prompt: %w", err)
	}
	if len(results) == 0 {
		return nil
	}
	return WriteOutput(h.Out, EventUserPromptSubmit, formatRecall("Related from earlier sessions:", results))
}
