package hooks

import (
	"context"
	"fmt"

	"github.com/lazypower/hebbian/internal/adapter"
)

// handlePre answers a search before it runs with what the memory already
// associates with the pattern.
func (h *Handler) handlePre(ctx context.Context, input *HookInput) error {
	if input.ToolName != adapter.Grep && input.ToolName != adapter.Glob {
		return nil
	}
	query := adapter.Query(input.ToolUse())
	if query == "" {
		return nil
	}
	results, err := h.recall(ctx, input.SessionID, query)
	if err != nil {
		return fmt.Errorf("recall %s: %w", input.ToolName, err)
	}
	if len(results) == 0 {
		return nil
	}
	return WriteOutput(h.Out, EventPreToolUse, formatRecall("Previously associated with "+query+":", results))
}
