package hooks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/adapter"
)

func (h *Handler) handleTool(ctx context.Context, input *HookInput) error {
	if input.ShouldSkipTool() {
		return nil
	}

	res, err := adapter.Convert(input.ToolUse())
	if err != nil {
		return err
	}
	for _, ev := range res.Events {
		if err := h.Backend.Record(ctx, input.SessionID, ev); err != nil {
			return fmt.Errorf("record %s: %w", ev.Path, err)
		}
	}
	if res.ErrorText == "" {
		return nil
	}

	out, err := h.Backend.RecordError(ctx, input.SessionID, res.ErrorText, res.Query)
	if err != nil {
		return fmt.Errorf("record error: %w", err)
	}
	h.logger().Debug("tool failure recorded",
		zap.String("session", input.SessionID),
		zap.String("signature", out.Signature),
		zap.Int("potential_fixes", len(out.PotentialFixes)))
	if len(out.PotentialFixes) == 0 {
		return nil
	}
	return WriteOutput(h.Out, EventPostToolUse, formatRecall("This error was fixed before by touching:", out.PotentialFixes))
}
