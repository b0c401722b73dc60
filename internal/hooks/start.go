package hooks

import (
	"context"

	"go.uber.org/zap"
)

func (h *Handler) handleStart(ctx context.Context, input *HookInput) error {
	neurons, err := h.Backend.Superhighways(ctx, h.HighwayLimit)
	if err != nil {
		// An empty context keeps the session starting.
		h.logger().Warn("superhighways unavailable", zap.String("session", input.SessionID), zap.Error(err))
		return WriteOutput(h.Out, EventSessionStart, "")
	}
	return WriteOutput(h.Out, EventSessionStart, formatHighways(neurons, h.now()))
}
