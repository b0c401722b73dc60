package hooks

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

func (h *Handler) handleEnd(ctx context.Context, input *HookInput) error {
	res, err := h.Backend.Decay(ctx)
	if err != nil {
		return fmt.Errorf("decay: %w", err)
	}
	h.logger().Debug("session end decay",
		zap.String("session", input.SessionID),
		zap.String("reason", input.Reason),
		zap.Int("pruned_synapses", res.PrunedSynapses),
		zap.Int("pruned_neurons", res.PrunedNeurons))
	return nil
}
