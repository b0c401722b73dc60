package hooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/engine"
)

// Hook event arguments accepted by Handle.
const (
	Start  = "start"
	Submit = "submit"
	Pre    = "pre"
	Tool   = "tool"
	End    = "end"
)

// Events lists the accepted hook event arguments.
var Events = []string{Start, Submit, Pre, Tool, End}

// Handler dispatches hook events to a Backend and writes context
// injections to Out.
type Handler struct {
	Backend Backend
	Out     io.Writer
	Logger  *zap.Logger
	// Scrubber redacts prompt text before it becomes a semantic neuron.
	Scrubber engine.Scrubber

	// HighwayLimit bounds the neurons injected at session start.
	HighwayLimit int
	// RecallLimit and TokenBudget bound recall injections.
	RecallLimit int
	TokenBudget int

	Clock func() time.Time
}

func (h *Handler) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

func (h *Handler) now() time.Time {
	if h.Clock == nil {
		return time.Now()
	}
	return h.Clock()
}

// Handle reads HookInput from stdin and dispatches to the handler for
// event. Empty stdin is tolerated for start, which then emits an empty
// context.
func (h *Handler) Handle(ctx context.Context, event string, stdin io.Reader) error {
	var input HookInput
	if err := json.NewDecoder(stdin).Decode(&input); err != nil {
		if event == Start {
			return WriteOutput(h.Out, EventSessionStart, "")
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("decode stdin: %w", err)
	}

	switch event {
	case Start:
		return h.handleStart(ctx, &input)
	case Submit:
		return h.handleSubmit(ctx, &input)
	case Pre:
		return h.handlePre(ctx, &input)
	case Tool:
		return h.handleTool(ctx, &input)
	case End:
		return h.handleEnd(ctx, &input)
	default:
		return fmt.Errorf("unknown hook event: %s", event)
	}
}

func (h *Handler) recall(ctx context.Context, session, query string) ([]engine.RecallResult, error) {
	return h.Backend.Recall(ctx, session, engine.RecallParams{
		Query:       query,
		Limit:       h.RecallLimit,
		TokenBudget: h.TokenBudget,
	})
}
