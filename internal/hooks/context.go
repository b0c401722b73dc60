package hooks

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lazypower/hebbian/internal/engine"
	"github.com/lazypower/hebbian/internal/store"
)

const (
	contextOpen  = "<hebbian-memory>"
	contextClose = "</hebbian-memory>"
)

// formatHighways renders the most reinforced neurons for session start.
func formatHighways(neurons []store.Neuron, now time.Time) string {
	if len(neurons) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(contextOpen + "\n")
	b.WriteString("Frequently used in this workspace:\n")
	for _, n := range neurons {
		fmt.Fprintf(&b, "- [%s] %s (%s uses, last %s)\n",
			n.Type, n.Path, humanize.Comma(int64(n.AccessCount)),
			humanize.RelTime(time.UnixMilli(n.LastAccessedAt), now, "ago", "from now"))
	}
	b.WriteString(contextClose)
	return b.String()
}

// formatRecall renders recall results under a heading.
func formatRecall(heading string, results []engine.RecallResult) string {
	if len(results) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(contextOpen + "\n")
	b.WriteString(heading + "\n")
	saved := 0
	for _, r := range results {
		fmt.Fprintf(&b, "- [%s] %s (confidence %.2f)", r.Neuron.Type, r.Neuron.Path, r.Confidence)
		if len(r.Neuron.Contexts) > 0 {
			fmt.Fprintf(&b, ": %s", r.Neuron.Contexts[len(r.Neuron.Contexts)-1])
		}
		b.WriteString("\n")
		saved += r.EstimatedTokensSaved
	}
	if saved > 0 {
		fmt.Fprintf(&b, "(about %s tokens of exploration saved)\n", humanize.Comma(int64(saved)))
	}
	b.WriteString(contextClose)
	return b.String()
}
