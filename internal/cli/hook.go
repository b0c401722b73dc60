package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/hebbian/internal/hooks"
)

// hookTokenBudget bounds recall injections when no default budget is
// configured.
const (
	hookTokenBudget  = 2000
	hookHighwayLimit = 10
	hookTimeout      = 10 * time.Second
)

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "Handle Claude Code hook events",
}

var hookShort = map[string]string{
	hooks.Start:  "Handle SessionStart hook",
	hooks.Submit: "Handle UserPromptSubmit hook",
	hooks.Pre:    "Handle PreToolUse hook",
	hooks.Tool:   "Handle PostToolUse hook",
	hooks.End:    "Handle SessionEnd hook",
}

func init() {
	for _, event := range hooks.Events {
		hookCmd.AddCommand(&cobra.Command{
			Use:   event,
			Short: hookShort[event],
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				// Hooks must never fail the host: report and exit 0.
				if err := runHook(event, os.Stdin, cmd.OutOrStdout()); err != nil {
					fmt.Fprintf(os.Stderr, "hebbian hook: %v\n", err)
				}
			},
		})
	}
}

// runHook serves one hook event through a running server when one is
// healthy, otherwise directly against the store file. The store is only
// opened for the fallback.
func runHook(event string, stdin io.Reader, stdout io.Writer) error {
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()

	a, err := loadApp(flagConfig, flagDB)
	if err != nil {
		return err
	}
	defer a.Close()

	h := &hooks.Handler{
		Out:          stdout,
		Logger:       a.logger,
		HighwayLimit: hookHighwayLimit,
		RecallLimit:  a.cfg.Recall.DefaultLimit,
		TokenBudget:  a.cfg.Recall.DefaultTokenBudget,
	}
	if h.TokenBudget == 0 {
		h.TokenBudget = hookTokenBudget
	}

	if client := hooks.NewClient(); client.Healthy(ctx) {
		h.Backend = client
		// only prompt text is scrubbed client side; the server scrubs contexts
		if event == hooks.Submit {
			if err := a.loadScrubber(); err != nil {
				return err
			}
		}
	} else {
		if err := a.openStore(); err != nil {
			return err
		}
		h.Backend = hooks.NewLocal(a.db, a.engOpts...)
	}
	if a.scrubber != nil {
		h.Scrubber = a.scrubber
	}
	return h.Handle(ctx, event, stdin)
}
