package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/adapter"
	"github.com/lazypower/hebbian/internal/engine"
	"github.com/lazypower/hebbian/internal/hooks"
	"github.com/lazypower/hebbian/internal/transcript"
)

var importCmd = &cobra.Command{
	Use:   "import <transcript.jsonl>...",
	Short: "Replay tool calls from Claude Code transcripts into memory",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			var total importSummary
			for _, path := range args {
				sum, err := importTranscript(ctx, a, path, flagSession)
				if err != nil {
					return err
				}
				total.add(sum)
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), total)
			}
			total.print(cmd.OutOrStdout())
			return nil
		})
	},
}

type importSummary struct {
	Transcripts int `json:"transcripts"`
	Sessions    int `json:"sessions"`
	Calls       int `json:"calls"`
	Events      int `json:"events"`
	Errors      int `json:"errors"`
	Skipped     int `json:"skipped"`
}

func (s *importSummary) add(o importSummary) {
	s.Transcripts += o.Transcripts
	s.Sessions += o.Sessions
	s.Calls += o.Calls
	s.Events += o.Events
	s.Errors += o.Errors
	s.Skipped += o.Skipped
}

func (s importSummary) print(w io.Writer) {
	fmt.Fprintf(w, "imported %s calls (%s accesses, %s errors) from %d sessions in %d transcripts; skipped %s\n",
		humanize.Comma(int64(s.Calls)), humanize.Comma(int64(s.Events)), humanize.Comma(int64(s.Errors)),
		s.Sessions, s.Transcripts, humanize.Comma(int64(s.Skipped)))
}

// importTranscript records every tool call of one transcript. Calls keep
// the transcript's session ids unless session overrides them; a transcript
// without ids is one session named after the file.
func importTranscript(ctx context.Context, a *app, path, session string) (importSummary, error) {
	sum := importSummary{Transcripts: 1}
	calls, err := transcript.ParseFile(path)
	if err != nil {
		return sum, err
	}

	fallback := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	engines := make(map[string]*engine.Engine)
	engineFor := func(id string) *engine.Engine {
		switch {
		case session != "":
			id = session
		case id == "":
			id = fallback
		}
		eng, ok := engines[id]
		if !ok {
			eng = a.engine(id)
			engines[id] = eng
		}
		return eng
	}

	for _, c := range calls {
		if hooks.SkipTool(c.Use.Name) {
			sum.Skipped++
			continue
		}
		res, err := adapter.Convert(c.Use)
		if err != nil {
			a.logger.Debug("skip tool call", zap.String("tool", c.Use.Name), zap.Error(err))
			sum.Skipped++
			continue
		}
		eng := engineFor(c.SessionID)
		for _, ev := range res.Events {
			if _, err := eng.RecordEvent(ctx, ev); err != nil {
				if engine.IsValidation(err) {
					sum.Skipped++
					continue
				}
				return sum, fmt.Errorf("import %s: %w", path, err)
			}
			sum.Events++
		}
		if res.ErrorText != "" {
			if _, err := eng.RecordError(ctx, res.ErrorText, res.Query); err != nil {
				return sum, fmt.Errorf("import %s: %w", path, err)
			}
			sum.Errors++
		}
		sum.Calls++
	}
	sum.Sessions = len(engines)
	return sum, nil
}
