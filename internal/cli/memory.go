package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/hebbian/internal/engine"
	"github.com/lazypower/hebbian/internal/store"
)

// --- record command ---

var (
	recordContext string
	recordSize    int64
)

var recordCmd = &cobra.Command{
	Use:   "record <type> <path>",
	Short: "Record an access to a file, tool, error or concept",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		typ, err := engine.ParseNeuronType(args[0])
		if err != nil {
			return err
		}
		return withApp(func(ctx context.Context, a *app) error {
			ev := engine.AccessEvent{Type: typ, Path: args[1], Context: recordContext, SizeBytes: recordSize}
			n, err := a.engine(flagSession).RecordEvent(ctx, ev)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), n)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s accesses, myelination %.3f\n",
				n.Type, n.Path, humanize.Comma(int64(n.AccessCount)), n.Myelination)
			return nil
		})
	},
}

// --- recall command ---

var (
	recallType   string
	recallLimit  int
	recallBudget int
	recallEmbed  bool
)

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Recall what the memory associates with a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			eng := a.engine(flagSession)
			p := engine.RecallParams{
				Query:       strings.Join(args, " "),
				Type:        store.NeuronType(recallType),
				Limit:       recallLimit,
				TokenBudget: recallBudget,
			}
			if recallEmbed {
				emb, err := a.embedder(ctx, eng)
				if err != nil {
					return err
				}
				if p.Embedding, err = engine.EmbedQuery(ctx, emb, p.Query); err != nil {
					return err
				}
			}
			results, err := eng.Recall(ctx, p)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), results)
			}
			printResults(cmd.OutOrStdout(), results)
			return nil
		})
	},
}

func printResults(w io.Writer, results []engine.RecallResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}
	saved := 0
	for i, r := range results {
		fmt.Fprintf(w, "%d. [%.3f] %s %s\n", i+1, r.Confidence, r.Neuron.Type, r.Neuron.Path)
		if n := len(r.Neuron.Contexts); n > 0 {
			fmt.Fprintf(w, "   %s\n", r.Neuron.Contexts[n-1])
		}
		saved += r.EstimatedTokensSaved
	}
	fmt.Fprintf(w, "\n~%s tokens saved\n", humanize.Comma(int64(saved)))
}

// --- error command ---

var errorQuery string

var errorCmd = &cobra.Command{
	Use:   "error <error text>",
	Short: "Record an error and show files that fixed it before",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			out, err := a.engine(flagSession).RecordError(ctx, strings.Join(args, " "), errorQuery)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "error: %s (seen %s times)\n", out.Signature, humanize.Comma(int64(out.ErrorNeuron.AccessCount)))
			if len(out.PotentialFixes) == 0 {
				fmt.Fprintln(w, "No known fixes.")
				return nil
			}
			printResults(w, out.PotentialFixes)
			return nil
		})
	},
}

// --- resolve command ---

var resolveNote string

var resolveCmd = &cobra.Command{
	Use:   "resolve <error text> <fixed file>...",
	Short: "Link an error to the files that fixed it",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			if err := a.engine(flagSession).ResolveError(ctx, args[0], args[1:], resolveNote); err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"status": "resolved", "fixed_files": args[1:]})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "resolved with %d file(s)\n", len(args)-1)
			return nil
		})
	},
}

// --- embed command ---

var embedLimit int

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Embed neurons that have no vector yet",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			eng := a.engine("")
			emb, err := a.embedder(ctx, eng)
			if err != nil {
				return err
			}
			if emb == nil {
				return fmt.Errorf("no embedding provider configured (set embedding.provider)")
			}
			n, err := eng.EmbedMissing(ctx, emb, embedLimit)
			if err != nil {
				return err
			}
			cov, err := eng.EmbeddingCoverage(ctx)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), map[string]any{"embedded": n, "model": emb.Model(), "coverage": cov})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "embedded %s neurons with %s (coverage %.1f%%)\n",
				humanize.Comma(int64(n)), emb.Model(), cov.Pct)
			return nil
		})
	},
}

func init() {
	recordCmd.Flags().StringVarP(&recordContext, "context", "c", "", "query or snippet that led to the access")
	recordCmd.Flags().Int64Var(&recordSize, "size", 0, "file size in bytes, for token estimates")

	recallCmd.Flags().StringVarP(&recallType, "type", "t", "", "only return neurons of this type")
	recallCmd.Flags().IntVarP(&recallLimit, "limit", "n", 0, "maximum number of results")
	recallCmd.Flags().IntVar(&recallBudget, "budget", 0, "token budget for the results")
	recallCmd.Flags().BoolVar(&recallEmbed, "embed", false, "embed the query for semantic seeding")

	errorCmd.Flags().StringVarP(&errorQuery, "query", "q", "", "what was being attempted")
	resolveCmd.Flags().StringVar(&resolveNote, "note", "", "how the error was fixed")
	embedCmd.Flags().IntVarP(&embedLimit, "limit", "n", 1000, "maximum neurons to embed")
}
