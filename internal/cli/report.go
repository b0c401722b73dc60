package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/lazypower/hebbian/internal/store"
)

var decayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Decay synapses and myelination, pruning what has faded",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			res, err := a.engine("").Decay(ctx)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "decayed %d synapses and %d neurons; pruned %d synapses, %d neurons; expired %d open errors\n",
				res.DecayedSynapses, res.DecayedNeurons, res.PrunedSynapses, res.PrunedNeurons, res.ExpiredErrors)
			return nil
		})
	},
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "Create shortcuts, merge duplicate concepts and drop stale ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			sum, err := a.engine("").Consolidate(ctx)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), sum)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "shortcuts: %d created, %d reinforced; merged %d; demoted %d; %d superhighways\n",
				sum.ShortcutsCreated, sum.ShortcutsReinforced, sum.Merged, sum.Demoted, sum.Superhighways)
			return nil
		})
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show graph statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			st, err := a.engine("").Stats(ctx)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "neurons:         %s\n", humanize.Comma(int64(st.NeuronCount)))
			for _, t := range store.NeuronTypes {
				fmt.Fprintf(w, "  %-9s      %s\n", t, humanize.Comma(int64(st.ByType[t])))
			}
			fmt.Fprintf(w, "synapses:        %s (avg weight %.3f)\n", humanize.Comma(int64(st.SynapseCount)), st.AvgWeight)
			fmt.Fprintf(w, "superhighways:   %s\n", humanize.Comma(int64(st.Superhighways)))
			fmt.Fprintf(w, "avg myelination: %.3f\n", st.AvgMyelination)
			return nil
		})
	},
}

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Show estimated tokens saved by recall",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			rep, err := a.engine("").TokenReport(ctx)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), rep)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s recalls saved ~%s of ~%s tokens (%.1f%%)\n",
				humanize.Comma(rep.Recalls), humanize.Comma(rep.TokensSaved),
				humanize.Comma(rep.BaselineTokens), rep.SavingsPct)
			return nil
		})
	},
}

var (
	highwaysMin   float64
	highwaysLimit int
)

var highwaysCmd = &cobra.Command{
	Use:   "highways",
	Short: "List the most reinforced neurons",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			eng := a.engine("")
			threshold := eng.Params().SuperhighwayThreshold
			if cmd.Flags().Changed("min") {
				threshold = highwaysMin
			}
			limit := highwaysLimit
			if limit <= 0 {
				limit = -1
			}
			neurons, err := eng.TopNeurons(ctx, threshold, limit)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), neurons)
			}
			w := cmd.OutOrStdout()
			if len(neurons) == 0 {
				fmt.Fprintln(w, "No superhighways yet.")
				return nil
			}
			for _, n := range neurons {
				fmt.Fprintf(w, "%.3f  %-8s %s  (%s uses, %s)\n", n.Myelination, n.Type, n.Path,
					humanize.Comma(int64(n.AccessCount)), humanize.Time(time.UnixMilli(n.LastAccessedAt)))
			}
			return nil
		})
	},
}

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Show how many neurons carry an embedding",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			cov, err := a.engine("").EmbeddingCoverage(ctx)
			if err != nil {
				return err
			}
			if flagJSON {
				return printJSON(cmd.OutOrStdout(), cov)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s of %s neurons embedded (%.1f%%)\n",
				humanize.Comma(int64(cov.Embedded)), humanize.Comma(int64(cov.Total)), cov.Pct)
			return nil
		})
	},
}

func init() {
	highwaysCmd.Flags().Float64Var(&highwaysMin, "min", 0, "minimum myelination (default: superhighway threshold)")
	highwaysCmd.Flags().IntVarP(&highwaysLimit, "limit", "n", 20, "maximum neurons to list (0 = all)")
}
