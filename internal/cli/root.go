package cli

import (
	"github.com/spf13/cobra"
)

var (
	flagDB      string
	flagConfig  string
	flagSession string
	flagJSON    bool
)

var rootCmd = &cobra.Command{
	Use:   "hebbian",
	Short: "Associative memory for AI coding agents",
	Long: "Hebbian remembers which files, tools and errors an agent uses together and " +
		"recalls them by spreading activation. Single Go binary, one SQLite file.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagDB, "db", "", "database path (default ~/.hebbian/hebbian.db)")
	pf.StringVar(&flagConfig, "config", "", "config file (default ~/.hebbian/config.toml)")
	pf.StringVar(&flagSession, "session", "", "session id (default: a new id per invocation)")
	pf.BoolVar(&flagJSON, "json", false, "print machine-readable JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(hookCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(errorCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(decayCmd)
	rootCmd.AddCommand(consolidateCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(tokensCmd)
	rootCmd.AddCommand(highwaysCmd)
	rootCmd.AddCommand(coverageCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(importCmd)
}
