package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "quant",
	Short: "EOD conditional signals, daily backtest and rolling metrics",
	Long: `eodsignals unified CLI

Generates next-session conditional signals after the close, simulates the
stored signals against daily candles and keeps rolling performance metrics.

Usage:
  go run ./cmd/quant [command]

Examples:
  go run ./cmd/quant signals generate
  go run ./cmd/quant backtest run --date 2024-01-02
  go run ./cmd/quant calendar next 2024-12-24
  go run ./cmd/quant scheduler start
  go run ./cmd/quant api`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&env, "env", "development", "environment (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
