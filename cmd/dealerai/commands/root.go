package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	envFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dealerai",
	Short: "Dealership AI visibility scoring and weekly calibration",
	Long: `dealerai unified CLI

Scores dealership AI visibility from raw signals and runs the weekly
calibration loop (ingest → calibrate → reinforce → predict → optimize spend → report).

Usage:
  go run ./cmd/dealerai [command]

Examples:
  go run ./cmd/dealerai api
  go run ./cmd/dealerai score --file payload.json
  go run ./cmd/dealerai calibrate --tenant dealer-a
  go run ./cmd/dealerai forecast --tenant dealer-a --weeks 4
  go run ./cmd/dealerai scheduler start`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "extra .env file loaded before the defaults")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
