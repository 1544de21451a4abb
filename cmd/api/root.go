package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "ecofin",
	Short: "Eco-Fin profitability and billing backend",
	Long: `Eco-Fin computes the monthly profitability of workers placed at client
companies and bills those clients through SmartBill.

Running without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to config.toml (default: ./config.toml or ./configs/config.toml)")
}
