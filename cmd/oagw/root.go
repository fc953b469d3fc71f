package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "oagw",
	Short: "OAGW - outbound API gateway",
	Long: `OAGW is an in-process egress proxy that multiplexes outbound calls
from internal callers to external upstream services.

It resolves upstreams by path alias, authorizes callers, injects
upstream credentials, enforces per-route rate limits and forwards the
request while preserving streaming semantics:
  - Unary HTTP with connect-phase endpoint fallback
  - Server-Sent Events pass-through with a typed event view
  - Single-hop WebSocket bridging`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
