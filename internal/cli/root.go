// Package cli implements the scout command line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "scout",
	Short: "Scout is a research assistant agent",
	Long: `Scout runs an LLM-driven research loop with web search and page fetch
tools, bounded in-memory sessions, and an HTTP gateway with a live
progress stream.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.scout/scout.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override configured log level")
}
