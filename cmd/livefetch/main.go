// Package main is the entry point for the livefetch CLI.
//
// livefetch can be used as a library or as a standalone binary configured
// by a YAML or TOML file. This CLI provides the standalone binary.
//
// Usage:
//
//	livefetch serve -c livefetch.yaml          # Start the dashboard
//	livefetch validate -c livefetch.yaml       # Validate configuration
//	livefetch fetch -c livefetch.yaml "quote"  # Refresh one source once
//	livefetch version                          # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "livefetch",
	Short: "Live values from HTTP APIs",
	Long: `livefetch keeps the latest value of a set of HTTP APIs and shows
them in a web UI that updates over Server-Sent Events.

Each source carries its current value, a busy flag while a refresh is in
flight, and the last refresh error.

Quick start:
  1. Create a config file (livefetch.yaml)
  2. Run: livefetch serve -c livefetch.yaml
  3. Open http://localhost:8080 in your browser

Example config:
  port: 8080
  refresh_interval: 30s
  sources:
    - name: Quote of the day
      url: https://api.example.com/quote
      selector: json:quote.text`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this livefetch binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "livefetch %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "livefetch.yaml", "path to config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format: json or pretty")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")

	rootCmd.AddCommand(versionCmd)
}
