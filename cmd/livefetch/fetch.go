package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/jpalmerr/livefetch"
	"github.com/jpalmerr/livefetch/config"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <source>",
	Short: "Refresh one source once and print its value",
	Long: `Refresh a single configured source once and print the selected value.

The source is looked up by name among direct sources and expanded grids.
No server is started. The exit code is 1 if the refresh fails.

Example:
  livefetch fetch -c livefetch.yaml "Quote of the day"
  livefetch fetch -c livefetch.yaml "Weather (London)"`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

var errRefreshFailed = errors.New("refresh failed")

func init() {
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	name := args[0]
	src, ok, err := config.FindSource(cfg, name)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !ok {
		return fmt.Errorf("no source named %q", name)
	}

	logger, err := newLogger(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	res := livefetch.NewResource(livefetch.SourceFetcher(src), nil,
		livefetch.WithName(src.Name()),
		livefetch.WithResourceLogger(logger),
	)
	defer res.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	out := cmd.OutOrStdout()
	start := time.Now()
	v, err := res.Refresh(ctx)
	elapsed := time.Since(start).Round(time.Millisecond)

	if err != nil {
		fmt.Fprintf(out, "%s %s %s\n",
			color.New(color.FgRed, color.Bold).Sprint("FAIL"),
			src.Name(),
			color.HiBlackString("(%s)", elapsed))
		fmt.Fprintf(out, "  %s\n", err)
		return errRefreshFailed
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode value: %w", err)
	}
	fmt.Fprintf(out, "%s %s %s\n",
		color.GreenString("OK"),
		src.Name(),
		color.HiBlackString("(%s)", elapsed))
	fmt.Fprintln(out, string(data))
	return nil
}
