// Package cmd defines and implements the CLI commands for the govpulse
// executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "govpulse",
		Short: "Collects public policy news and indicator series into local artifacts",
		Long: `govpulse ingests two public-data sources into normalized, append-only
local artifacts: the sousuo.gov.cn search endpoint (policy/news items) and
the World Bank v2 API (annual indicator series). Collection is robots
compliant, per-host rate limited, and safe to re-run against the same
remote state.`,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")
	cmd.AddCommand(newCollectCmd())
	return cmd
}

// Execute is the main entry point. The process context is canceled on
// SIGINT/SIGTERM so in-flight waits and retries abort promptly while
// already-appended output survives.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
