// Package cmd defines the CLI for the cf-clearance-scraper executable.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	configFile string
}

// newRootCmd creates and configures the root command. Running it without a
// subcommand serves the gateway, matching `serve`.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "cf-clearance-scraper",
		Short: "HTTP gateway that runs browser jobs behind an admission limit.",
		Long: `cf-clearance-scraper accepts scraping and challenge-solving jobs on
POST /cf-clearance-scraper, admits at most browserLimit of them at a time and
dispatches each to the handler for its mode.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "optional YAML config file; environment variables override it")
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
