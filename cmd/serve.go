package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dxywop/cf-clearance-scraper/internal/config"
	"github.com/dxywop/cf-clearance-scraper/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Starts the gateway",
		Long: `Starts the public gateway on PORT and, unless metrics.addr is empty, the
admin listener. The browser is launched in the background unless SKIP_LAUNCH
is true; jobs are answered with 500 until it is ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	app, err := server.Build(ctx, &cfg)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	if err := app.Run(ctx); err != nil {
		return fmt.Errorf("run app: %w", err)
	}
	return nil
}
