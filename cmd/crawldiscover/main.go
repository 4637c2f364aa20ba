// Command crawldiscover runs the discovery coordinator: it polls the
// discovery queue, walks each domain's sitemaps, deduplicates the result,
// and seeds the crawl queue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crawlfabric/crawlfabric/internal/app"
	"github.com/crawlfabric/crawlfabric/internal/build"
	"github.com/crawlfabric/crawlfabric/internal/cli"
)

func main() {
	var flags *cli.Flags
	cmd := &cobra.Command{
		Use:           "crawldiscover",
		Short:         "Walk sitemaps for queued domains and seed the crawl queue",
		Version:       build.FullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}
	flags = cli.BindPersistentFlags(cmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags *cli.Flags) error {
	cfg, err := flags.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fabric, err := app.New(cfg, "crawldiscover")
	if err != nil {
		return fmt.Errorf("building fabric: %w", err)
	}

	stopMetrics := fabric.StartMetrics()
	stopHealth := fabric.StartHealth()
	defer stopMetrics(context.Background())
	defer stopHealth(context.Background())

	coordinator, err := fabric.NewDiscoveryCoordinator(app.NewWorkerID("crawldiscover"))
	if err != nil {
		return fmt.Errorf("building discovery coordinator: %w", err)
	}

	return coordinator.Run(ctx)
}
