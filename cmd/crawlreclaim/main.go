// Command crawlreclaim runs the lease-reclaim sweep as a standalone
// scheduled job, decoupled from any one worker's lifecycle so it can be
// deployed and scaled independently.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crawlfabric/crawlfabric/internal/app"
	"github.com/crawlfabric/crawlfabric/internal/build"
	"github.com/crawlfabric/crawlfabric/internal/cli"
	"github.com/crawlfabric/crawlfabric/internal/obslog"
	"github.com/crawlfabric/crawlfabric/internal/queue"
)

func main() {
	var flags *cli.Flags
	var interval time.Duration
	var batchSize int

	cmd := &cobra.Command{
		Use:           "crawlreclaim",
		Short:         "Sweep expired URL leases back to pending on an interval",
		Version:       build.FullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags, interval, batchSize)
		},
	}
	flags = cli.BindPersistentFlags(cmd)
	cmd.PersistentFlags().DurationVar(&interval, "sweep-interval", 30*time.Second, "how often to scan for expired leases")
	cmd.PersistentFlags().IntVar(&batchSize, "sweep-batch-size", 100, "maximum expired leases reclaimed per sweep")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, flags *cli.Flags, interval time.Duration, batchSize int) error {
	cfg, err := flags.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fabric, err := app.New(cfg, "crawlreclaim")
	if err != nil {
		return fmt.Errorf("building fabric: %w", err)
	}

	stopMetrics := fabric.StartMetrics()
	stopHealth := fabric.StartHealth()
	defer stopMetrics(context.Background())
	defer stopHealth(context.Background())

	reclaimer, lister := fabric.NewReclaimer(app.NewWorkerID("crawlreclaim"))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := reclaimer.ReclaimExpired(ctx, lister, batchSize)
			if err != nil {
				fabric.Log.Error(obslog.CauseStorageFailure, "reclaim", "sweep", err, nil)
				continue
			}

			moved, err := reclaimer.RescheduleFailed(ctx, lister, cfg.MaxRetries(), batchSize)
			if err != nil {
				fabric.Log.Error(obslog.CauseStorageFailure, "reclaim", "retry_sweep", err, nil)
			}
			republished := 0
			for _, rec := range moved {
				body, err := queue.Marshal(queue.CrawlMessage{
					URL:        rec.URL,
					Domain:     rec.Domain,
					RetryCount: rec.RetryCount,
				})
				if err != nil {
					continue
				}
				if err := fabric.Queues.Crawl.Send(ctx, body, 0); err != nil {
					fabric.Log.Error(obslog.CauseNetworkFailure, "reclaim", "republish", err, obslog.Fields{"url_hash": rec.URLHash})
					continue
				}
				republished++
			}

			if n > 0 || republished > 0 {
				fabric.Log.Info("sweep", obslog.Fields{
					"reclaimed":   fmt.Sprintf("%d", n),
					"republished": fmt.Sprintf("%d", republished),
				})
			}
		}
	}
}
