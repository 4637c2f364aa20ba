// Command crawlctl is the operator CLI: seed a domain for discovery,
// inspect a URLRecord by raw URL, or print the resolved config.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crawlfabric/crawlfabric/internal/app"
	"github.com/crawlfabric/crawlfabric/internal/build"
	"github.com/crawlfabric/crawlfabric/internal/cli"
	"github.com/crawlfabric/crawlfabric/internal/queue"
	"github.com/crawlfabric/crawlfabric/pkg/urlnorm"
)

func main() {
	root := &cobra.Command{
		Use:           "crawlctl",
		Short:         "Operator commands for the crawl fabric",
		Version:       build.FullVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := cli.BindPersistentFlags(root)

	root.AddCommand(seedCmd(flags), inspectCmd(flags), recrawlCmd(flags), configCmd(flags))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func seedCmd(flags *cli.Flags) *cobra.Command {
	var priority, maxURLs, depth int
	cmd := &cobra.Command{
		Use:   "seed <domain>",
		Short: "Publish a DiscoveryMessage for domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			fabric, err := app.New(cfg, "crawlctl")
			if err != nil {
				return fmt.Errorf("building fabric: %w", err)
			}

			body, err := queue.Marshal(queue.DiscoveryMessage{
				Domain:         args[0],
				Priority:       priority,
				MaxURLs:        maxURLs,
				DiscoveryDepth: depth,
				RequesterID:    "crawlctl",
			})
			if err != nil {
				return fmt.Errorf("encoding discovery message: %w", err)
			}
			if err := fabric.Queues.Discovery.Send(context.Background(), body, 0); err != nil {
				return fmt.Errorf("publishing discovery message: %w", err)
			}
			fmt.Printf("seeded %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().IntVar(&priority, "priority", 0, "discovery priority")
	cmd.Flags().IntVar(&maxURLs, "max-urls", 0, "cap on URLs discovered (0 = coordinator default)")
	cmd.Flags().IntVar(&depth, "depth", 0, "sitemap recursion depth (0 = coordinator default)")
	return cmd
}

func inspectCmd(flags *cli.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <url>",
		Short: "Print the URLRecord stored for a URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			fabric, err := app.New(cfg, "crawlctl")
			if err != nil {
				return fmt.Errorf("building fabric: %w", err)
			}

			_, hash, _, cerr := urlnorm.NormalizeAndHashWithDomain(args[0])
			if cerr != nil {
				return fmt.Errorf("normalizing url: %w", cerr)
			}
			record, found, err := fabric.Store.Get(context.Background(), hash)
			if err != nil {
				return fmt.Errorf("fetching record: %w", err)
			}
			if !found {
				fmt.Println("no record found")
				return nil
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(record)
		},
	}
}

func recrawlCmd(flags *cli.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "recrawl <url>",
		Short: "Return a DONE URL to pending and queue it for a fresh fetch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			fabric, err := app.New(cfg, "crawlctl")
			if err != nil {
				return fmt.Errorf("building fabric: %w", err)
			}

			canonical, hash, domain, cerr := urlnorm.NormalizeAndHashWithDomain(args[0])
			if cerr != nil {
				return fmt.Errorf("normalizing url: %w", cerr)
			}
			applied, err := fabric.States.Recrawl(context.Background(), hash)
			if err != nil {
				return fmt.Errorf("rescheduling record: %w", err)
			}
			if !applied {
				fmt.Println("record is not in a completed state; nothing to do")
				return nil
			}

			body, err := queue.Marshal(queue.CrawlMessage{URL: canonical.String(), Domain: domain})
			if err != nil {
				return fmt.Errorf("encoding crawl message: %w", err)
			}
			if err := fabric.Queues.Crawl.Send(context.Background(), body, 0); err != nil {
				return fmt.Errorf("publishing crawl message: %w", err)
			}
			fmt.Printf("requeued %s\n", canonical.String())
			return nil
		},
	}
}

func configCmd(flags *cli.Flags) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"state_store_backend": cfg.StateStoreBackend(),
				"queue_backend":       cfg.QueueBackend(),
				"lease_backend":       cfg.LeaseBackend(),
				"blob_store_backend":  cfg.BlobStoreBackend(),
				"user_agent":          cfg.UserAgent(),
				"max_concurrent":      cfg.MaxConcurrentRequests(),
				"request_timeout":     cfg.RequestTimeout().String(),
				"dry_run":             cfg.DryRun(),
			})
		},
	}
}
