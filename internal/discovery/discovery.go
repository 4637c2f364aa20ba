// Package discovery implements the discovery coordinator: it turns a
// DiscoveryMessage into PENDING URLRecords and CrawlMessages by walking a
// domain's robots/sitemaps, deduplicating survivors, and seeding the crawl
// queue.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crawlfabric/crawlfabric/internal/dedup"
	"github.com/crawlfabric/crawlfabric/internal/obslog"
	"github.com/crawlfabric/crawlfabric/internal/queue"
	"github.com/crawlfabric/crawlfabric/internal/robots"
	"github.com/crawlfabric/crawlfabric/internal/sitemap"
	"github.com/crawlfabric/crawlfabric/internal/statestore"
)

// Config bundles the coordinator's tunables, sourced from config.Config.
type Config struct {
	CoordinatorID  string
	Scheme         string
	BatchSize      int
	PollBatchSize  int
	PollWaitTime   time.Duration
	EmptyPollSleep time.Duration
	DrainTimeout   time.Duration
}

// Stats reports what one discovery run did, surfaced for the caller's
// metrics (robots_blocked_domains, urls discovered/deduped/published).
type Stats struct {
	Sitemap       sitemap.Stats
	Dedup         dedup.Stats
	RobotsBlocked bool
	Published     int
}

// Store is the narrow statestore.Store slice the coordinator needs to
// seed PENDING records ahead of publishing.
type Store interface {
	BatchPut(ctx context.Context, records []statestore.URLRecord) error
}

// Deps bundles every adapter Coordinator needs, constructed by the
// fabric's bootstrap alongside the worker's Deps.
type Deps struct {
	DiscoveryQueue queue.Queue
	CrawlQueue     queue.Queue
	DeadLetter     queue.Queue
	RobotsCache    *robots.RobotsCache
	Discoverer     *sitemap.Discoverer
	Dedup          *dedup.Deduplicator
	Store          Store
	Log            *obslog.Logger
}

// Coordinator pulls discovery messages and drives the discovery pipeline
// end to end, publishing CrawlMessages for whatever survives
// deduplication.
type Coordinator struct {
	cfg Config

	discoveryQueue queue.Queue
	crawlQueue     queue.Queue
	deadLetter     queue.Queue

	robotsCache *robots.RobotsCache
	discoverer  *sitemap.Discoverer
	dedup       *dedup.Deduplicator
	store       Store

	log *obslog.Logger
}

// New constructs a Coordinator over deps and cfg. A zero Config falls back
// to scheme "https", batch size 25, and a 20s long-poll wait.
func New(deps Deps, cfg Config) *Coordinator {
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.PollBatchSize <= 0 {
		cfg.PollBatchSize = 10
	}
	if cfg.PollWaitTime <= 0 {
		cfg.PollWaitTime = 20 * time.Second
	}
	if cfg.EmptyPollSleep <= 0 {
		cfg.EmptyPollSleep = time.Second
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	return &Coordinator{
		cfg:            cfg,
		discoveryQueue: deps.DiscoveryQueue,
		crawlQueue:     deps.CrawlQueue,
		deadLetter:     deps.DeadLetter,
		robotsCache:    deps.RobotsCache,
		discoverer:     deps.Discoverer,
		dedup:          deps.Dedup,
		store:          deps.Store,
		log:            deps.Log,
	}
}

// Run polls the discovery queue until ctx is cancelled, handling one
// message at a time (unlike the worker loop, discovery runs are already
// I/O-heavy fan-outs of their own and are not further parallelized here).
func (c *Coordinator) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, os.Interrupt)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		envelopes, err := c.discoveryQueue.Receive(ctx, c.cfg.PollBatchSize, c.cfg.PollWaitTime)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error(obslog.CauseNetworkFailure, "discovery", "receive", err, nil)
			time.Sleep(c.cfg.EmptyPollSleep)
			continue
		}
		if len(envelopes) == 0 {
			time.Sleep(c.cfg.EmptyPollSleep)
			continue
		}

		for _, env := range envelopes {
			c.handle(ctx, env)
		}
	}
}

// handle runs the full discovery procedure for one message.
func (c *Coordinator) handle(ctx context.Context, env queue.Envelope) Stats {
	var msg queue.DiscoveryMessage
	if err := queue.Unmarshal(env.Body, &msg); err != nil {
		c.toDeadLetter(ctx, env.Body, "unparseable discovery message: "+err.Error())
		c.ack(ctx, env)
		return Stats{}
	}

	stats, err := c.Discover(ctx, msg)
	if err != nil {
		c.log.Error(obslog.CauseNetworkFailure, "discovery", "discover", err, obslog.Fields{"domain": msg.Domain})
	}
	c.ack(ctx, env)
	return stats
}

// Discover runs the full pipeline for one DiscoveryMessage and returns the
// resulting Stats. It neither acks nor dead-letters anything on the
// discovery queue, so it can be driven directly with a message that was
// never queued.
func (c *Coordinator) Discover(ctx context.Context, msg queue.DiscoveryMessage) (Stats, error) {
	var stats Stats

	entry, err := c.robotsCache.EnsurePopulated(ctx, c.cfg.Scheme, msg.Domain)
	if err == nil && entry != nil && !c.robotsCache.IsAllowed(msg.Domain, url.URL{Path: "/"}) {
		stats.RobotsBlocked = true
		c.log.Info("robots_blocked_domain", obslog.Fields{"domain": msg.Domain})
		return stats, nil
	}

	candidates, sitemapStats, err := c.discoverer.Discover(ctx, c.cfg.Scheme, msg.Domain)
	stats.Sitemap = sitemapStats
	if err != nil {
		return stats, fmt.Errorf("discovering sitemaps for %s: %w", msg.Domain, err)
	}

	maxURLs := msg.MaxURLs
	if maxURLs > 0 && maxURLs < len(candidates) {
		candidates = candidates[:maxURLs]
	}

	rawURLs := make([]string, len(candidates))
	for i, cand := range candidates {
		rawURLs[i] = cand.URL
	}

	newURLs, dedupStats, err := c.dedup.Deduplicate(ctx, rawURLs)
	stats.Dedup = dedupStats
	if err != nil {
		return stats, fmt.Errorf("deduplicating candidates for %s: %w", msg.Domain, err)
	}

	if len(newURLs) == 0 {
		return stats, nil
	}

	now := time.Now()
	records := make([]statestore.URLRecord, 0, len(newURLs))
	for _, u := range newURLs {
		records = append(records, statestore.URLRecord{
			URLHash:   u.Hash,
			URL:       u.Canonical,
			Domain:    msg.Domain,
			State:     statestore.StatePending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	if err := c.store.BatchPut(ctx, records); err != nil {
		return stats, fmt.Errorf("batch-creating records for %s: %w", msg.Domain, err)
	}

	for start := 0; start < len(newURLs); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(newURLs) {
			end = len(newURLs)
		}
		for _, u := range newURLs[start:end] {
			body, err := queue.Marshal(queue.CrawlMessage{
				URL:             u.Canonical,
				Domain:          msg.Domain,
				Priority:        msg.Priority,
				DiscoverySource: "sitemap",
			})
			if err != nil {
				continue
			}
			if err := c.crawlQueue.Send(ctx, body, 0); err != nil {
				c.log.Error(obslog.CauseNetworkFailure, "discovery", "publish_crawl", err, obslog.Fields{"url_hash": u.Hash})
				continue
			}
			stats.Published++
		}
	}

	return stats, nil
}

func (c *Coordinator) ack(ctx context.Context, env queue.Envelope) {
	if err := c.discoveryQueue.Ack(ctx, env.ReceiptHandle); err != nil {
		c.log.Error(obslog.CauseStorageFailure, "discovery", "ack", err, nil)
	}
}

func (c *Coordinator) toDeadLetter(ctx context.Context, original []byte, reason string) {
	body, err := queue.Marshal(queue.DeadLetterMessage{
		OriginalMessage: original,
		ErrorReason:     reason,
		FailedAt:        time.Now(),
		CrawlerID:       c.cfg.CoordinatorID,
	})
	if err != nil {
		c.log.Error(obslog.CauseContentInvalid, "discovery", "marshal_dlq", err, nil)
		return
	}
	if err := c.deadLetter.Send(ctx, body, 0); err != nil {
		c.log.Error(obslog.CauseStorageFailure, "discovery", "send_dlq", err, nil)
	}
}
