package robots

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/crawlfabric/crawlfabric/pkg/failure"
	"github.com/crawlfabric/crawlfabric/pkg/retry"
	"github.com/crawlfabric/crawlfabric/pkg/timeutil"
)

// RobotsEntry is an immutable, cached snapshot of a domain's robots.txt
// directives. Readers receive copies; the cache itself owns mutation.
type RobotsEntry struct {
	Domain     string
	Raw        string
	FetchedAt  time.Time
	ExpiresAt  time.Time
	Sentinel   bool // true if parsing failed and this is a short-lived placeholder
	rules      ruleSet
	sitemaps   []string
}

// Sitemaps returns the Sitemap: directives discovered in robots.txt, if any.
func (e *RobotsEntry) Sitemaps() []string {
	out := make([]string, len(e.sitemaps))
	copy(out, e.sitemaps)
	return out
}

func (e *RobotsEntry) expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// RobotsCache fetches, parses, and caches per-domain robots directives:
// parsed entries live for ttl, parse-failure sentinels for a shorter
// sentinelTTL. Concurrent cache misses for the same domain are coalesced
// into a single fetch.
type RobotsCache struct {
	fetcher     *RobotsFetcher
	userAgent   string
	ttl         time.Duration
	sentinelTTL time.Duration
	retryParam  retry.RetryParam

	mu      sync.RWMutex
	entries map[string]*RobotsEntry

	group singleflight.Group
}

// NewRobotsCache constructs a cache backed by fetcher, honoring ttl for
// successfully parsed entries and sentinelTTL for parse-failure placeholders.
// A transient robots.txt fetch failure (timeout, connection reset, 5xx) is
// retried up to 3 times with exponential backoff before falling back to a
// sentinel, rather than sentineling on the first blip.
func NewRobotsCache(fetcher *RobotsFetcher, userAgent string, ttl, sentinelTTL time.Duration) *RobotsCache {
	return &RobotsCache{
		fetcher:     fetcher,
		userAgent:   userAgent,
		ttl:         ttl,
		sentinelTTL: sentinelTTL,
		entries:     make(map[string]*RobotsEntry),
		retryParam: retry.NewRetryParam(3, 100*time.Millisecond, time.Now().UnixNano(),
			timeutil.NewBackoffParam(200*time.Millisecond, 2.0, 2*time.Second)),
	}
}

// Get returns a cached entry whose TTL has not expired, or (nil, false).
func (c *RobotsCache) Get(domain string) (*RobotsEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[domain]
	if !ok || entry.expired(time.Now()) {
		return nil, false
	}
	return entry, true
}

// EnsurePopulated returns the cached entry for domain, fetching it (at most
// once per concurrent miss) if absent or expired.
func (c *RobotsCache) EnsurePopulated(ctx context.Context, scheme, domain string) (*RobotsEntry, error) {
	if entry, ok := c.Get(domain); ok {
		return entry, nil
	}

	result, err, _ := c.group.Do(domain, func() (interface{}, error) {
		if entry, ok := c.Get(domain); ok {
			return entry, nil
		}
		outcome := retry.Retry(c.retryParam, func() (RobotsFetchResult, failure.ClassifiedError) {
			fetchResult, fetchErr := c.fetcher.Fetch(ctx, scheme, domain)
			if fetchErr != nil {
				return RobotsFetchResult{}, fetchErr
			}
			return fetchResult, nil
		})
		if outcome.Err() != nil {
			return c.populateSentinel(domain), nil
		}
		return c.populate(domain, outcome.Value()), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*RobotsEntry), nil
}

func (c *RobotsCache) populate(domain string, fetchResult RobotsFetchResult) *RobotsEntry {
	now := time.Now()
	rs := MapResponseToRuleSet(fetchResult.Response, c.userAgent, now)
	entry := &RobotsEntry{
		Domain:    domain,
		Raw:       fetchResult.RawText,
		FetchedAt: now,
		ExpiresAt: now.Add(c.ttl),
		rules:     rs,
		sitemaps:  fetchResult.Response.Sitemaps,
	}
	c.mu.Lock()
	c.entries[domain] = entry
	c.mu.Unlock()
	return entry
}

func (c *RobotsCache) populateSentinel(domain string) *RobotsEntry {
	now := time.Now()
	entry := &RobotsEntry{
		Domain:    domain,
		Sentinel:  true,
		FetchedAt: now,
		ExpiresAt: now.Add(c.sentinelTTL),
	}
	c.mu.Lock()
	c.entries[domain] = entry
	c.mu.Unlock()
	return entry
}

// IsAllowed reports whether u may be crawled, per the cached entry for its
// host. Absent or sentinel entries default-allow.
func (c *RobotsCache) IsAllowed(domain string, u url.URL) bool {
	entry, ok := c.Get(domain)
	if !ok || entry.Sentinel {
		return true
	}
	return entry.rules.IsAllowed(u.Path)
}

// CrawlDelay returns the domain's robots-declared crawl delay, if any.
func (c *RobotsCache) CrawlDelay(domain string) (time.Duration, bool) {
	entry, ok := c.Get(domain)
	if !ok || entry.Sentinel {
		return 0, false
	}
	if d := entry.rules.CrawlDelay(); d != nil {
		return *d, true
	}
	return 0, false
}
