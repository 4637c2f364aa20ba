package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/crawlfabric/crawlfabric/internal/fetch"
	"github.com/crawlfabric/crawlfabric/internal/obslog"
	"github.com/crawlfabric/crawlfabric/internal/robots"
	"github.com/crawlfabric/crawlfabric/pkg/fileutil"
)

// defaultCommonPaths are probed when robots.txt carries no Sitemap:
// directive.
var defaultCommonPaths = []string{"/sitemap.xml", "/sitemap_index.xml", "/sitemap-index.xml"}

// Config bounds one Discover call.
type Config struct {
	MaxDepth            int
	MaxURLs             int
	MaxURLLength        int
	CommonPaths         []string
	ExcludedExtensions  []string
	UserAgent           string
}

// Stats reports how one Discover call spent its candidate budget.
type Stats struct {
	SitemapsFetched int
	URLsAccumulated int
	URLsFiltered    int
	Errors          []*DiscoverError
}

// RobotsSource is the narrow slice of the robots cache Discoverer needs.
type RobotsSource interface {
	EnsurePopulated(ctx context.Context, scheme, domain string) (*robots.RobotsEntry, error)
}

// Fetcher is the narrow slice of the HTTP fetcher Discoverer needs.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, headers map[string]string) (*fetch.Result, *fetch.FetchError)
}

// Discoverer enumerates a domain's candidate URLs from its sitemaps.
type Discoverer struct {
	robots  RobotsSource
	fetcher Fetcher
	cfg     Config
	log     *obslog.Logger
}

// New constructs a Discoverer. A zero-value field in cfg falls back to a
// sane default (depth 3, 50000 URLs, 2048-byte URL length cap, the
// sitemaps.org common paths).
func New(robotsSource RobotsSource, fetcher Fetcher, cfg Config, log *obslog.Logger) *Discoverer {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 3
	}
	if cfg.MaxURLs <= 0 {
		cfg.MaxURLs = 50000
	}
	if cfg.MaxURLLength <= 0 {
		cfg.MaxURLLength = 2048
	}
	if len(cfg.CommonPaths) == 0 {
		cfg.CommonPaths = defaultCommonPaths
	}
	return &Discoverer{robots: robotsSource, fetcher: fetcher, cfg: cfg, log: log}
}

// Discover walks domain's sitemaps and returns a filtered, prioritized set
// of candidate URLs.
func (d *Discoverer) Discover(ctx context.Context, scheme, domain string) ([]SitemapURL, Stats, error) {
	var stats Stats

	roots := d.sitemapRoots(ctx, scheme, domain, &stats)

	visited := make(map[string]struct{})
	var accumulated []SitemapURL
	for _, root := range roots {
		d.walk(ctx, root, 0, visited, &accumulated, &stats)
		if len(accumulated) >= d.cfg.MaxURLs {
			break
		}
	}

	filtered := d.filter(accumulated, &stats)
	sortByPriority(filtered)
	stats.URLsAccumulated = len(filtered)
	return filtered, stats, nil
}

func (d *Discoverer) sitemapRoots(ctx context.Context, scheme, domain string, stats *Stats) []string {
	entry, err := d.robots.EnsurePopulated(ctx, scheme, domain)
	var declared []string
	if err == nil && entry != nil {
		declared = entry.Sitemaps()
	} else if err != nil {
		stats.Errors = append(stats.Errors, &DiscoverError{SitemapURL: domain + "/robots.txt", Cause: ErrCauseFetch, Err: err})
	}
	if len(declared) > 0 {
		return declared
	}

	roots := make([]string, 0, len(d.cfg.CommonPaths))
	for _, p := range d.cfg.CommonPaths {
		roots = append(roots, fmt.Sprintf("%s://%s%s", scheme, domain, p))
	}
	return roots
}

// walk fetches sitemapURL, recursing into child sitemap-index entries up
// to cfg.MaxDepth and appending url-set entries to *out. visited prevents
// infinite recursion on a malformed or self-referential sitemap index.
func (d *Discoverer) walk(ctx context.Context, sitemapURL string, depth int, visited map[string]struct{}, out *[]SitemapURL, stats *Stats) {
	if depth > d.cfg.MaxDepth {
		stats.Errors = append(stats.Errors, &DiscoverError{SitemapURL: sitemapURL, Cause: ErrCauseDepth, Err: fmt.Errorf("depth %d exceeds max %d", depth, d.cfg.MaxDepth)})
		return
	}
	if _, seen := visited[sitemapURL]; seen {
		return
	}
	visited[sitemapURL] = struct{}{}
	if len(*out) >= d.cfg.MaxURLs {
		return
	}

	result, fetchErr := d.fetcher.Fetch(ctx, sitemapURL, map[string]string{"User-Agent": d.cfg.UserAgent})
	if fetchErr != nil {
		stats.Errors = append(stats.Errors, &DiscoverError{SitemapURL: sitemapURL, Cause: ErrCauseFetch, Err: fetchErr})
		return
	}
	if fetch.Classify(result.StatusCode) != fetch.ClassSuccess {
		stats.Errors = append(stats.Errors, &DiscoverError{SitemapURL: sitemapURL, Cause: ErrCauseFetch, Err: fmt.Errorf("unexpected status %d", result.StatusCode)})
		return
	}
	stats.SitemapsFetched++

	var doc sitemapDocument
	if err := xml.Unmarshal(result.Body, &doc); err != nil {
		stats.Errors = append(stats.Errors, &DiscoverError{SitemapURL: sitemapURL, Cause: ErrCauseParse, Err: err})
		return
	}

	if doc.XMLName.Local == "sitemapindex" {
		for _, child := range doc.Sitemaps {
			if len(*out) >= d.cfg.MaxURLs {
				return
			}
			d.walk(ctx, child.Loc, depth+1, visited, out, stats)
		}
		return
	}

	for _, u := range doc.URLs {
		if len(*out) >= d.cfg.MaxURLs {
			return
		}
		*out = append(*out, toSitemapURL(u))
	}
}

func toSitemapURL(e xmlURLEntry) SitemapURL {
	su := SitemapURL{URL: strings.TrimSpace(e.Loc), ChangeFrequency: e.ChangeFreq, Priority: e.Priority}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.LastMod)); err == nil {
		su.LastModified = &t
	}
	return su
}

// sitemapDocument decodes either sitemaps.org schema by root element name:
// <urlset> populates URLs, <sitemapindex> populates Sitemaps.
type sitemapDocument struct {
	XMLName  xml.Name
	URLs     []xmlURLEntry     `xml:"url"`
	Sitemaps []xmlSitemapEntry `xml:"sitemap"`
}

// filter drops non-http(s) candidates, over-length URLs, and unwanted
// extensions.
func (d *Discoverer) filter(urls []SitemapURL, stats *Stats) []SitemapURL {
	out := make([]SitemapURL, 0, len(urls))
	for _, u := range urls {
		if len(u.URL) > d.cfg.MaxURLLength {
			stats.URLsFiltered++
			continue
		}
		parsed, err := url.Parse(u.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			stats.URLsFiltered++
			continue
		}
		if d.hasExcludedExtension(parsed.Path) {
			stats.URLsFiltered++
			continue
		}
		out = append(out, u)
	}
	return out
}

func (d *Discoverer) hasExcludedExtension(p string) bool {
	ext := fileutil.Extension(p)
	if ext == "" {
		return false
	}
	for _, excluded := range d.cfg.ExcludedExtensions {
		if ext == excluded {
			return true
		}
	}
	return false
}
