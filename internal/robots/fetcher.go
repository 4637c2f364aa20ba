package robots

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/crawlfabric/crawlfabric/internal/obslog"
	"github.com/crawlfabric/crawlfabric/internal/robots/cache"
)

// maxRobotsBody caps how much of a robots.txt body is read; anything past
// it is ignored, matching the common 500 KiB convention.
const maxRobotsBody = 500 * 1024

// RobotsFetcher retrieves and parses robots.txt for a host. It only
// transcribes the file into a RobotsResponse; admission decisions live in
// ruleSet. An optional Cache shares fetched results across processes.
type RobotsFetcher struct {
	httpClient *http.Client
	userAgent  string
	cache      cache.Cache
	log        *obslog.Logger
}

// RobotsFetchResult is one fetched-and-parsed robots.txt. RawText is kept
// alongside the parse so cached entries can expose the original body.
type RobotsFetchResult struct {
	Response    RobotsResponse
	RawText     string
	FetchedAt   time.Time
	SourceURL   string
	HTTPStatus  int
	ContentType string
}

// NewRobotsFetcher builds a fetcher with a default 30s-timeout client.
// cache may be nil to disable result sharing.
func NewRobotsFetcher(log *obslog.Logger, userAgent string, robotsCache cache.Cache) *RobotsFetcher {
	return NewRobotsFetcherWithClient(log, userAgent, &http.Client{Timeout: 30 * time.Second}, robotsCache)
}

// NewRobotsFetcherWithClient is NewRobotsFetcher with an injected
// *http.Client, for tests and custom transports.
func NewRobotsFetcherWithClient(log *obslog.Logger, userAgent string, httpClient *http.Client, robotsCache cache.Cache) *RobotsFetcher {
	return &RobotsFetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		cache:      robotsCache,
		log:        log,
	}
}

// cachedResult is RobotsFetchResult's wire form in the shared cache.
type cachedResult struct {
	Response    RobotsResponse `json:"response"`
	RawText     string         `json:"raw_text,omitempty"`
	FetchedAt   time.Time      `json:"fetched_at"`
	SourceURL   string         `json:"source_url"`
	HTTPStatus  int            `json:"http_status"`
	ContentType string         `json:"content_type"`
}

func robotsURLFor(scheme, hostname string) string {
	return fmt.Sprintf("%s://%s/robots.txt", scheme, hostname)
}

func (f *RobotsFetcher) fromCache(key string) (RobotsFetchResult, bool) {
	if f.cache == nil {
		return RobotsFetchResult{}, false
	}
	raw, found := f.cache.Get(key)
	if !found {
		return RobotsFetchResult{}, false
	}
	var cached cachedResult
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		// A corrupt entry is treated as a miss and overwritten on refetch.
		return RobotsFetchResult{}, false
	}
	return RobotsFetchResult(cached), true
}

func (f *RobotsFetcher) toCache(key string, result RobotsFetchResult) {
	if f.cache == nil {
		return
	}
	if raw, err := json.Marshal(cachedResult(result)); err == nil {
		f.cache.Put(key, string(raw))
	}
}

// Fetch retrieves hostname's robots.txt over scheme. Status handling:
// 2xx parses the body; any other 4xx than 429 means "no robots file"
// (empty response, everything allowed); 429, 5xx, redirect loops, and
// transport failures are retryable errors.
func (f *RobotsFetcher) Fetch(ctx context.Context, scheme, hostname string) (RobotsFetchResult, *RobotsError) {
	robotsURL := robotsURLFor(scheme, hostname)
	if cached, ok := f.fromCache(robotsURL); ok {
		return cached, nil
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("building request: %v", err),
			Retryable: false,
			Cause:     ErrCausePreFetchFailure,
		}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/plain,text/html,*/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		if f.log != nil {
			f.log.Error(obslog.CauseNetworkFailure, "robots", "fetch", err, obslog.Fields{"host": hostname, "source_url": robotsURL})
		}
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("fetching %s: %v", robotsURL, err),
			Retryable: true,
			Cause:     ErrCauseHttpFetchFailure,
		}
	}
	defer resp.Body.Close()

	var result RobotsFetchResult
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBody))
		if readErr != nil {
			return RobotsFetchResult{}, &RobotsError{
				Message:   fmt.Sprintf("reading %s: %v", robotsURL, readErr),
				Retryable: true,
				Cause:     ErrCauseParseError,
			}
		}
		result = RobotsFetchResult{
			Response:    ParseRobotsTxt(string(body), hostname),
			RawText:     string(body),
			FetchedAt:   time.Now(),
			SourceURL:   robotsURL,
			HTTPStatus:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
		}

	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		// The client follows redirects itself; landing here means a loop.
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("redirect loop fetching %s", robotsURL),
			Retryable: true,
			Cause:     ErrCauseHttpTooManyRedirects,
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("rate limited fetching %s", robotsURL),
			Retryable: true,
			Cause:     ErrCauseHttpTooManyRequests,
		}

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		result = RobotsFetchResult{
			Response:    RobotsResponse{Host: hostname, Sitemaps: []string{}, UserAgents: []UserAgentGroup{}},
			FetchedAt:   start,
			SourceURL:   robotsURL,
			HTTPStatus:  resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
		}

	case resp.StatusCode >= 500:
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("status %d fetching %s", resp.StatusCode, robotsURL),
			Retryable: true,
			Cause:     ErrCauseHttpServerError,
		}

	default:
		return RobotsFetchResult{}, &RobotsError{
			Message:   fmt.Sprintf("status %d fetching %s", resp.StatusCode, robotsURL),
			Retryable: true,
			Cause:     ErrCauseHttpUnexpectedStatus,
		}
	}

	f.toCache(robotsURL, result)
	return result, nil
}

// ParseRobotsTxt transcribes a robots.txt body. Group semantics: adjacent
// User-agent lines share one group; rules before any User-agent line form
// a global "*" group; Sitemap: lines are collected file-wide.
func ParseRobotsTxt(content, hostname string) RobotsResponse {
	response := RobotsResponse{
		Host:       hostname,
		Sitemaps:   []string{},
		UserAgents: []UserAgentGroup{},
	}

	var current *UserAgentGroup
	var global UserAgentGroup
	hasGlobal := false

	flush := func() {
		if current != nil {
			response.UserAgents = append(response.UserAgents, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx != -1 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		colon := strings.Index(line, ":")
		if colon == -1 {
			continue
		}
		field := strings.ToLower(strings.TrimSpace(line[:colon]))
		value := strings.TrimSpace(line[colon+1:])

		switch field {
		case "user-agent":
			if current != nil && groupHasRules(*current) {
				flush()
			}
			if current == nil {
				current = &UserAgentGroup{Allows: []PathRule{}, Disallows: []PathRule{}}
			}
			current.UserAgents = append(current.UserAgents, value)

		case "allow":
			if current != nil {
				current.Allows = append(current.Allows, PathRule{Path: value})
			} else {
				global.Allows = append(global.Allows, PathRule{Path: value})
				hasGlobal = true
			}

		case "disallow":
			if current != nil {
				current.Disallows = append(current.Disallows, PathRule{Path: value})
			} else {
				global.Disallows = append(global.Disallows, PathRule{Path: value})
				hasGlobal = true
			}

		case "crawl-delay":
			if current != nil {
				var seconds float64
				if _, err := fmt.Sscanf(value, "%f", &seconds); err == nil && seconds >= 0 {
					delay := time.Duration(seconds * float64(time.Second))
					current.CrawlDelay = &delay
				}
			}

		case "sitemap":
			if value != "" {
				response.Sitemaps = append(response.Sitemaps, value)
			}
		}
	}
	flush()

	if hasGlobal && (len(global.Allows) > 0 || len(global.Disallows) > 0) {
		global.UserAgents = []string{"*"}
		response.UserAgents = append([]UserAgentGroup{global}, response.UserAgents...)
	}

	return response
}

func groupHasRules(g UserAgentGroup) bool {
	return len(g.Allows) > 0 || len(g.Disallows) > 0 || g.CrawlDelay != nil
}
