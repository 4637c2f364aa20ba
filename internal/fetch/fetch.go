// Package fetch implements the size-capped, timeout-bounded HTTP GET
// and its response classification. One Fetcher is constructed per process
// and shares a single connection pool (http.Transport) across every call,
// capping connections per host at the transport level (there is no global
// connection cap; MaxIdleConns limits idle connections only) so
// connection reuse is effective regardless of how many goroutines call
// Fetch concurrently (task-level concurrency gating is layered on top in
// internal/concurrency).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Result is everything the worker loop needs from a successful round trip,
// including non-2xx ones: status, headers, body, final URL after
// redirects, and content type.
type Result struct {
	StatusCode    int
	Headers       http.Header
	Body          []byte
	FinalURL      string
	ContentType   string
	ContentLength int64
	FetchedAt     time.Time
	Duration      time.Duration
}

// Classification buckets an HTTP status code by how the worker should
// react to it.
type Classification int

const (
	// ClassSuccess covers every status not listed below (2xx, 3xx, and any
	// other 4xx such as 400): the caller inspects the body and stores it.
	ClassSuccess Classification = iota
	// ClassTerminalNotFound is 404: terminal, never retried.
	ClassTerminalNotFound
	// ClassTerminalClient is 401/403/405/410/411/413/414: terminal unless
	// the caller has configured otherwise.
	ClassTerminalClient
	// ClassRetryableRateLimited is 429.
	ClassRetryableRateLimited
	// ClassRetryableServer is 5xx.
	ClassRetryableServer
)

// Classify maps an HTTP status code to its classification.
func Classify(statusCode int) Classification {
	switch {
	case statusCode == http.StatusNotFound:
		return ClassTerminalNotFound
	case statusCode == http.StatusTooManyRequests:
		return ClassRetryableRateLimited
	case statusCode >= 500:
		return ClassRetryableServer
	case isTerminalClientStatus(statusCode):
		return ClassTerminalClient
	default:
		return ClassSuccess
	}
}

func isTerminalClientStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusMethodNotAllowed,
		http.StatusGone, http.StatusLengthRequired, http.StatusRequestEntityTooLarge,
		http.StatusRequestURITooLong:
		return true
	default:
		return false
	}
}

// Fetcher owns the process-wide connection pool.
type Fetcher struct {
	client           *http.Client
	userAgent        string
	maxContentLength int64
}

// Config bundles the configured knobs that affect the fetcher.
type Config struct {
	RequestTimeout         time.Duration
	UserAgent              string
	MaxContentLength       int64
	MaxIdleConnsPerHost    int
	MaxConnsPerHost        int
	MaxIdleConns           int
}

// New constructs a Fetcher with one shared transport, reusing connections
// across every Fetch call this process makes.
func New(cfg Config) *Fetcher {
	transport := &http.Transport{
		MaxIdleConns:        nonZero(cfg.MaxIdleConns, 256),
		MaxIdleConnsPerHost: nonZero(cfg.MaxIdleConnsPerHost, 16),
		MaxConnsPerHost:     nonZero(cfg.MaxConnsPerHost, 32),
		IdleConnTimeout:     90 * time.Second,
	}
	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.RequestTimeout,
		},
		userAgent:        cfg.UserAgent,
		maxContentLength: cfg.MaxContentLength,
	}
}

func nonZero(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Fetch performs a size-capped, timeout-bounded GET. headers, if non-nil,
// are merged on top of the fetcher's default User-Agent header. The
// request's wall-clock is bounded by ctx in addition to the client's own
// configured timeout, so the concurrent crawl manager's task-level
// deadline takes effect even if it is tighter.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, headers map[string]string) (*Result, *FetchError) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Message: err.Error(), Cause: ErrCauseInvalidRequest, Retryable: false}
	}
	req.Header.Set("User-Agent", f.userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err, ctx)
	}
	defer resp.Body.Close()

	body, readErr := f.readCapped(resp.Body)
	if readErr != nil {
		return nil, readErr
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Result{
		StatusCode:    resp.StatusCode,
		Headers:       resp.Header,
		Body:          body,
		FinalURL:      finalURL,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: int64(len(body)),
		FetchedAt:     start,
		Duration:      time.Since(start),
	}, nil
}

// readCapped reads resp's body in chunks, aborting with ContentTooLarge as
// soon as bytes exceed f.maxContentLength. It never buffers more than
// maxContentLength+1 bytes.
func (f *Fetcher) readCapped(r io.Reader) ([]byte, *FetchError) {
	limit := f.maxContentLength
	if limit <= 0 {
		limit = 10 * 1024 * 1024
	}
	limited := io.LimitReader(r, limit+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, &FetchError{Message: err.Error(), Cause: ErrCauseConnection, Retryable: true}
	}
	if int64(len(body)) > limit {
		return nil, &FetchError{
			Message:   fmt.Sprintf("body exceeded max_content_length of %d bytes", limit),
			Cause:     ErrCauseContentTooLarge,
			Retryable: false,
		}
	}
	return body, nil
}

func classifyTransportError(err error, ctx context.Context) *FetchError {
	if ctx.Err() != nil {
		return &FetchError{Message: err.Error(), Cause: ErrCauseTimeout, Retryable: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Message: err.Error(), Cause: ErrCauseTimeout, Retryable: true}
	}
	return &FetchError{Message: err.Error(), Cause: ErrCauseConnection, Retryable: true}
}
