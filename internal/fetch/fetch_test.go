package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlfabric/crawlfabric/internal/fetch"
)

func newFetcher(maxContentLength int64) *fetch.Fetcher {
	return fetch.New(fetch.Config{
		RequestTimeout:   2 * time.Second,
		UserAgent:        "crawlfabric-test/1.0",
		MaxContentLength: maxContentLength,
	})
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "crawlfabric-test/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>hi</html>"))
	}))
	defer srv.Close()

	f := newFetcher(1024)
	result, err := f.Fetch(context.Background(), srv.URL, nil)
	require.Nil(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "<html>hi</html>", string(result.Body))
	assert.Equal(t, fetch.ClassSuccess, fetch.Classify(result.StatusCode))
}

func TestFetch_ContentTooLargeAbortsRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("a", 4096)))
	}))
	defer srv.Close()

	f := newFetcher(128)
	_, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NotNil(t, err)
	assert.Equal(t, fetch.ErrCauseContentTooLarge, err.Cause)
	assert.False(t, err.IsRetryable())
}

func TestClassify_MatchesSpecTable(t *testing.T) {
	assert.Equal(t, fetch.ClassTerminalNotFound, fetch.Classify(http.StatusNotFound))
	assert.Equal(t, fetch.ClassTerminalClient, fetch.Classify(http.StatusForbidden))
	assert.Equal(t, fetch.ClassRetryableRateLimited, fetch.Classify(http.StatusTooManyRequests))
	assert.Equal(t, fetch.ClassRetryableServer, fetch.Classify(http.StatusBadGateway))
	assert.Equal(t, fetch.ClassSuccess, fetch.Classify(http.StatusOK))
	assert.Equal(t, fetch.ClassSuccess, fetch.Classify(http.StatusFound))
}

func TestFetch_TimeoutIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	f := fetch.New(fetch.Config{RequestTimeout: 5 * time.Millisecond, UserAgent: "x", MaxContentLength: 1024})
	_, err := f.Fetch(context.Background(), srv.URL, nil)
	require.NotNil(t, err)
	assert.Equal(t, fetch.ErrCauseTimeout, err.Cause)
	assert.True(t, err.IsRetryable())
}
