package worker

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crawlfabric/crawlfabric/internal/blobstore"
	"github.com/crawlfabric/crawlfabric/internal/classify"
	"github.com/crawlfabric/crawlfabric/internal/concurrency"
	"github.com/crawlfabric/crawlfabric/internal/fetch"
	"github.com/crawlfabric/crawlfabric/internal/lease"
	"github.com/crawlfabric/crawlfabric/internal/obslog"
	"github.com/crawlfabric/crawlfabric/internal/queue"
	"github.com/crawlfabric/crawlfabric/internal/ratelimit"
	"github.com/crawlfabric/crawlfabric/internal/robots"
	"github.com/crawlfabric/crawlfabric/internal/statestore"
	"github.com/crawlfabric/crawlfabric/internal/urlstate"
	"github.com/crawlfabric/crawlfabric/pkg/urlnorm"
)

type harness struct {
	w          *Worker
	crawlQ     *queue.FileQueue
	indexQ     *queue.FileQueue
	deadQ      *queue.FileQueue
	store      *statestore.MemoryStore
	srv        *httptest.Server
	pageStatus int
	pageBody   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{pageStatus: http.StatusOK, pageBody: "<html>hi</html>"}

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(h.pageStatus)
		_, _ = w.Write([]byte(h.pageBody))
	})
	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)

	crawlQ, err := queue.NewFileQueue(filepath.Join(t.TempDir(), "crawl.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = crawlQ.Close() })
	indexQ, err := queue.NewFileQueue(filepath.Join(t.TempDir(), "index.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = indexQ.Close() })
	deadQ, err := queue.NewFileQueue(filepath.Join(t.TempDir(), "dead.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deadQ.Close() })

	store := statestore.NewMemoryStore()
	states := urlstate.New(store)
	log := obslog.New("worker-test", io.Discard, zerolog.Disabled)
	leases := lease.New(states, "worker-1", log)

	fetcher := robots.NewRobotsFetcherWithClient(log.With("robots"), "crawlfabric-test/1.0", h.srv.Client(), nil)
	robotsCache := robots.NewRobotsCache(fetcher, "crawlfabric-test/1.0", time.Hour, 5*time.Minute)

	localStore, err := blobstore.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	h.w = New(Deps{
		CrawlQueue:    crawlQ,
		IndexingQueue: indexQ,
		DeadLetter:    deadQ,
		Leases:        leases,
		RateLimits:    ratelimit.NewMemoryCoordinator(ratelimit.Limits{DefaultQPS: 1000}),
		RobotsCache:   robotsCache,
		Concurrency:   concurrency.NewManager(10, 10, nil),
		Fetcher:       fetch.New(fetch.Config{RequestTimeout: 2 * time.Second, UserAgent: "crawlfabric-test/1.0", MaxContentLength: 1 << 20}),
		Policy:        classify.DefaultPolicy(),
		RawBlobs:      localStore,
		Log:           log,
	}, testConfig())

	h.crawlQ, h.indexQ, h.deadQ, h.store = crawlQ, indexQ, deadQ, store
	return h
}

func testConfig() Config {
	return Config{
		LeaseTTL:              time.Minute,
		HeartbeatInterval:     time.Hour,
		PollBatchSize:         10,
		PollWaitTime:          50 * time.Millisecond,
		EmptyPollSleep:        10 * time.Millisecond,
		RateLimitCheckRetries: 1,
		RateLimitCheckDelay:   time.Millisecond,
		FetchTimeout:          2 * time.Second,
		DrainTimeout:          time.Second,
		RandomSeed:            1,
	}
}

// processOne receives exactly one message off the crawl queue and runs it
// synchronously through handle, mirroring one iteration of Run's body
// without exercising the polling loop, signal handling, or heartbeat.
func (h *harness) processOne(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	envelopes, err := h.crawlQ.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	h.w.handle(ctx, envelopes[0])
}

func TestWorker_SuccessfulFetchCompletesAndPublishesIndexMessage(t *testing.T) {
	h := newHarness(t)
	url := h.srv.URL + "/page"
	body, err := queue.Marshal(queue.CrawlMessage{URL: url, Domain: "example.com"})
	require.NoError(t, err)
	require.NoError(t, h.crawlQ.Send(context.Background(), body, 0))

	h.processOne(t)

	envelopes, err := h.indexQ.Receive(context.Background(), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	var msg queue.IndexingMessage
	require.NoError(t, queue.Unmarshal(envelopes[0].Body, &msg))
	assert.Equal(t, http.StatusOK, msg.StatusCode)
	assert.NotEmpty(t, msg.RawBlobKey)
	assert.NotEmpty(t, msg.URLHash)

	rec, found, err := h.store.Get(context.Background(), msg.URLHash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, statestore.StateDone, rec.State)
	assert.Equal(t, msg.RawBlobKey, rec.RawBlobKey)

	// crawl message itself should be acked, not redelivered
	remaining, err := h.crawlQ.Receive(context.Background(), 10, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, remaining)
}

func TestWorker_ServerErrorMarksFailedWithRetryBudget(t *testing.T) {
	h := newHarness(t)
	h.pageStatus = http.StatusBadGateway
	url := h.srv.URL + "/page"
	body, err := queue.Marshal(queue.CrawlMessage{URL: url, Domain: "example.com", RetryCount: 0})
	require.NoError(t, err)
	require.NoError(t, h.crawlQ.Send(context.Background(), body, 0))

	h.processOne(t)

	_, hash, _, cerr := urlnorm.NormalizeAndHashWithDomain(url)
	require.Nil(t, cerr)

	rec, found, err := h.store.Get(context.Background(), hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, statestore.StateFailed, rec.State)
	assert.Equal(t, 1, rec.RetryCount)
	require.NotNil(t, rec.NextEligibleAt)
	assert.True(t, rec.NextEligibleAt.After(time.Now()))

	envelopes, err := h.indexQ.Receive(context.Background(), 10, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, envelopes)
}

func TestWorker_NotFoundIsPermanentFailure(t *testing.T) {
	h := newHarness(t)
	h.pageStatus = http.StatusNotFound
	url := h.srv.URL + "/page"
	body, err := queue.Marshal(queue.CrawlMessage{URL: url, Domain: "example.com"})
	require.NoError(t, err)
	require.NoError(t, h.crawlQ.Send(context.Background(), body, 0))

	h.processOne(t)

	_, hash, _, cerr := urlnorm.NormalizeAndHashWithDomain(url)
	require.Nil(t, cerr)
	rec, found, err := h.store.Get(context.Background(), hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, statestore.StateFailed, rec.State)
	assert.Nil(t, rec.NextEligibleAt)
}

func TestWorker_UnparseableMessageGoesToDeadLetter(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.crawlQ.Send(context.Background(), []byte("not json"), 0))

	h.processOne(t)

	envelopes, err := h.deadQ.Receive(context.Background(), 10, time.Second)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)

	var msg queue.DeadLetterMessage
	require.NoError(t, queue.Unmarshal(envelopes[0].Body, &msg))
	assert.Equal(t, "worker-1", msg.CrawlerID)
}

func TestWorker_RobotsDisallowedMarksFailedPermanently(t *testing.T) {
	h := newHarness(t)
	// Override the mux's robots handler via a dedicated server for this test.
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /page\n"))
	})
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>hi</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	fetcher := robots.NewRobotsFetcherWithClient(h.w.log.With("robots"), "crawlfabric-test/1.0", srv.Client(), nil)
	h.w.robotsCache = robots.NewRobotsCache(fetcher, "crawlfabric-test/1.0", time.Hour, 5*time.Minute)

	url := srv.URL + "/page"
	bodyBytes, err := queue.Marshal(queue.CrawlMessage{URL: url, Domain: "example.com"})
	require.NoError(t, err)
	require.NoError(t, h.crawlQ.Send(context.Background(), bodyBytes, 0))

	h.processOne(t)

	_, hash, _, cerr := urlnorm.NormalizeAndHashWithDomain(url)
	require.Nil(t, cerr)
	rec, found, err := h.store.Get(context.Background(), hash)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, statestore.StateFailed, rec.State)
	assert.Equal(t, "RobotsBlocked", rec.LastError)
}
