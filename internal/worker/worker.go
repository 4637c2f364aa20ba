// Package worker implements the end-to-end crawl message handler:
// receive, lease, rate-limit admit, robots check, fetch, store, and
// transition, in that order, with nothing skipped and nothing reordered.
package worker

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/crawlfabric/crawlfabric/internal/blobstore"
	"github.com/crawlfabric/crawlfabric/internal/classify"
	"github.com/crawlfabric/crawlfabric/internal/concurrency"
	"github.com/crawlfabric/crawlfabric/internal/fetch"
	"github.com/crawlfabric/crawlfabric/internal/lease"
	"github.com/crawlfabric/crawlfabric/internal/obslog"
	"github.com/crawlfabric/crawlfabric/internal/queue"
	"github.com/crawlfabric/crawlfabric/internal/ratelimit"
	"github.com/crawlfabric/crawlfabric/internal/robots"
	"github.com/crawlfabric/crawlfabric/pkg/urlnorm"
)

// Config bundles the worker loop's tunables, sourced from config.Config.
type Config struct {
	LeaseTTL              time.Duration
	HeartbeatInterval     time.Duration
	PollBatchSize         int
	PollWaitTime          time.Duration
	EmptyPollSleep        time.Duration
	RateLimitCheckRetries int
	RateLimitCheckDelay   time.Duration
	FetchTimeout          time.Duration
	DrainTimeout          time.Duration
	RandomSeed            int64
}

// Worker is one crawl worker process: it owns a lease manager, rate
// limiter, robots cache, concurrency manager, fetcher, blob store, and
// the crawl/indexing/dead-letter queues, and drives the loop in Run.
type Worker struct {
	cfg Config

	crawlQueue    queue.Queue
	indexingQueue queue.Queue
	deadLetter    queue.Queue

	leases      lease.Leaser
	rateLimits  ratelimit.Coordinator
	robotsCache *robots.RobotsCache
	concurrency *concurrency.Manager
	fetcher     *fetch.Fetcher
	policy      classify.Policy
	rawBlobs    blobstore.Store

	log *obslog.Logger
	rng *rand.Rand

	inflight sync.WaitGroup
}

// Deps bundles every adapter Worker needs, constructed by internal/app.
type Deps struct {
	CrawlQueue    queue.Queue
	IndexingQueue queue.Queue
	DeadLetter    queue.Queue
	Leases        lease.Leaser
	RateLimits    ratelimit.Coordinator
	RobotsCache   *robots.RobotsCache
	Concurrency   *concurrency.Manager
	Fetcher       *fetch.Fetcher
	Policy        classify.Policy
	RawBlobs      blobstore.Store
	Log           *obslog.Logger
}

// New constructs a Worker over deps and cfg.
func New(deps Deps, cfg Config) *Worker {
	return &Worker{
		cfg:           cfg,
		crawlQueue:    deps.CrawlQueue,
		indexingQueue: deps.IndexingQueue,
		deadLetter:    deps.DeadLetter,
		leases:        deps.Leases,
		rateLimits:    deps.RateLimits,
		robotsCache:   deps.RobotsCache,
		concurrency:   deps.Concurrency,
		fetcher:       deps.Fetcher,
		policy:        deps.Policy,
		rawBlobs:      deps.RawBlobs,
		log:           deps.Log,
		rng:           rand.New(rand.NewSource(cfg.RandomSeed)),
	}
}

// Run polls the crawl queue until ctx is cancelled, draining in-flight
// work before returning. It installs its own SIGTERM/SIGINT handler so
// cmd/crawlworker only needs to call Run.
func (w *Worker) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, os.Interrupt)
	defer stop()

	heartbeat := time.NewTicker(w.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				w.leases.ExtendAllHeld(context.Background(), w.cfg.HeartbeatInterval*2)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return w.drain()
		default:
		}

		envelopes, err := w.crawlQueue.Receive(ctx, w.cfg.PollBatchSize, w.cfg.PollWaitTime)
		if err != nil {
			if ctx.Err() != nil {
				return w.drain()
			}
			w.log.Error(obslog.CauseNetworkFailure, "worker", "receive", err, nil)
			time.Sleep(w.cfg.EmptyPollSleep)
			continue
		}
		if len(envelopes) == 0 {
			time.Sleep(w.cfg.EmptyPollSleep)
			continue
		}

		for _, env := range envelopes {
			w.inflight.Add(1)
			go func(e queue.Envelope) {
				defer w.inflight.Done()
				w.handle(ctx, e)
			}(env)
		}
	}
}

// drain waits up to cfg.DrainTimeout for in-flight handlers to finish,
// then force-releases any lease still held so no reclaim sweep is needed.
func (w *Worker) drain() error {
	done := make(chan struct{})
	go func() {
		w.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(w.cfg.DrainTimeout):
		w.log.Info("drain_timeout_exceeded", nil)
	}
	w.leases.ReleaseAllHeld(context.Background(), "worker_shutdown")
	return nil
}

// handle runs the full crawl procedure for one received message.
func (w *Worker) handle(ctx context.Context, env queue.Envelope) {
	var msg queue.CrawlMessage
	if err := queue.Unmarshal(env.Body, &msg); err != nil {
		w.toDeadLetter(ctx, env.Body, "unparseable crawl message: "+err.Error())
		w.ack(ctx, env)
		return
	}

	canonical, hash, domain, normErr := urlnorm.NormalizeAndHashWithDomain(msg.URL)
	if normErr != nil {
		w.toDeadLetter(ctx, env.Body, "bad url: "+normErr.Error())
		w.ack(ctx, env)
		return
	}

	acquired, err := w.leases.TryAcquire(ctx, hash, canonical.String(), domain, w.cfg.LeaseTTL)
	if err != nil {
		w.log.Error(obslog.CauseStorageFailure, "worker", "acquire", err, obslog.Fields{"url_hash": hash})
		w.release(ctx, env)
		return
	}
	if !acquired {
		w.ack(ctx, env)
		return
	}

	if !w.admitRateLimit(ctx, domain) {
		if _, err := w.leases.ReleaseToPending(ctx, hash); err != nil {
			w.log.Error(obslog.CauseStorageFailure, "worker", "release_to_pending", err, obslog.Fields{"url_hash": hash})
		}
		w.release(ctx, env)
		return
	}

	if _, robotsErr := w.robotsCache.EnsurePopulated(ctx, canonical.Scheme, canonical.Host); robotsErr != nil {
		if _, err := w.leases.ReleaseToPending(ctx, hash); err != nil {
			w.log.Error(obslog.CauseStorageFailure, "worker", "release_to_pending", err, obslog.Fields{"url_hash": hash})
		}
		w.release(ctx, env)
		return
	}
	if !w.robotsCache.IsAllowed(canonical.Host, canonical) {
		w.failLease(ctx, hash, string(classify.RobotsBlocked().Kind), nil)
		w.ack(ctx, env)
		return
	}

	if err := w.rateLimits.Record(ctx, domain); err != nil {
		w.log.Error(obslog.CauseRateLimited, "worker", "record", err, obslog.Fields{"domain": domain})
	}

	w.fetchAndStore(ctx, env, msg, canonical, hash, domain)
}

// admitRateLimit loops Check with short sleeps up to a bounded number of
// retries.
func (w *Worker) admitRateLimit(ctx context.Context, domain string) bool {
	for attempt := 0; attempt <= w.cfg.RateLimitCheckRetries; attempt++ {
		ok, err := w.rateLimits.Check(ctx, domain)
		if err != nil {
			w.log.Error(obslog.CauseRateLimited, "worker", "check", err, obslog.Fields{"domain": domain})
			return false
		}
		if ok {
			return true
		}
		if attempt < w.cfg.RateLimitCheckRetries {
			time.Sleep(w.cfg.RateLimitCheckDelay)
		}
	}
	return false
}

func (w *Worker) fetchAndStore(ctx context.Context, env queue.Envelope, msg queue.CrawlMessage, canonical url.URL, hash, domain string) {
	var result *fetch.Result
	var fetchErr *fetch.FetchError

	err := w.concurrency.RunWithTimeout(ctx, domain, w.cfg.FetchTimeout, func(taskCtx context.Context) error {
		result, fetchErr = w.fetcher.Fetch(taskCtx, canonical.String(), nil)
		return nil
	})
	if err != nil {
		// ctx cancelled or semaphore acquisition failed; treat as a
		// retryable connection failure so the record returns to FAILED
		// with a backoff instead of being stuck IN_PROGRESS.
		fetchErr = &fetch.FetchError{Message: err.Error(), Cause: fetch.ErrCauseConnection, Retryable: true}
	}

	if fetchErr != nil {
		w.handleFailure(ctx, env, hash, msg.RetryCount, classify.ClassifyFetchError(fetchErr, w.policy.BaseDelay))
		return
	}

	statusClass := fetch.Classify(result.StatusCode)
	if statusClass != fetch.ClassSuccess {
		retryAfter := parseRetryAfter(result.Headers.Get("Retry-After"))
		w.handleFailure(ctx, env, hash, msg.RetryCount, classify.ClassifyStatus(statusClass, retryAfter, w.policy.BaseDelay))
		return
	}

	rawKey := blobKey(result.FetchedAt, hash, "html")
	_, err = w.rawBlobs.Put(ctx, rawKey, result.Body, result.ContentType)
	if err != nil {
		w.log.Error(obslog.CauseStorageFailure, "worker", "blob_put", err, obslog.Fields{"url_hash": hash})
		w.handleFailure(ctx, env, hash, msg.RetryCount, classify.Classification{Kind: classify.KindUnknown, Retryable: true, SuggestedDelay: w.policy.BaseDelay})
		return
	}

	applied, err := w.leases.Release(ctx, hash, lease.Outcome{Terminal: lease.TerminalDone, RawBlobKey: rawKey})
	if err != nil {
		w.log.Error(obslog.CauseStorageFailure, "worker", "complete", err, obslog.Fields{"url_hash": hash})
	}
	if !applied {
		w.log.Info("complete_not_applied_lease_lost", obslog.Fields{"url_hash": hash})
	}

	indexMsg := queue.IndexingMessage{
		URL:           canonical.String(),
		URLHash:       hash,
		Domain:        domain,
		RawBlobKey:    rawKey,
		FetchedAt:     result.FetchedAt,
		StatusCode:    result.StatusCode,
		ContentLength: result.ContentLength,
	}
	body, marshalErr := queue.Marshal(indexMsg)
	if marshalErr != nil {
		w.log.Error(obslog.CauseInvariantViolation, "worker", "marshal_index", marshalErr, obslog.Fields{"url_hash": hash})
	} else if err := w.indexingQueue.Send(ctx, body, 0); err != nil {
		w.log.Error(obslog.CauseNetworkFailure, "worker", "publish_index", err, obslog.Fields{"url_hash": hash})
	}

	w.ack(ctx, env)
}

// handleFailure classifies err and routes the URL to a retry or a
// permanent failure. retryCount comes off the
// CrawlMessage itself, which the discovery coordinator / a prior worker
// attempt stamped with how many times this URL has already failed.
func (w *Worker) handleFailure(ctx context.Context, env queue.Envelope, hash string, retryCount int, c classify.Classification) {
	shouldRetry := w.policy.ShouldRetry(c, retryCount)
	var nextEligible *time.Time
	if shouldRetry {
		delay := c.SuggestedDelay
		if delay <= 0 {
			delay = w.policy.Backoff(retryCount, w.rng)
		}
		t := time.Now().Add(delay)
		nextEligible = &t
	}
	w.failLease(ctx, hash, string(c.Kind), nextEligible)
	w.ack(ctx, env)
}

func (w *Worker) failLease(ctx context.Context, hash, reason string, nextEligible *time.Time) {
	applied, err := w.leases.Release(ctx, hash, lease.Outcome{
		Terminal:       lease.TerminalFailed,
		LastError:      reason,
		NextEligibleAt: nextEligible,
	})
	if err != nil {
		w.log.Error(obslog.CauseStorageFailure, "worker", "fail", err, obslog.Fields{"url_hash": hash})
	}
	if !applied {
		w.log.Info("fail_not_applied_lease_lost", obslog.Fields{"url_hash": hash})
	}
}

func (w *Worker) toDeadLetter(ctx context.Context, original []byte, reason string) {
	msg := queue.DeadLetterMessage{
		OriginalMessage: original,
		ErrorReason:     reason,
		FailedAt:        time.Now(),
		CrawlerID:       w.leases.WorkerID(),
	}
	body, err := queue.Marshal(msg)
	if err != nil {
		w.log.Error(obslog.CauseInvariantViolation, "worker", "marshal_deadletter", err, nil)
		return
	}
	if err := w.deadLetter.Send(ctx, body, 0); err != nil {
		w.log.Error(obslog.CauseNetworkFailure, "worker", "publish_deadletter", err, nil)
	}
}

func (w *Worker) ack(ctx context.Context, env queue.Envelope) {
	if err := w.crawlQueue.Ack(ctx, env.ReceiptHandle); err != nil {
		w.log.Error(obslog.CauseStorageFailure, "worker", "ack", err, nil)
	}
}

func (w *Worker) release(ctx context.Context, env queue.Envelope) {
	if err := w.crawlQueue.Release(ctx, env.ReceiptHandle); err != nil {
		w.log.Error(obslog.CauseStorageFailure, "worker", "release", err, nil)
	}
}

func blobKey(t time.Time, hash, ext string) string {
	return fmt.Sprintf("%s/%s.%s", t.UTC().Format("2006/01/02"), hash, ext)
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := time.ParseDuration(v + "s"); err == nil {
		return secs
	}
	return 0
}
