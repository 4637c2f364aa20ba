// Package app is the fabric's single bootstrap: given a resolved
// config.Config, it constructs every adapter (picking the backend
// variant config.Config names), wires them into a worker.Worker or
// discovery.Coordinator, and starts the ambient metrics/health endpoints.
// All four cmd/ binaries call into this package instead of duplicating
// adapter-construction wiring.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/crawlfabric/crawlfabric/internal/blobstore"
	"github.com/crawlfabric/crawlfabric/internal/classify"
	"github.com/crawlfabric/crawlfabric/internal/concurrency"
	"github.com/crawlfabric/crawlfabric/internal/config"
	"github.com/crawlfabric/crawlfabric/internal/dedup"
	"github.com/crawlfabric/crawlfabric/internal/discovery"
	"github.com/crawlfabric/crawlfabric/internal/fetch"
	"github.com/crawlfabric/crawlfabric/internal/health"
	"github.com/crawlfabric/crawlfabric/internal/lease"
	"github.com/crawlfabric/crawlfabric/internal/metrics"
	"github.com/crawlfabric/crawlfabric/internal/obslog"
	"github.com/crawlfabric/crawlfabric/internal/queue"
	"github.com/crawlfabric/crawlfabric/internal/ratelimit"
	"github.com/crawlfabric/crawlfabric/internal/robots"
	robotscache "github.com/crawlfabric/crawlfabric/internal/robots/cache"
	"github.com/crawlfabric/crawlfabric/internal/sitemap"
	"github.com/crawlfabric/crawlfabric/internal/statestore"
	"github.com/crawlfabric/crawlfabric/internal/urlstate"
	"github.com/crawlfabric/crawlfabric/internal/worker"
	"github.com/crawlfabric/crawlfabric/pkg/bloom"
)

// Fabric bundles every constructed adapter plus the shared pieces
// (logger, health registry) that both a worker and a discovery
// coordinator are built from.
type Fabric struct {
	Config config.Config
	Log    *obslog.Logger
	Health *health.Registry

	Store     statestore.Store
	RawBlobs  blobstore.Store
	Queues    queue.Fabric
	States    *urlstate.Manager
	RateLimit ratelimit.Coordinator
	Robots    *robots.RobotsCache
	Fetcher   *fetch.Fetcher
	Policy    classify.Policy
}

// New constructs every adapter named by cfg's backend selections. The
// caller chooses a component-specific instance id (worker or discovery
// coordinator) separately since one Fabric is typically reused to build
// several workers in a single process during tests.
func New(cfg config.Config, component string) (*Fabric, error) {
	log := obslog.New(component, os.Stdout, zerologLevel(cfg))

	store, err := newStateStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("constructing state store: %w", err)
	}
	rawBlobs, err := newBlobStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("constructing blob store: %w", err)
	}
	queues, err := newQueueFabric(cfg)
	if err != nil {
		return nil, fmt.Errorf("constructing queue fabric: %w", err)
	}
	rateLimit, err := newRateLimiter(cfg, log.With("ratelimit"))
	if err != nil {
		return nil, fmt.Errorf("constructing rate limiter: %w", err)
	}

	states := urlstate.New(store)
	robotsFetcher := robots.NewRobotsFetcher(log.With("robots"), cfg.UserAgent(), newRobotsFetchCache(cfg))
	robotsCache := robots.NewRobotsCache(robotsFetcher, cfg.UserAgent(), cfg.RobotsTTL(), cfg.RobotsSentinelTTL())
	fetcher := fetch.New(fetch.Config{
		RequestTimeout:   cfg.RequestTimeout(),
		UserAgent:        cfg.UserAgent(),
		MaxContentLength: cfg.MaxContentLength(),
	})

	healthRegistry := health.NewRegistry(2 * time.Second)
	registerHealthChecks(healthRegistry, store, queues, rawBlobs)

	return &Fabric{
		Config:    cfg,
		Log:       log,
		Health:    healthRegistry,
		Store:     store,
		RawBlobs:  rawBlobs,
		Queues:    queues,
		States:    states,
		RateLimit: rateLimit,
		Robots:    robotsCache,
		Fetcher:   fetcher,
		Policy:    policyFromConfig(cfg),
	}, nil
}

// NewLeaser builds the lease-manager variant config.Config.LeaseBackend
// names, identified by workerID.
// DynamoDB/Postgres/memory all share one statestore-backed Manager,
// while "redis" issues the exclusive claim as a `SET NX` against Redis.
func (f *Fabric) NewLeaser(workerID string) (lease.Leaser, error) {
	switch f.Config.LeaseBackend() {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: f.Config.RedisAddr()})
		return lease.NewRedisManager(client, f.States, workerID, "crawlfabric:lease:", f.Log.With("lease")), nil
	case "", "dynamodb", "postgres", "memory":
		return lease.New(f.States, workerID, f.Log.With("lease")), nil
	default:
		return nil, fmt.Errorf("unknown lease backend %q", f.Config.LeaseBackend())
	}
}

// NewWorker builds a fully wired worker.Worker identified by workerID
// (typically from NewWorkerID).
func (f *Fabric) NewWorker(workerID string) (*worker.Worker, error) {
	leaser, err := f.NewLeaser(workerID)
	if err != nil {
		return nil, err
	}
	return worker.New(worker.Deps{
		CrawlQueue:    f.Queues.Crawl,
		IndexingQueue: f.Queues.Indexing,
		DeadLetter:    f.Queues.DeadLetter,
		Leases:        leaser,
		RateLimits:    f.RateLimit,
		RobotsCache:   f.Robots,
		Concurrency:   concurrency.NewManager(f.Config.MaxConcurrentRequests(), f.Config.MaxConcurrentPerDomain(), nil),
		Fetcher:       f.Fetcher,
		Policy:        f.Policy,
		RawBlobs:      f.RawBlobs,
		Log:           f.Log.With("worker"),
	}, worker.Config{
		LeaseTTL:              f.Config.AcquisitionTTL(),
		HeartbeatInterval:     f.Config.HeartbeatInterval(),
		PollBatchSize:         f.Config.PollBatchSize(),
		PollWaitTime:          f.Config.PollWaitTime(),
		EmptyPollSleep:        f.Config.EmptyPollSleep(),
		RateLimitCheckRetries: f.Config.RateLimitCheckRetries(),
		RateLimitCheckDelay:   f.Config.RateLimitCheckDelay(),
		FetchTimeout:          f.Config.RequestTimeout(),
		DrainTimeout:          f.Config.DrainTimeout(),
		RandomSeed:            time.Now().UnixNano(),
	}), nil
}

// NewDiscoveryCoordinator builds a fully wired discovery.Coordinator
// identified by coordinatorID.
func (f *Fabric) NewDiscoveryCoordinator(coordinatorID string) (*discovery.Coordinator, error) {
	filter, err := bloom.New(f.Config.BloomCapacity(), f.Config.BloomErrorRate())
	if err != nil {
		return nil, fmt.Errorf("constructing bloom filter: %w", err)
	}
	dd := dedup.New(f.Store, filter, 100, f.Log.With("dedup"))
	disc := sitemap.New(f.Robots, f.Fetcher, sitemap.Config{
		MaxDepth:           f.Config.SitemapMaxDepth(),
		MaxURLs:            f.Config.SitemapMaxURLs(),
		MaxURLLength:       f.Config.SitemapMaxURLLength(),
		ExcludedExtensions: f.Config.SitemapExcludedExtensions(),
		UserAgent:          f.Config.UserAgent(),
	}, f.Log.With("sitemap"))

	return discovery.New(discovery.Deps{
		DiscoveryQueue: f.Queues.Discovery,
		CrawlQueue:     f.Queues.Crawl,
		DeadLetter:     f.Queues.DeadLetter,
		RobotsCache:    f.Robots,
		Discoverer:     disc,
		Dedup:          dd,
		Store:          f.Store,
		Log:            f.Log.With("discovery"),
	}, discovery.Config{
		CoordinatorID: coordinatorID,
		BatchSize:     f.Config.DiscoveryBatchSize(),
	}), nil
}

// NewReclaimer builds the reclaim sweep over whatever Store this Fabric
// is configured with, run by cmd/crawlreclaim on its own schedule.
func (f *Fabric) NewReclaimer(holderID string) (*lease.Manager, lease.StoreScanner) {
	return lease.New(f.States, holderID, f.Log.With("reclaim")), lease.StoreScanner{Store: f.Store}
}

// StartMetrics starts the Prometheus /metrics endpoint if cfg.MetricsAddr
// is configured, returning a stop function (a no-op if metrics are
// disabled).
func (f *Fabric) StartMetrics() func(context.Context) error {
	if f.Config.MetricsAddr() == "" {
		return func(context.Context) error { return nil }
	}
	srv := metrics.NewServer(f.Config.MetricsAddr(), f.Log.With("metrics"))
	srv.StartAsync()
	return srv.Stop
}

// StartHealth starts the health-check HTTP endpoint if cfg.HealthAddr is
// configured, returning a stop function (a no-op if disabled).
func (f *Fabric) StartHealth() func(context.Context) error {
	if f.Config.HealthAddr() == "" {
		return func(context.Context) error { return nil }
	}
	srv := &healthServer{addr: f.Config.HealthAddr(), handler: f.Health.Handler()}
	srv.start()
	return srv.stop
}

// NewWorkerID mints a process-unique worker identity.
func NewWorkerID(prefix string) string { return prefix + "-" + uuid.NewString() }

func zerologLevel(cfg config.Config) zerolog.Level {
	if cfg.DryRun() {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}

func policyFromConfig(cfg config.Config) classify.Policy {
	return classify.Policy{
		BaseDelay:  cfg.BaseBackoffSeconds(),
		MaxDelay:   cfg.MaxBackoffSeconds(),
		Multiplier: 2.0,
		Jitter:     cfg.Jitter(),
		MaxRetries: cfg.MaxRetries(),
	}
}

func newStateStore(cfg config.Config) (statestore.Store, error) {
	switch cfg.StateStoreBackend() {
	case "", "memory":
		return statestore.NewMemoryStore(), nil
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		return statestore.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTableName()), nil
	case "postgres":
		db, err := sql.Open("pgx", cfg.PostgresDSN())
		if err != nil {
			return nil, fmt.Errorf("opening postgres connection: %w", err)
		}
		return statestore.NewPostgresStore(db), nil
	default:
		return nil, fmt.Errorf("unknown state store backend %q", cfg.StateStoreBackend())
	}
}

func newBlobStore(cfg config.Config) (blobstore.Store, error) {
	switch cfg.BlobStoreBackend() {
	case "", "local":
		return blobstore.NewLocalStore(cfg.LocalBlobDir())
	case "s3":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		return blobstore.NewS3Store(s3.NewFromConfig(awsCfg), cfg.S3Bucket()), nil
	default:
		return nil, fmt.Errorf("unknown blob store backend %q", cfg.BlobStoreBackend())
	}
}

func newQueueFabric(cfg config.Config) (queue.Fabric, error) {
	switch cfg.QueueBackend() {
	case "", "file":
		return newFileQueueFabric(cfg.FileQueueDir())
	case "sqs":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return queue.Fabric{}, fmt.Errorf("loading AWS config: %w", err)
		}
		client := sqs.NewFromConfig(awsCfg)
		base := cfg.SQSQueueURL()
		return queue.Fabric{
			Discovery:  queue.NewSQSQueue(client, base+"-discovery", "discovery"),
			Crawl:      queue.NewSQSQueue(client, base+"-crawl", "crawl"),
			Indexing:   queue.NewSQSQueue(client, base+"-indexing", "indexing"),
			DeadLetter: queue.NewSQSQueue(client, base+"-deadletter", "deadletter"),
		}, nil
	default:
		return queue.Fabric{}, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend())
	}
}

func newFileQueueFabric(dir string) (queue.Fabric, error) {
	discovery, err := queue.NewFileQueue(dir + "/discovery.jsonl")
	if err != nil {
		return queue.Fabric{}, err
	}
	crawl, err := queue.NewFileQueue(dir + "/crawl.jsonl")
	if err != nil {
		return queue.Fabric{}, err
	}
	indexing, err := queue.NewFileQueue(dir + "/indexing.jsonl")
	if err != nil {
		return queue.Fabric{}, err
	}
	deadLetter, err := queue.NewFileQueue(dir + "/deadletter.jsonl")
	if err != nil {
		return queue.Fabric{}, err
	}
	return queue.Fabric{Discovery: discovery, Crawl: crawl, Indexing: indexing, DeadLetter: deadLetter}, nil
}

// newRobotsFetchCache picks where fetched robots.txt results are shared:
// Redis (one fetch per domain per TTL across the whole fleet) when a Redis
// address is configured, an in-process map otherwise.
func newRobotsFetchCache(cfg config.Config) robotscache.Cache {
	if cfg.RedisAddr() != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
		return robotscache.NewRedisCache(client, "crawlfabric:robots:", cfg.RobotsTTL())
	}
	return robotscache.NewMemoryCache()
}

func newRateLimiter(cfg config.Config, log *obslog.Logger) (ratelimit.Coordinator, error) {
	limits := ratelimit.Limits{DefaultQPS: cfg.DefaultQPSPerDomain(), Overrides: cfg.DomainQPSOverrides()}
	if cfg.RedisAddr() == "" {
		return ratelimit.NewMemoryCoordinator(limits), nil
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr()})
	primary := ratelimit.NewRedisCoordinator(client, "crawlfabric:rate:", limits)
	return ratelimit.NewFailOpenCoordinator(primary, log), nil
}
