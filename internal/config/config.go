// Package config builds the immutable Config every crawlfabric binary
// shares: a functional-builder default, overridable by a JSON config file
// and then by CRAWLER_-prefixed environment variables, in that order.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	//===============
	// Concurrency & politeness
	//===============
	maxConcurrentRequests int
	maxConcurrentPerDomain int
	defaultQPSPerDomain   float64
	domainQPSOverrides    map[string]float64

	//===============
	// Fetch
	//===============
	requestTimeout  time.Duration
	userAgent       string
	maxContentLength int64

	//===============
	// Retry / backoff
	//===============
	maxRetries           int
	baseBackoffSeconds   time.Duration
	maxBackoffSeconds    time.Duration
	jitter               time.Duration
	randomSeed           int64

	//===============
	// Leasing
	//===============
	acquisitionTTL     time.Duration
	heartbeatInterval  time.Duration

	//===============
	// Rate limiter / dedup
	//===============
	rateLimitWindowSeconds int
	bloomCapacity          int
	bloomErrorRate         float64

	//===============
	// Robots
	//===============
	robotsTTL         time.Duration
	robotsSentinelTTL time.Duration

	//===============
	// Backends
	//===============
	stateStoreBackend string // "dynamodb" | "postgres" | "memory"
	queueBackend      string // "sqs" | "file"
	leaseBackend      string // "dynamodb" | "redis"
	blobStoreBackend  string // "s3" | "local"

	dynamoTableName   string
	postgresDSN       string
	sqsQueueURL       string
	fileQueueDir      string
	redisAddr         string
	s3Bucket          string
	localBlobDir      string

	//===============
	// Process
	//===============
	metricsAddr string
	healthAddr  string
	dryRun      bool

	//===============
	// Worker loop
	//===============
	pollBatchSize         int
	pollWaitTime          time.Duration
	emptyPollSleep        time.Duration
	rateLimitCheckRetries int
	rateLimitCheckDelay   time.Duration
	drainTimeout          time.Duration

	//===============
	// Discovery coordinator
	//===============
	sitemapMaxDepth           int
	sitemapMaxURLs            int
	sitemapMaxURLLength       int
	sitemapExcludedExtensions []string
	discoveryBatchSize        int
}

type configDTO struct {
	MaxConcurrentRequests  int                `json:"maxConcurrentRequests,omitempty"`
	MaxConcurrentPerDomain int                `json:"maxConcurrentPerDomain,omitempty"`
	DefaultQPSPerDomain    float64            `json:"defaultQpsPerDomain,omitempty"`
	DomainQPSOverrides     map[string]float64 `json:"domainQpsOverrides,omitempty"`
	RequestTimeout         time.Duration      `json:"requestTimeout,omitempty"`
	UserAgent              string             `json:"userAgent,omitempty"`
	MaxContentLength       int64              `json:"maxContentLength,omitempty"`
	MaxRetries             int                `json:"maxRetries,omitempty"`
	BaseBackoffSeconds     time.Duration      `json:"baseBackoffSeconds,omitempty"`
	MaxBackoffSeconds      time.Duration      `json:"maxBackoffSeconds,omitempty"`
	Jitter                 time.Duration      `json:"jitter,omitempty"`
	RandomSeed             int64              `json:"randomSeed,omitempty"`
	AcquisitionTTLSeconds  time.Duration      `json:"acquisitionTtlSeconds,omitempty"`
	HeartbeatIntervalSeconds time.Duration    `json:"heartbeatIntervalSeconds,omitempty"`
	StateStoreBackend      string             `json:"stateStoreBackend,omitempty"`
	QueueBackend           string             `json:"queueBackend,omitempty"`
	LeaseBackend           string             `json:"leaseBackend,omitempty"`
	BlobStoreBackend       string             `json:"blobStoreBackend,omitempty"`
	DynamoTableName        string             `json:"dynamoTableName,omitempty"`
	PostgresDSN            string             `json:"postgresDsn,omitempty"`
	SQSQueueURL            string             `json:"sqsQueueUrl,omitempty"`
	FileQueueDir           string             `json:"fileQueueDir,omitempty"`
	RedisAddr              string             `json:"redisAddr,omitempty"`
	S3Bucket               string             `json:"s3Bucket,omitempty"`
	LocalBlobDir           string             `json:"localBlobDir,omitempty"`
	MetricsAddr            string             `json:"metricsAddr,omitempty"`
	HealthAddr             string             `json:"healthAddr,omitempty"`
	DryRun                 bool               `json:"dryRun,omitempty"`

	PollBatchSize             int           `json:"pollBatchSize,omitempty"`
	PollWaitTime              time.Duration `json:"pollWaitTime,omitempty"`
	EmptyPollSleep            time.Duration `json:"emptyPollSleep,omitempty"`
	RateLimitCheckRetries     int           `json:"rateLimitCheckRetries,omitempty"`
	RateLimitCheckDelay       time.Duration `json:"rateLimitCheckDelay,omitempty"`
	DrainTimeout              time.Duration `json:"drainTimeout,omitempty"`
	SitemapMaxDepth           int           `json:"sitemapMaxDepth,omitempty"`
	SitemapMaxURLs            int           `json:"sitemapMaxUrls,omitempty"`
	SitemapMaxURLLength       int           `json:"sitemapMaxUrlLength,omitempty"`
	SitemapExcludedExtensions []string      `json:"sitemapExcludedExtensions,omitempty"`
	DiscoveryBatchSize        int           `json:"discoveryBatchSize,omitempty"`
}

// WithDefault returns a builder seeded with the fabric's defaults.
func WithDefault() *Config {
	return &Config{
		maxConcurrentRequests:  64,
		maxConcurrentPerDomain: 4,
		defaultQPSPerDomain:    1.0,
		domainQPSOverrides:     map[string]float64{},
		requestTimeout:         10 * time.Second,
		userAgent:              "crawlfabric/1.0",
		maxContentLength:       10 * 1024 * 1024,
		maxRetries:             5,
		baseBackoffSeconds:     time.Second,
		maxBackoffSeconds:      30 * time.Second,
		jitter:                 500 * time.Millisecond,
		randomSeed:             1,
		acquisitionTTL:         5 * time.Minute,
		heartbeatInterval:      2 * time.Minute,
		rateLimitWindowSeconds: 60,
		bloomCapacity:          1_000_000,
		bloomErrorRate:         0.001,
		robotsTTL:              time.Hour,
		robotsSentinelTTL:      5 * time.Minute,
		stateStoreBackend:      "dynamodb",
		queueBackend:           "sqs",
		leaseBackend:           "dynamodb",
		blobStoreBackend:       "s3",
		dynamoTableName:        "crawlfabric-urls",
		fileQueueDir:           "./data/queue",
		redisAddr:              "127.0.0.1:6379",
		localBlobDir:           "./data/blobs",
		metricsAddr:            ":9090",
		healthAddr:             ":9091",
		pollBatchSize:          10,
		pollWaitTime:           20 * time.Second,
		emptyPollSleep:         2 * time.Second,
		rateLimitCheckRetries:  3,
		rateLimitCheckDelay:    200 * time.Millisecond,
		drainTimeout:           30 * time.Second,
		sitemapMaxDepth:        3,
		sitemapMaxURLs:         50000,
		sitemapMaxURLLength:    2048,
		sitemapExcludedExtensions: []string{".pdf", ".zip", ".jpg", ".jpeg", ".png", ".gif", ".mp4"},
		discoveryBatchSize:     100,
	}
}

// WithConfigFile loads JSON overrides from path on top of WithDefault, then
// builds. Use WithEnv afterward to layer environment overrides.
func WithConfigFile(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	var dto configDTO
	if err := json.Unmarshal(content, &dto); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}
	return WithDefault().applyDTO(dto).Build()
}

func (c *Config) applyDTO(dto configDTO) *Config {
	if dto.MaxConcurrentRequests != 0 {
		c.maxConcurrentRequests = dto.MaxConcurrentRequests
	}
	if dto.MaxConcurrentPerDomain != 0 {
		c.maxConcurrentPerDomain = dto.MaxConcurrentPerDomain
	}
	if dto.DefaultQPSPerDomain != 0 {
		c.defaultQPSPerDomain = dto.DefaultQPSPerDomain
	}
	if len(dto.DomainQPSOverrides) > 0 {
		c.domainQPSOverrides = dto.DomainQPSOverrides
	}
	if dto.RequestTimeout != 0 {
		c.requestTimeout = dto.RequestTimeout
	}
	if dto.UserAgent != "" {
		c.userAgent = dto.UserAgent
	}
	if dto.MaxContentLength != 0 {
		c.maxContentLength = dto.MaxContentLength
	}
	if dto.MaxRetries != 0 {
		c.maxRetries = dto.MaxRetries
	}
	if dto.BaseBackoffSeconds != 0 {
		c.baseBackoffSeconds = dto.BaseBackoffSeconds * time.Second
	}
	if dto.MaxBackoffSeconds != 0 {
		c.maxBackoffSeconds = dto.MaxBackoffSeconds * time.Second
	}
	if dto.Jitter != 0 {
		c.jitter = dto.Jitter
	}
	if dto.RandomSeed != 0 {
		c.randomSeed = dto.RandomSeed
	}
	if dto.AcquisitionTTLSeconds != 0 {
		c.acquisitionTTL = dto.AcquisitionTTLSeconds * time.Second
	}
	if dto.HeartbeatIntervalSeconds != 0 {
		c.heartbeatInterval = dto.HeartbeatIntervalSeconds * time.Second
	}
	if dto.StateStoreBackend != "" {
		c.stateStoreBackend = dto.StateStoreBackend
	}
	if dto.QueueBackend != "" {
		c.queueBackend = dto.QueueBackend
	}
	if dto.LeaseBackend != "" {
		c.leaseBackend = dto.LeaseBackend
	}
	if dto.BlobStoreBackend != "" {
		c.blobStoreBackend = dto.BlobStoreBackend
	}
	if dto.DynamoTableName != "" {
		c.dynamoTableName = dto.DynamoTableName
	}
	if dto.PostgresDSN != "" {
		c.postgresDSN = dto.PostgresDSN
	}
	if dto.SQSQueueURL != "" {
		c.sqsQueueURL = dto.SQSQueueURL
	}
	if dto.FileQueueDir != "" {
		c.fileQueueDir = dto.FileQueueDir
	}
	if dto.RedisAddr != "" {
		c.redisAddr = dto.RedisAddr
	}
	if dto.S3Bucket != "" {
		c.s3Bucket = dto.S3Bucket
	}
	if dto.LocalBlobDir != "" {
		c.localBlobDir = dto.LocalBlobDir
	}
	if dto.MetricsAddr != "" {
		c.metricsAddr = dto.MetricsAddr
	}
	if dto.HealthAddr != "" {
		c.healthAddr = dto.HealthAddr
	}
	c.dryRun = dto.DryRun
	if dto.PollBatchSize != 0 {
		c.pollBatchSize = dto.PollBatchSize
	}
	if dto.PollWaitTime != 0 {
		c.pollWaitTime = dto.PollWaitTime
	}
	if dto.EmptyPollSleep != 0 {
		c.emptyPollSleep = dto.EmptyPollSleep
	}
	if dto.RateLimitCheckRetries != 0 {
		c.rateLimitCheckRetries = dto.RateLimitCheckRetries
	}
	if dto.RateLimitCheckDelay != 0 {
		c.rateLimitCheckDelay = dto.RateLimitCheckDelay
	}
	if dto.DrainTimeout != 0 {
		c.drainTimeout = dto.DrainTimeout
	}
	if dto.SitemapMaxDepth != 0 {
		c.sitemapMaxDepth = dto.SitemapMaxDepth
	}
	if dto.SitemapMaxURLs != 0 {
		c.sitemapMaxURLs = dto.SitemapMaxURLs
	}
	if dto.SitemapMaxURLLength != 0 {
		c.sitemapMaxURLLength = dto.SitemapMaxURLLength
	}
	if len(dto.SitemapExcludedExtensions) > 0 {
		c.sitemapExcludedExtensions = dto.SitemapExcludedExtensions
	}
	if dto.DiscoveryBatchSize != 0 {
		c.discoveryBatchSize = dto.DiscoveryBatchSize
	}
	return c
}

// WithEnv layers CRAWLER_-prefixed environment variable overrides on top of
// the builder's current state. Unset variables leave the field untouched.
func (c *Config) WithEnv() *Config {
	if v, ok := envStr("CRAWLER_USER_AGENT"); ok {
		c.userAgent = v
	}
	if v, ok := envInt("CRAWLER_MAX_CONCURRENT_REQUESTS"); ok {
		c.maxConcurrentRequests = v
	}
	if v, ok := envInt("CRAWLER_MAX_CONCURRENT_PER_DOMAIN"); ok {
		c.maxConcurrentPerDomain = v
	}
	if v, ok := envFloat("CRAWLER_DEFAULT_QPS_PER_DOMAIN"); ok {
		c.defaultQPSPerDomain = v
	}
	if v, ok := envDuration("CRAWLER_REQUEST_TIMEOUT"); ok {
		c.requestTimeout = v
	}
	if v, ok := envInt64("CRAWLER_MAX_CONTENT_LENGTH"); ok {
		c.maxContentLength = v
	}
	if v, ok := envInt("CRAWLER_MAX_RETRIES"); ok {
		c.maxRetries = v
	}
	if v, ok := envDuration("CRAWLER_BASE_BACKOFF_SECONDS"); ok {
		c.baseBackoffSeconds = v
	}
	if v, ok := envDuration("CRAWLER_MAX_BACKOFF_SECONDS"); ok {
		c.maxBackoffSeconds = v
	}
	if v, ok := envDuration("CRAWLER_ACQUISITION_TTL_SECONDS"); ok {
		c.acquisitionTTL = v
	}
	if v, ok := envDuration("CRAWLER_HEARTBEAT_INTERVAL_SECONDS"); ok {
		c.heartbeatInterval = v
	}
	if v, ok := envStr("CRAWLER_STATE_STORE_BACKEND"); ok {
		c.stateStoreBackend = v
	}
	if v, ok := envStr("CRAWLER_QUEUE_BACKEND"); ok {
		c.queueBackend = v
	}
	if v, ok := envStr("CRAWLER_LEASE_BACKEND"); ok {
		c.leaseBackend = v
	}
	if v, ok := envStr("CRAWLER_BLOB_STORE_BACKEND"); ok {
		c.blobStoreBackend = v
	}
	if v, ok := envStr("CRAWLER_DYNAMO_TABLE_NAME"); ok {
		c.dynamoTableName = v
	}
	if v, ok := envStr("CRAWLER_POSTGRES_DSN"); ok {
		c.postgresDSN = v
	}
	if v, ok := envStr("CRAWLER_SQS_QUEUE_URL"); ok {
		c.sqsQueueURL = v
	}
	if v, ok := envStr("CRAWLER_FILE_QUEUE_DIR"); ok {
		c.fileQueueDir = v
	}
	if v, ok := envStr("CRAWLER_REDIS_ADDR"); ok {
		c.redisAddr = v
	}
	if v, ok := envStr("CRAWLER_S3_BUCKET"); ok {
		c.s3Bucket = v
	}
	if v, ok := envStr("CRAWLER_LOCAL_BLOB_DIR"); ok {
		c.localBlobDir = v
	}
	if v, ok := envStr("CRAWLER_METRICS_ADDR"); ok {
		c.metricsAddr = v
	}
	if v, ok := envStr("CRAWLER_HEALTH_ADDR"); ok {
		c.healthAddr = v
	}
	if v, ok := os.LookupEnv("CRAWLER_DOMAIN_QPS_OVERRIDES"); ok && v != "" {
		var overrides map[string]float64
		if err := json.Unmarshal([]byte(v), &overrides); err == nil {
			c.domainQPSOverrides = overrides
		}
	}
	if v, ok := envInt("CRAWLER_POLL_BATCH_SIZE"); ok {
		c.pollBatchSize = v
	}
	if v, ok := envDuration("CRAWLER_POLL_WAIT_TIME"); ok {
		c.pollWaitTime = v
	}
	if v, ok := envDuration("CRAWLER_EMPTY_POLL_SLEEP"); ok {
		c.emptyPollSleep = v
	}
	if v, ok := envInt("CRAWLER_RATE_LIMIT_CHECK_RETRIES"); ok {
		c.rateLimitCheckRetries = v
	}
	if v, ok := envDuration("CRAWLER_RATE_LIMIT_CHECK_DELAY"); ok {
		c.rateLimitCheckDelay = v
	}
	if v, ok := envDuration("CRAWLER_DRAIN_TIMEOUT"); ok {
		c.drainTimeout = v
	}
	if v, ok := envInt("CRAWLER_SITEMAP_MAX_DEPTH"); ok {
		c.sitemapMaxDepth = v
	}
	if v, ok := envInt("CRAWLER_SITEMAP_MAX_URLS"); ok {
		c.sitemapMaxURLs = v
	}
	if v, ok := envInt("CRAWLER_DISCOVERY_BATCH_SIZE"); ok {
		c.discoveryBatchSize = v
	}
	return c
}

func envStr(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

func envInt(key string) (int, bool) {
	v, ok := envStr(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}

func envInt64(key string) (int64, bool) {
	v, ok := envStr(key)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil
}

func envFloat(key string) (float64, bool) {
	v, ok := envStr(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	return f, err == nil
}

func envDuration(key string) (time.Duration, bool) {
	v, ok := envStr(key)
	if !ok {
		return 0, false
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d, true
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	return 0, false
}

// Build validates and freezes the builder into a Config value.
func (c *Config) Build() (Config, error) {
	if c.heartbeatInterval >= c.acquisitionTTL/2 {
		return Config{}, fmt.Errorf("%w: heartbeat_interval_seconds must be < acquisition_ttl_seconds / 2", ErrInvalidConfig)
	}
	if !validBackend(c.stateStoreBackend, "dynamodb", "postgres", "memory") {
		return Config{}, fmt.Errorf("%w: unknown state store backend %q", ErrInvalidConfig, c.stateStoreBackend)
	}
	if !validBackend(c.queueBackend, "sqs", "file") {
		return Config{}, fmt.Errorf("%w: unknown queue backend %q", ErrInvalidConfig, c.queueBackend)
	}
	if !validBackend(c.leaseBackend, "dynamodb", "redis") {
		return Config{}, fmt.Errorf("%w: unknown lease backend %q", ErrInvalidConfig, c.leaseBackend)
	}
	if !validBackend(c.blobStoreBackend, "s3", "local") {
		return Config{}, fmt.Errorf("%w: unknown blob store backend %q", ErrInvalidConfig, c.blobStoreBackend)
	}
	return *c, nil
}

func validBackend(got string, allowed ...string) bool {
	for _, a := range allowed {
		if strings.EqualFold(got, a) {
			return true
		}
	}
	return false
}

// --- With* builder methods ---

func (c *Config) WithMaxConcurrentRequests(n int) *Config        { c.maxConcurrentRequests = n; return c }
func (c *Config) WithMaxConcurrentPerDomain(n int) *Config       { c.maxConcurrentPerDomain = n; return c }
func (c *Config) WithDefaultQPSPerDomain(qps float64) *Config    { c.defaultQPSPerDomain = qps; return c }
func (c *Config) WithDomainQPSOverrides(m map[string]float64) *Config {
	c.domainQPSOverrides = m
	return c
}
func (c *Config) WithRequestTimeout(d time.Duration) *Config  { c.requestTimeout = d; return c }
func (c *Config) WithUserAgent(ua string) *Config             { c.userAgent = ua; return c }
func (c *Config) WithMaxContentLength(n int64) *Config         { c.maxContentLength = n; return c }
func (c *Config) WithMaxRetries(n int) *Config                 { c.maxRetries = n; return c }
func (c *Config) WithBaseBackoffSeconds(d time.Duration) *Config { c.baseBackoffSeconds = d; return c }
func (c *Config) WithMaxBackoffSeconds(d time.Duration) *Config  { c.maxBackoffSeconds = d; return c }
func (c *Config) WithJitter(d time.Duration) *Config            { c.jitter = d; return c }
func (c *Config) WithRandomSeed(seed int64) *Config             { c.randomSeed = seed; return c }
func (c *Config) WithAcquisitionTTL(d time.Duration) *Config    { c.acquisitionTTL = d; return c }
func (c *Config) WithHeartbeatInterval(d time.Duration) *Config { c.heartbeatInterval = d; return c }
func (c *Config) WithStateStoreBackend(b string) *Config        { c.stateStoreBackend = b; return c }
func (c *Config) WithQueueBackend(b string) *Config              { c.queueBackend = b; return c }
func (c *Config) WithLeaseBackend(b string) *Config              { c.leaseBackend = b; return c }
func (c *Config) WithBlobStoreBackend(b string) *Config          { c.blobStoreBackend = b; return c }
func (c *Config) WithDynamoTableName(s string) *Config           { c.dynamoTableName = s; return c }
func (c *Config) WithPostgresDSN(s string) *Config                { c.postgresDSN = s; return c }
func (c *Config) WithSQSQueueURL(s string) *Config                { c.sqsQueueURL = s; return c }
func (c *Config) WithFileQueueDir(s string) *Config               { c.fileQueueDir = s; return c }
func (c *Config) WithRedisAddr(s string) *Config                  { c.redisAddr = s; return c }
func (c *Config) WithS3Bucket(s string) *Config                   { c.s3Bucket = s; return c }
func (c *Config) WithLocalBlobDir(s string) *Config                { c.localBlobDir = s; return c }
func (c *Config) WithMetricsAddr(s string) *Config                 { c.metricsAddr = s; return c }
func (c *Config) WithHealthAddr(s string) *Config                  { c.healthAddr = s; return c }
func (c *Config) WithDryRun(b bool) *Config                        { c.dryRun = b; return c }
func (c *Config) WithPollBatchSize(n int) *Config                   { c.pollBatchSize = n; return c }
func (c *Config) WithPollWaitTime(d time.Duration) *Config          { c.pollWaitTime = d; return c }
func (c *Config) WithEmptyPollSleep(d time.Duration) *Config        { c.emptyPollSleep = d; return c }
func (c *Config) WithRateLimitCheckRetries(n int) *Config           { c.rateLimitCheckRetries = n; return c }
func (c *Config) WithRateLimitCheckDelay(d time.Duration) *Config   { c.rateLimitCheckDelay = d; return c }
func (c *Config) WithDrainTimeout(d time.Duration) *Config          { c.drainTimeout = d; return c }
func (c *Config) WithSitemapMaxDepth(n int) *Config                 { c.sitemapMaxDepth = n; return c }
func (c *Config) WithSitemapMaxURLs(n int) *Config                  { c.sitemapMaxURLs = n; return c }
func (c *Config) WithSitemapMaxURLLength(n int) *Config             { c.sitemapMaxURLLength = n; return c }
func (c *Config) WithSitemapExcludedExtensions(exts []string) *Config {
	c.sitemapExcludedExtensions = exts
	return c
}
func (c *Config) WithDiscoveryBatchSize(n int) *Config { c.discoveryBatchSize = n; return c }

// --- getters ---

func (c Config) MaxConcurrentRequests() int            { return c.maxConcurrentRequests }
func (c Config) MaxConcurrentPerDomain() int           { return c.maxConcurrentPerDomain }
func (c Config) DefaultQPSPerDomain() float64          { return c.defaultQPSPerDomain }
func (c Config) DomainQPSOverrides() map[string]float64 {
	out := make(map[string]float64, len(c.domainQPSOverrides))
	for k, v := range c.domainQPSOverrides {
		out[k] = v
	}
	return out
}
func (c Config) RequestTimeout() time.Duration    { return c.requestTimeout }
func (c Config) UserAgent() string                { return c.userAgent }
func (c Config) MaxContentLength() int64          { return c.maxContentLength }
func (c Config) MaxRetries() int                  { return c.maxRetries }
func (c Config) BaseBackoffSeconds() time.Duration { return c.baseBackoffSeconds }
func (c Config) MaxBackoffSeconds() time.Duration  { return c.maxBackoffSeconds }
func (c Config) Jitter() time.Duration             { return c.jitter }
func (c Config) RandomSeed() int64                 { return c.randomSeed }
func (c Config) AcquisitionTTL() time.Duration      { return c.acquisitionTTL }
func (c Config) HeartbeatInterval() time.Duration   { return c.heartbeatInterval }
func (c Config) RateLimitWindowSeconds() int        { return c.rateLimitWindowSeconds }
func (c Config) BloomCapacity() int                 { return c.bloomCapacity }
func (c Config) BloomErrorRate() float64            { return c.bloomErrorRate }
func (c Config) RobotsTTL() time.Duration           { return c.robotsTTL }
func (c Config) RobotsSentinelTTL() time.Duration   { return c.robotsSentinelTTL }
func (c Config) StateStoreBackend() string          { return c.stateStoreBackend }
func (c Config) QueueBackend() string               { return c.queueBackend }
func (c Config) LeaseBackend() string               { return c.leaseBackend }
func (c Config) BlobStoreBackend() string           { return c.blobStoreBackend }
func (c Config) DynamoTableName() string            { return c.dynamoTableName }
func (c Config) PostgresDSN() string                { return c.postgresDSN }
func (c Config) SQSQueueURL() string                { return c.sqsQueueURL }
func (c Config) FileQueueDir() string               { return c.fileQueueDir }
func (c Config) RedisAddr() string                  { return c.redisAddr }
func (c Config) S3Bucket() string                   { return c.s3Bucket }
func (c Config) LocalBlobDir() string               { return c.localBlobDir }
func (c Config) MetricsAddr() string                { return c.metricsAddr }
func (c Config) HealthAddr() string                  { return c.healthAddr }
func (c Config) DryRun() bool                        { return c.dryRun }
func (c Config) PollBatchSize() int                   { return c.pollBatchSize }
func (c Config) PollWaitTime() time.Duration          { return c.pollWaitTime }
func (c Config) EmptyPollSleep() time.Duration        { return c.emptyPollSleep }
func (c Config) RateLimitCheckRetries() int           { return c.rateLimitCheckRetries }
func (c Config) RateLimitCheckDelay() time.Duration   { return c.rateLimitCheckDelay }
func (c Config) DrainTimeout() time.Duration          { return c.drainTimeout }
func (c Config) SitemapMaxDepth() int                 { return c.sitemapMaxDepth }
func (c Config) SitemapMaxURLs() int                  { return c.sitemapMaxURLs }
func (c Config) SitemapMaxURLLength() int             { return c.sitemapMaxURLLength }
func (c Config) SitemapExcludedExtensions() []string {
	out := make([]string, len(c.sitemapExcludedExtensions))
	copy(out, c.sitemapExcludedExtensions)
	return out
}
func (c Config) DiscoveryBatchSize() int { return c.discoveryBatchSize }
