// Package cli binds the configuration surface shared by every crawlfabric
// binary (crawlworker, crawldiscover, crawlreclaim, crawlctl) onto a cobra
// command's persistent flags, then resolves a config.Config by layering
// flags over a config file over the fabric's defaults.
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/crawlfabric/crawlfabric/internal/config"
)

// Flags holds the destinations cobra populates from persistent flags. A
// zero value for any numeric/duration field means "not set on the command
// line", so it is never applied over the config-file/default layers.
type Flags struct {
	configFile            string
	maxConcurrentRequests int
	requestTimeout        time.Duration
	userAgent             string
	maxRetries            int
	acquisitionTTL        time.Duration
	heartbeatInterval     time.Duration
	stateStoreBackend     string
	queueBackend          string
	leaseBackend          string
	blobStoreBackend      string
	dryRun                bool
}

// BindPersistentFlags registers the shared configuration flags on cmd's
// persistent flag set and returns the destination struct to pass to Load.
func BindPersistentFlags(cmd *cobra.Command) *Flags {
	f := &Flags{}
	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configFile, "config-file", "", "path to a JSON config file")
	pf.IntVar(&f.maxConcurrentRequests, "max-concurrent-requests", 0, "global task parallelism cap")
	pf.DurationVar(&f.requestTimeout, "request-timeout", 0, "HTTP per-request timeout")
	pf.StringVar(&f.userAgent, "user-agent", "", "User-Agent header and robots identity")
	pf.IntVar(&f.maxRetries, "max-retries", 0, "maximum retries of a failed fetch before giving up")
	pf.DurationVar(&f.acquisitionTTL, "acquisition-ttl", 0, "initial URL lease TTL")
	pf.DurationVar(&f.heartbeatInterval, "heartbeat-interval", 0, "lease extension cadence")
	pf.StringVar(&f.stateStoreBackend, "state-store-backend", "", "dynamodb | postgres | memory")
	pf.StringVar(&f.queueBackend, "queue-backend", "", "sqs | file")
	pf.StringVar(&f.leaseBackend, "lease-backend", "", "dynamodb | redis")
	pf.StringVar(&f.blobStoreBackend, "blob-store-backend", "", "s3 | local")
	pf.BoolVar(&f.dryRun, "dry-run", false, "log at debug level")
	return f
}

// Load resolves a Config by starting from the fabric defaults, applying a
// config file if one was given, layering environment variables, and
// finally applying any flags the caller explicitly set.
func (f *Flags) Load() (config.Config, error) {
	builder := config.WithDefault()

	if f.configFile != "" {
		fileCfg, err := config.WithConfigFile(f.configFile)
		if err != nil {
			return config.Config{}, fmt.Errorf("loading config file %s: %w", f.configFile, err)
		}
		builder = fileCfgToBuilder(fileCfg)
	}

	builder = builder.WithEnv()
	f.applyTo(builder)

	return builder.Build()
}

// fileCfgToBuilder re-seeds a builder from an already-built Config so flag
// and env overrides can still be layered on top of a loaded file.
func fileCfgToBuilder(c config.Config) *config.Config {
	return config.WithDefault().
		WithMaxConcurrentRequests(c.MaxConcurrentRequests()).
		WithMaxConcurrentPerDomain(c.MaxConcurrentPerDomain()).
		WithDefaultQPSPerDomain(c.DefaultQPSPerDomain()).
		WithDomainQPSOverrides(c.DomainQPSOverrides()).
		WithRequestTimeout(c.RequestTimeout()).
		WithUserAgent(c.UserAgent()).
		WithMaxContentLength(c.MaxContentLength()).
		WithMaxRetries(c.MaxRetries()).
		WithBaseBackoffSeconds(c.BaseBackoffSeconds()).
		WithMaxBackoffSeconds(c.MaxBackoffSeconds()).
		WithAcquisitionTTL(c.AcquisitionTTL()).
		WithHeartbeatInterval(c.HeartbeatInterval()).
		WithJitter(c.Jitter()).
		WithRandomSeed(c.RandomSeed()).
		WithStateStoreBackend(c.StateStoreBackend()).
		WithQueueBackend(c.QueueBackend()).
		WithLeaseBackend(c.LeaseBackend()).
		WithBlobStoreBackend(c.BlobStoreBackend()).
		WithDynamoTableName(c.DynamoTableName()).
		WithPostgresDSN(c.PostgresDSN()).
		WithSQSQueueURL(c.SQSQueueURL()).
		WithFileQueueDir(c.FileQueueDir()).
		WithRedisAddr(c.RedisAddr()).
		WithS3Bucket(c.S3Bucket()).
		WithLocalBlobDir(c.LocalBlobDir()).
		WithMetricsAddr(c.MetricsAddr()).
		WithHealthAddr(c.HealthAddr()).
		WithDryRun(c.DryRun()).
		WithPollBatchSize(c.PollBatchSize()).
		WithPollWaitTime(c.PollWaitTime()).
		WithEmptyPollSleep(c.EmptyPollSleep()).
		WithRateLimitCheckRetries(c.RateLimitCheckRetries()).
		WithRateLimitCheckDelay(c.RateLimitCheckDelay()).
		WithDrainTimeout(c.DrainTimeout()).
		WithSitemapMaxDepth(c.SitemapMaxDepth()).
		WithSitemapMaxURLs(c.SitemapMaxURLs()).
		WithSitemapMaxURLLength(c.SitemapMaxURLLength()).
		WithSitemapExcludedExtensions(c.SitemapExcludedExtensions()).
		WithDiscoveryBatchSize(c.DiscoveryBatchSize())
}

func (f *Flags) applyTo(b *config.Config) {
	if f.maxConcurrentRequests > 0 {
		b.WithMaxConcurrentRequests(f.maxConcurrentRequests)
	}
	if f.requestTimeout > 0 {
		b.WithRequestTimeout(f.requestTimeout)
	}
	if f.userAgent != "" {
		b.WithUserAgent(f.userAgent)
	}
	if f.maxRetries > 0 {
		b.WithMaxRetries(f.maxRetries)
	}
	if f.acquisitionTTL > 0 {
		b.WithAcquisitionTTL(f.acquisitionTTL)
	}
	if f.heartbeatInterval > 0 {
		b.WithHeartbeatInterval(f.heartbeatInterval)
	}
	if f.stateStoreBackend != "" {
		b.WithStateStoreBackend(f.stateStoreBackend)
	}
	if f.queueBackend != "" {
		b.WithQueueBackend(f.queueBackend)
	}
	if f.leaseBackend != "" {
		b.WithLeaseBackend(f.leaseBackend)
	}
	if f.blobStoreBackend != "" {
		b.WithBlobStoreBackend(f.blobStoreBackend)
	}
	if f.dryRun {
		b.WithDryRun(true)
	}
}
