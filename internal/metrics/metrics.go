// Package metrics exposes the fabric's operational counters (messages received/
// processed/failed, URLs crawled success/failure, lock acquisitions,
// domains processed, queue depths, per-error-kind counts, task duration,
// peak concurrency) as Prometheus collectors: package-level collectors
// registered against the default registry and mutated through small
// Record* helpers.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crawlfabric"

var (
	MessagesReceivedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_received_total",
		Help:      "Queue messages received, by queue name.",
	}, []string{"queue"})

	MessagesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_processed_total",
		Help:      "Queue messages fully processed (acked), by queue name.",
	}, []string{"queue"})

	MessagesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_failed_total",
		Help:      "Queue messages that ended in a dead-letter or unrecoverable error, by queue name.",
	}, []string{"queue"})

	URLsCrawledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "urls_crawled_total",
		Help:      "Fetches completed, by outcome (success|failure).",
	}, []string{"outcome"})

	LockAcquisitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lease_acquisitions_total",
		Help:      "Lease acquisition attempts, by outcome (success|conflict).",
	}, []string{"outcome"})

	DomainsProcessedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "domains_processed_total",
		Help:      "Discovery messages processed to completion.",
	})

	RobotsBlockedDomainsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "robots_blocked_domains_total",
		Help:      "Domains skipped entirely because robots.txt disallows the root path.",
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Last-observed approximate depth, by queue name.",
	}, []string{"queue"})

	ErrorsByKindTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Classified fetch/robots/storage errors, by classify.Kind.",
	}, []string{"kind"})

	TaskDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Wall-clock duration of one worker-loop crawl task, by outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	PeakConcurrency = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "peak_concurrency",
		Help:      "High-water mark of concurrently in-flight fetch tasks.",
	})
)

// RecordMessageReceived increments MessagesReceivedTotal for queue.
func RecordMessageReceived(queue string) { MessagesReceivedTotal.WithLabelValues(queue).Inc() }

// RecordMessageProcessed increments MessagesProcessedTotal for queue.
func RecordMessageProcessed(queue string) { MessagesProcessedTotal.WithLabelValues(queue).Inc() }

// RecordMessageFailed increments MessagesFailedTotal for queue.
func RecordMessageFailed(queue string) { MessagesFailedTotal.WithLabelValues(queue).Inc() }

// RecordFetchOutcome increments URLsCrawledTotal for "success" or "failure".
func RecordFetchOutcome(success bool) {
	if success {
		URLsCrawledTotal.WithLabelValues("success").Inc()
		return
	}
	URLsCrawledTotal.WithLabelValues("failure").Inc()
}

// RecordLeaseAcquisition increments LockAcquisitionsTotal for "success" or
// "conflict".
func RecordLeaseAcquisition(acquired bool) {
	if acquired {
		LockAcquisitionsTotal.WithLabelValues("success").Inc()
		return
	}
	LockAcquisitionsTotal.WithLabelValues("conflict").Inc()
}

// RecordDomainProcessed increments DomainsProcessedTotal.
func RecordDomainProcessed() { DomainsProcessedTotal.Inc() }

// RecordRobotsBlockedDomain increments RobotsBlockedDomainsTotal.
func RecordRobotsBlockedDomain() { RobotsBlockedDomainsTotal.Inc() }

// SetQueueDepth records the last-observed depth for queue.
func SetQueueDepth(queue string, depth float64) { QueueDepth.WithLabelValues(queue).Set(depth) }

// RecordError increments ErrorsByKindTotal for kind.
func RecordError(kind string) { ErrorsByKindTotal.WithLabelValues(kind).Inc() }

// ObserveTaskDuration records seconds against TaskDurationSeconds for outcome.
func ObserveTaskDuration(outcome string, seconds float64) {
	TaskDurationSeconds.WithLabelValues(outcome).Observe(seconds)
}

// SetPeakConcurrency reports the current high-water mark; callers pass the
// maximum they have observed so far, e.g. from concurrency.Manager.Stats.
func SetPeakConcurrency(n float64) { PeakConcurrency.Set(n) }
