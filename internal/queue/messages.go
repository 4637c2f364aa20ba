package queue

import (
	"encoding/json"
	"time"
)

// DiscoveryMessage seeds discovery: walk domain's robots/sitemaps and enqueue
// CrawlMessages for whatever survives deduplication. Idempotent under
// retry since domain is the natural key.
type DiscoveryMessage struct {
	Domain         string `json:"domain"`
	Priority       int    `json:"priority"`
	MaxURLs        int    `json:"max_urls,omitempty"`
	DiscoveryDepth int    `json:"discovery_depth"`
	RequesterID    string `json:"requester_id,omitempty"`
}

// CrawlMessage is one URL awaiting fetch by a worker. Redelivery is
// harmless: dedup and the lease both reject a URL already handled.
type CrawlMessage struct {
	URL             string `json:"url"`
	Domain          string `json:"domain"`
	Priority        int    `json:"priority"`
	RetryCount      int    `json:"retry_count"`
	DiscoverySource string `json:"discovery_source,omitempty"`
}

// IndexingMessage hands a successfully-fetched URL off to a downstream
// indexer outside this fabric.
type IndexingMessage struct {
	URL               string    `json:"url"`
	URLHash           string    `json:"url_hash"`
	Domain            string    `json:"domain"`
	RawBlobKey        string    `json:"raw_blob_key"`
	ParsedBlobKey     string    `json:"parsed_blob_key,omitempty"`
	FetchedAt         time.Time `json:"fetched_at"`
	StatusCode        int       `json:"status_code"`
	ContentLength     int64     `json:"content_length"`
	Language          string    `json:"language,omitempty"`
	ProcessingPriority int      `json:"processing_priority"`
}

// DeadLetterMessage wraps an undeliverable message with why it failed.
type DeadLetterMessage struct {
	OriginalMessage []byte          `json:"original_message"`
	ErrorReason     string          `json:"error_reason"`
	FailedAt        time.Time       `json:"failed_at"`
	CrawlerID       string          `json:"crawler_id"`
}

// Marshal is a small convenience wrapper so callers don't sprinkle
// encoding/json imports through the worker and discovery packages.
func Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal is the Marshal counterpart.
func Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
