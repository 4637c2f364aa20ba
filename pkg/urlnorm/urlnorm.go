// Package urlnorm computes the canonical form and stable hash identity for
// a crawled URL.
package urlnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/crawlfabric/crawlfabric/pkg/failure"
)

// BadURLCause enumerates why Canonicalize rejected a URL.
type BadURLCause string

const (
	ErrCauseUnsupportedScheme = "unsupported scheme"
	ErrCauseMissingHost       = "missing host"
)

// BadURL is returned when a raw URL string cannot be normalized.
type BadURL struct {
	Message string
	Cause   BadURLCause
}

func (e *BadURL) Error() string {
	return fmt.Sprintf("bad url: %s: %s", e.Cause, e.Message)
}

// BadURL is always a terminal, non-retryable condition: no amount of
// retrying turns an unsupported scheme into a supported one.
func (e *BadURL) Severity() failure.Severity {
	return failure.SeverityFatal
}

func (e *BadURL) IsRetryable() bool {
	return false
}

// Canonicalize normalizes a raw URL string into its canonical form, applying
// the rules in order: require scheme in {http, https}; lowercase scheme and
// host; strip default port; ensure path is at least "/"; drop trailing "/"
// except for root; sort query parameters by (key, value) and re-encode with
// canonical escapes; drop the fragment.
//
// Canonicalize is pure, deterministic, and idempotent:
// Canonicalize(Canonicalize(x)) == Canonicalize(x).
func Canonicalize(raw string) (url.URL, failure.ClassifiedError) {
	u, err := url.Parse(raw)
	if err != nil {
		return url.URL{}, &BadURL{Message: err.Error(), Cause: ErrCauseUnsupportedScheme}
	}
	return CanonicalizeURL(*u)
}

// CanonicalizeURL applies the same rules as Canonicalize to an already
// parsed url.URL.
func CanonicalizeURL(sourceURL url.URL) (url.URL, failure.ClassifiedError) {
	canonical := sourceURL

	canonical.Scheme = strings.ToLower(canonical.Scheme)
	if canonical.Scheme != "http" && canonical.Scheme != "https" {
		return url.URL{}, &BadURL{
			Message: fmt.Sprintf("scheme %q not in {http, https}", canonical.Scheme),
			Cause:   ErrCauseUnsupportedScheme,
		}
	}

	canonical.Host = strings.ToLower(canonical.Host)
	if canonical.Hostname() == "" {
		return url.URL{}, &BadURL{Message: "host is absent", Cause: ErrCauseMissingHost}
	}

	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	if canonical.Path == "" {
		canonical.Path = "/"
	}
	if len(canonical.Path) > 1 {
		canonical.Path = strings.TrimRight(canonical.Path, "/")
		if canonical.Path == "" {
			canonical.Path = "/"
		}
	}

	canonical.RawQuery = sortedQuery(canonical.Query())

	canonical.Fragment = ""
	canonical.RawFragment = ""

	return canonical, nil
}

// sortedQuery re-encodes q with keys sorted ascending and, within a key,
// values sorted ascending, using url.Values.Encode's canonical escaping.
func sortedQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sorted := make(url.Values, len(q))
	for _, k := range keys {
		vs := append([]string(nil), q[k]...)
		sort.Strings(vs)
		sorted[k] = vs
	}
	return sorted.Encode()
}

// Hash returns the 64-hex SHA-256 digest of a canonical URL's string form.
// Two URLs have the same hash iff their canonical forms are byte-identical.
func Hash(canonical url.URL) string {
	sum := sha256.Sum256([]byte(canonical.String()))
	return hex.EncodeToString(sum[:])
}

// NormalizeAndHash is the convenience entrypoint most callers use: parse,
// canonicalize, and hash a raw URL string in one call.
func NormalizeAndHash(raw string) (url.URL, string, failure.ClassifiedError) {
	canonical, err := Canonicalize(raw)
	if err != nil {
		return url.URL{}, "", err
	}
	return canonical, Hash(canonical), nil
}

// Domain extracts the registrable domain (e.g. "example.com" for
// "docs.example.com") from a canonical URL, the value URLRecord.Domain and
// every per-domain coordination structure (rate limiter, concurrency
// manager) key on. Returns the bare hostname for a raw IP literal, or when
// the public suffix list cannot split the host (e.g. the host is itself a
// public suffix), so callers always get a usable partition key.
func Domain(canonical url.URL) string {
	host := canonical.Hostname()
	if net.ParseIP(host) != nil {
		return host
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return registrable
}

// NormalizeAndHashWithDomain is NormalizeAndHash plus the registrable
// domain, the shape the worker and discovery loops actually consume.
func NormalizeAndHashWithDomain(raw string) (canonical url.URL, hash, domain string, err failure.ClassifiedError) {
	canonical, hash, err = NormalizeAndHash(raw)
	if err != nil {
		return url.URL{}, "", "", err
	}
	return canonical, hash, Domain(canonical), nil
}
