package obslog

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestErrorLogsAllowListedFields(t *testing.T) {
	var buf bytes.Buffer
	log := New("test-component", &buf, zerolog.InfoLevel)

	log.Error(CauseNetworkFailure, "fetch", "fetch_url", errors.New("boom"), Fields{
		"url":  "https://example.com/a",
		"host": "example.com",
	})

	out := buf.String()
	for _, want := range []string{`"component":"test-component"`, `"cause":"network_failure"`, `"url":"https://example.com/a"`, `"err_component":"fetch"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log line to contain %q, got: %s", want, out)
		}
	}
}

func TestWithAddsSubcomponent(t *testing.T) {
	var buf bytes.Buffer
	log := New("worker", &buf, zerolog.InfoLevel).With("lease")
	log.Info("acquired", Fields{"url_hash": "abc123"})

	out := buf.String()
	if !strings.Contains(out, `"subcomponent":"lease"`) {
		t.Errorf("expected subcomponent field, got: %s", out)
	}
}

func TestCauseStringUnknownDefault(t *testing.T) {
	var c ErrorCause = 999
	if c.String() != "unknown" {
		t.Errorf("expected unknown for unmapped cause, got %s", c.String())
	}
}
