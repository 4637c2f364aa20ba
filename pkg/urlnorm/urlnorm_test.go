package urlnorm

import "testing"

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"trailing slash removed", "https://docs.example.com/guide/", "https://docs.example.com/guide"},
		{"no trailing slash stays same", "https://docs.example.com/guide", "https://docs.example.com/guide"},
		{"fragment removed", "https://docs.example.com/guide#index", "https://docs.example.com/guide"},
		{"query sorted by key", "https://docs.example.com/guide?b=2&a=1", "https://docs.example.com/guide?a=1&b=2"},
		{"query sorted by value within key", "https://docs.example.com/guide?a=2&a=1", "https://docs.example.com/guide?a=1&a=2"},
		{"scheme lowercased", "HTTPS://docs.example.com/guide", "https://docs.example.com/guide"},
		{"host lowercased", "https://DOCS.EXAMPLE.COM/guide", "https://docs.example.com/guide"},
		{"default http port removed", "http://docs.example.com:80/guide", "http://docs.example.com/guide"},
		{"default https port removed", "https://docs.example.com:443/guide", "https://docs.example.com/guide"},
		{"non-default port kept", "https://docs.example.com:8443/guide", "https://docs.example.com:8443/guide"},
		{"empty path becomes root", "https://docs.example.com", "https://docs.example.com/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.expected {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.input, got.String(), tt.expected)
			}
		})
	}
}

func TestCanonicalizeRejectsUnsupportedScheme(t *testing.T) {
	_, err := Canonicalize("ftp://example.com/file")
	if err == nil {
		t.Fatal("expected BadURL error for ftp scheme")
	}
	var bad *BadURL
	if !assignableTo(err, &bad) {
		t.Fatalf("expected *BadURL, got %T", err)
	}
	if bad.IsRetryable() {
		t.Error("BadURL must not be retryable")
	}
}

func TestCanonicalizeRejectsMissingHost(t *testing.T) {
	_, err := Canonicalize("https:///guide")
	if err == nil {
		t.Fatal("expected BadURL error for missing host")
	}
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	first, err := Canonicalize("HTTPS://Docs.Example.com:443/Guide/?b=2&a=1#frag")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := CanonicalizeURL(first)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.String() != second.String() {
		t.Errorf("Canonicalize is not idempotent: %q != %q", first.String(), second.String())
	}
}

func TestHashRoundTrip(t *testing.T) {
	a, err := Canonicalize("https://docs.example.com/guide?a=1&b=2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := Canonicalize("HTTPS://DOCS.EXAMPLE.COM:443/guide?b=2&a=1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Hash(a) != Hash(b) {
		t.Errorf("expected equal hashes for equivalent URLs, got %s != %s", Hash(a), Hash(b))
	}
	if len(Hash(a)) != 64 {
		t.Errorf("expected 64-hex hash, got %d chars", len(Hash(a)))
	}
}

func TestDomainExtractsRegistrableHost(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"https://docs.example.com/guide", "example.com"},
		{"https://a.b.example.co.uk/guide", "example.co.uk"},
		{"https://example.com/guide", "example.com"},
	}
	for _, tt := range tests {
		canonical, err := Canonicalize(tt.input)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := Domain(canonical); got != tt.expected {
			t.Errorf("Domain(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func assignableTo(err error, target **BadURL) bool {
	b, ok := err.(*BadURL)
	if !ok {
		return false
	}
	*target = b
	return true
}
