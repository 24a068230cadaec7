package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"github api", "https://api.github.com/repos/electron/electron/releases?page=2", "api.github.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObserveSourceFetch(t *testing.T) {
	before := testutil.ToFloat64(sourceFetchesTotal.WithLabelValues("chromium", "degraded"))
	ObserveSourceFetch("chromium", "degraded", 15)
	if got := testutil.ToFloat64(sourceFetchesTotal.WithLabelValues("chromium", "degraded")); got != before+1 {
		t.Fatalf("expected fetch counter to increase by 1, got %f -> %f", before, got)
	}
	if got := testutil.ToFloat64(sourceReleases.WithLabelValues("chromium")); got != 15 {
		t.Fatalf("expected release gauge 15, got %f", got)
	}
}

func TestObserveRefreshAndInFlight(t *testing.T) {
	before := testutil.ToFloat64(refreshRunsTotal.WithLabelValues("ok"))
	ObserveRefresh("ok", 250*time.Millisecond)
	if got := testutil.ToFloat64(refreshRunsTotal.WithLabelValues("ok")); got != before+1 {
		t.Fatalf("expected refresh counter to increase, got %f -> %f", before, got)
	}

	base := testutil.ToFloat64(refreshInFlight)
	IncRefreshInFlight()
	if got := testutil.ToFloat64(refreshInFlight); got != base+1 {
		t.Fatalf("expected in-flight %f, got %f", base+1, got)
	}
	DecRefreshInFlight()
	if got := testutil.ToFloat64(refreshInFlight); got != base {
		t.Fatalf("expected in-flight %f, got %f", base, got)
	}
}

func TestObserveWebhookDelivery(t *testing.T) {
	before := testutil.ToFloat64(webhookDeliveriesTotal.WithLabelValues("delete", "failed"))
	ObserveWebhookDelivery("delete", "failed")
	ObserveWebhookDelivery("delete", "failed")
	if got := testutil.ToFloat64(webhookDeliveriesTotal.WithLabelValues("delete", "failed")); got != before+2 {
		t.Fatalf("expected 2 new failures, got %f -> %f", before, got)
	}
}

func TestObserveUpstreamRequestUsesHost(t *testing.T) {
	before := testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("chromiumdash.appspot.com", "200"))
	ObserveUpstreamRequest("https://chromiumdash.appspot.com/fetch_milestone_schedule", 200, time.Second)
	if got := testutil.ToFloat64(upstreamRequestsTotal.WithLabelValues("chromiumdash.appspot.com", "200")); got != before+1 {
		t.Fatalf("expected upstream counter to increase, got %f -> %f", before, got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://api.github.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
