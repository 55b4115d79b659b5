package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew(t *testing.T) {
	r := New()
	if r == nil || r.reg == nil {
		t.Fatal("expected non-nil Registry")
	}
	if r.RequestsTotal == nil || r.RequestLatency == nil || r.FallbacksTotal == nil || r.ProviderHealthy == nil || r.TokensTotal == nil {
		t.Fatal("expected every collector to be initialised")
	}
}

func TestCounters(t *testing.T) {
	r := New()

	r.RequestsTotal.WithLabelValues("gemini", "remote").Inc()
	r.RequestsTotal.WithLabelValues("gemini", "remote").Inc()
	r.FallbacksTotal.WithLabelValues("gemini", "openai").Inc()
	r.ProviderHealthy.WithLabelValues("gemini").Set(0)

	if got := testutil.ToFloat64(r.RequestsTotal.WithLabelValues("gemini", "remote")); got != 2 {
		t.Errorf("expected 2 requests, got %v", got)
	}
	if got := testutil.ToFloat64(r.FallbacksTotal.WithLabelValues("gemini", "openai")); got != 1 {
		t.Errorf("expected 1 fallback, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.RequestsTotal.WithLabelValues("local", "local").Inc()

	w := httptest.NewRecorder()
	r.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "assistant_requests_total") {
		t.Errorf("expected assistant_requests_total in output")
	}
}
