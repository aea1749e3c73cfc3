package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMetricsExposedOnScrapeEndpoint(t *testing.T) {
	metrics := NewMetrics()
	metrics.SpinFinished("completed")
	metrics.SpinFinished("completed")
	metrics.SpinFinished("compensated")
	metrics.RefundEscalated()
	metrics.ObserveSpin(25 * time.Millisecond)
	metrics.ObserveStep("reserve", 5*time.Millisecond)
	metrics.RateLimitWait(10 * time.Millisecond)
	metrics.WSConnected()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		`spindle_spins_total{state="completed"} 2`,
		`spindle_spins_total{state="compensated"} 1`,
		`spindle_refund_escalations_total 1`,
		`spindle_rate_limit_waits_total 1`,
		`spindle_websocket_connections 1`,
		`spindle_saga_step_duration_seconds_count{step="reserve"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("scrape output missing %q:\n%s", want, body)
		}
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var metrics *Metrics
	metrics.SpinFinished("completed")
	metrics.RefundEscalated()
	metrics.ObserveSpin(time.Millisecond)
	metrics.ObserveStep("settle", time.Millisecond)
	metrics.RateLimitWait(time.Millisecond)
	metrics.WSConnected()
	metrics.WSDisconnected()
	if metrics.Registry() != nil {
		t.Fatal("nil metrics returned a registry")
	}
}

func TestWSGaugeTracksConnections(t *testing.T) {
	metrics := NewMetrics()
	metrics.WSConnected()
	metrics.WSConnected()
	metrics.WSDisconnected()

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "spindle_websocket_connections 1") {
		t.Fatalf("gauge not at 1:\n%s", rec.Body.String())
	}
}
