package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/r3e-collective/ticketflow/internal/resilience"
)

func TestHandlerServesRegisteredCollectors(t *testing.T) {
	r := New()
	r.JobsTotal.WithLabelValues("tenant-a", "completed").Inc()
	r.RecordBreakerState("notifier", resilience.StateOpen)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	if !strings.Contains(body, "ticketflow_orchestrator_jobs_total") {
		t.Fatalf("expected jobs_total metric in output, got:\n%s", body)
	}
	if !strings.Contains(body, "ticketflow_breaker_state") {
		t.Fatalf("expected breaker_state metric in output")
	}
}

func TestRecordBreakerStateMapsStates(t *testing.T) {
	r := New()

	r.RecordBreakerState("notifier", resilience.StateClosed)
	if got := testutil.ToFloat64(r.BreakerState.WithLabelValues("notifier")); got != 0 {
		t.Fatalf("expected closed to map to 0, got %v", got)
	}

	r.RecordBreakerState("notifier", resilience.StateOpen)
	if got := testutil.ToFloat64(r.BreakerState.WithLabelValues("notifier")); got != 2 {
		t.Fatalf("expected open to map to 2, got %v", got)
	}
}
