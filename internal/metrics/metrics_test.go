package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequestCountsByOpAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest("list_tasks", 200, 10*time.Millisecond)
	c.RecordRequest("list_tasks", 200, 20*time.Millisecond)
	c.RecordRequest("list_tasks", 401, 5*time.Millisecond)

	if got := testutil.ToFloat64(c.requests.WithLabelValues("list_tasks", "200")); got != 2 {
		t.Errorf("200 count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues("list_tasks", "401")); got != 1 {
		t.Errorf("401 count = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.latency); got != 1 {
		t.Errorf("latency series = %d, want 1", got)
	}
}

func TestRecordTransportErrorAndSession(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTransportError("login")
	c.RecordSessionTransition("authenticated")
	c.RecordSessionTransition("authenticated")

	if got := testutil.ToFloat64(c.transportErrors.WithLabelValues("login")); got != 1 {
		t.Errorf("transport errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.sessions.WithLabelValues("authenticated")); got != 2 {
		t.Errorf("session transitions = %v, want 2", got)
	}
}

func TestSetupMetricsRouteServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRequest("login", 200, time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	SetupMetricsRoute(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "lazytodo_api_requests_total") {
		t.Error("response should contain lazytodo_api_requests_total")
	}
}
