package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("reading counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsRegistered(t *testing.T) {
	RecordAuthDecision(OutcomeAuthenticated)
	KeysIssued.Inc()
	RequestsTotal.WithLabelValues("GET", "2xx").Inc()
	RequestDuration.WithLabelValues("GET").Observe(0.01)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	expected := map[string]bool{
		"broodpress_auth_decisions_total":         false,
		"broodpress_api_keys_issued_total":        false,
		"broodpress_http_requests_total":          false,
		"broodpress_http_request_duration_seconds": false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		if !found {
			t.Errorf("metric %s not registered", name)
		}
	}
}

func TestRecordAuthDecision(t *testing.T) {
	before := counterValue(t, AuthDecisions.WithLabelValues(OutcomeForbidden))
	RecordAuthDecision(OutcomeForbidden)
	after := counterValue(t, AuthDecisions.WithLabelValues(OutcomeForbidden))

	if after-before != 1 {
		t.Errorf("expected forbidden counter to grow by 1, grew by %v", after-before)
	}
}

func TestMiddleware_RecordsStatusClass(t *testing.T) {
	before := counterValue(t, RequestsTotal.WithLabelValues("DELETE", "4xx"))

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.WriteHeader(http.StatusOK) // ignored, first status wins
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/x", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}
	after := counterValue(t, RequestsTotal.WithLabelValues("DELETE", "4xx"))
	if after-before != 1 {
		t.Errorf("expected 4xx counter to grow by 1, grew by %v", after-before)
	}
}

func TestMiddleware_ImplicitOK(t *testing.T) {
	before := counterValue(t, RequestsTotal.WithLabelValues("PATCH", "2xx"))

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPatch, "/", nil))

	after := counterValue(t, RequestsTotal.WithLabelValues("PATCH", "2xx"))
	if after-before != 1 {
		t.Errorf("expected 2xx counter to grow by 1, grew by %v", after-before)
	}
}

func TestHandler_ServesExposition(t *testing.T) {
	KeysIssued.Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "broodpress_api_keys_issued_total") {
		t.Error("exposition missing broodpress_api_keys_issued_total")
	}
}
