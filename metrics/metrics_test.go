package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsMiddlewareUsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Metrics)
	r.Get("/data/*", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues("GET", "/data/*", "404"))
	for _, path := range []string{"/data/ndc_000.json", "/data/ndc_123.json"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}
	after := testutil.ToFloat64(HTTPRequestTotals.WithLabelValues("GET", "/data/*", "404"))

	if after-before != 2 {
		t.Errorf("Expected 2 requests on the route pattern, got %v", after-before)
	}
	if v := testutil.ToFloat64(HTTPRequestInFlight); v != 0 {
		t.Errorf("Expected no in-flight requests, got %v", v)
	}
}

func TestObservePipeline(t *testing.T) {
	failures := testutil.ToFloat64(PipelineRunsTotal.WithLabelValues("failure"))
	ObservePipeline(time.Second, map[string]int{"emitted": 99}, errors.New("boom"))
	if testutil.ToFloat64(PipelineRunsTotal.WithLabelValues("failure"))-failures != 1 {
		t.Error("Expected a failure to be counted")
	}

	ObservePipeline(2*time.Second, map[string]int{"emitted": 12, "skipped": 3}, nil)
	if v := testutil.ToFloat64(PipelineRecords.WithLabelValues("emitted")); v != 12 {
		t.Errorf("Expected emitted gauge 12, got %v", v)
	}
	if v := testutil.ToFloat64(PipelineLastSuccess); v == 0 {
		t.Error("Expected the last success timestamp to be set")
	}
}
