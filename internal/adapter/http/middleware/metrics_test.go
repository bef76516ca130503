package middleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/iho/ledgersync/internal/infrastructure/metrics"
)

func TestMetricsMiddlewareRecordsRoutePattern(t *testing.T) {
	testCases := []struct {
		name       string
		method     string
		path       string
		pattern    string
		statusCode int
	}{
		{
			name:       "account path uses pattern",
			method:     http.MethodGet,
			path:       "/api/v1/accounts/ABC123",
			pattern:    "/api/v1/accounts/{id}",
			statusCode: http.StatusTeapot,
		},
		{
			name:       "static path",
			method:     http.MethodPost,
			path:       "/health",
			pattern:    "/health",
			statusCode: http.StatusCreated,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			m := metrics.NewWithRegisterer(prometheus.NewRegistry())

			r := chi.NewRouter()
			r.Use(Metrics(m))
			r.MethodFunc(tc.method, tc.pattern, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
			})

			rr := httptest.NewRecorder()
			r.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))

			if rr.Code != tc.statusCode {
				t.Fatalf("expected status %d, got %d", tc.statusCode, rr.Code)
			}

			counter := m.HTTPRequests.WithLabelValues(tc.method, tc.pattern, strconv.Itoa(tc.statusCode))
			if got := testutil.ToFloat64(counter); got != 1 {
				t.Fatalf("expected counter to be 1, got %v", got)
			}
		})
	}
}

func TestMetricsMiddlewareUnmatchedRoute(t *testing.T) {
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(Metrics(m))
	r.Get("/known", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "unmatched", "404")); got != 1 {
		t.Fatalf("expected unmatched request to be counted once, got %v", got)
	}
}
