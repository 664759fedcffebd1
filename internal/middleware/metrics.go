package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grundbuch_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "grundbuch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	commitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "grundbuch_commits_total",
			Help: "Total number of applied changesets",
		},
	)

	pullsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grundbuch_pulls_total",
			Help: "Total number of replica pulls by kind",
		},
		[]string{"kind"},
	)
)

// Metrics returns a middleware recording Prometheus request metrics.
func Metrics() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := wrapResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			path := routePattern(r)
			httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// routePattern returns the chi route pattern to keep metric cardinality
// bounded.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
		return rctx.RoutePattern()
	}
	return r.URL.Path
}

// IncrementCommits records one applied changeset.
func IncrementCommits() { commitsTotal.Inc() }

// IncrementPulls records one replica pull of the given kind ("docs" or
// "metadb").
func IncrementPulls(kind string) { pullsTotal.WithLabelValues(kind).Inc() }
