// Package metrics exposes Prometheus collectors for the indexing service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal    *prometheus.CounterVec
	pagesIndexedTotal    *prometheus.CounterVec
	lemmasSavedTotal     *prometheus.CounterVec
	indexingErrorsTotal  *prometheus.CounterVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	siteIndexingDuration *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_pages_fetched_total",
				Help: "Total number of pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)
		pagesIndexedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_pages_indexed_total",
				Help: "Total number of pages indexed, labeled by site.",
			},
			[]string{"site"},
		)
		lemmasSavedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_lemmas_saved_total",
				Help: "Total number of lemma/index rows saved, labeled by site.",
			},
			[]string{"site"},
		)
		indexingErrorsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_errors_total",
				Help: "Total number of indexing errors, labeled by site and kind.",
			},
			[]string{"site", "kind"},
		)
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "indexer_http_requests_total",
				Help: "Total number of control-plane HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexer_http_request_duration_seconds",
				Help:    "Histogram of control-plane HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
		siteIndexingDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "indexer_site_indexing_duration_seconds",
				Help:    "Histogram of per-site indexing run durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 300, 900, 3600},
			},
			[]string{"site"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// Returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records a page fetch outcome (ok, error, skipped).
func ObserveFetch(site, outcome string) {
	pagesFetchedTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
}

// ObserveIndexed records a page having been indexed.
func ObserveIndexed(site string) {
	pagesIndexedTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveLemmasSaved records the count of lemma/index rows written for a page.
func ObserveLemmasSaved(site string, count int) {
	if count <= 0 {
		return
	}
	lemmasSavedTotal.WithLabelValues(SanitizeSite(site)).Add(float64(count))
}

// ObserveError records an indexing error, labeled by a short kind string.
func ObserveError(site, kind string) {
	indexingErrorsTotal.WithLabelValues(SanitizeSite(site), kind).Inc()
}

// ObserveSiteIndexingDuration records how long a full site run took.
func ObserveSiteIndexingDuration(site string, d time.Duration) {
	siteIndexingDuration.WithLabelValues(SanitizeSite(site)).Observe(d.Seconds())
}

// HTTPMiddleware is a chi middleware that records control-plane request metrics.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		httpRequestsTotal.WithLabelValues(r.Method, strconv.Itoa(ww.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
