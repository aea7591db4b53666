package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Rating metrics
	RatingsSubmitted *prometheus.CounterVec
	SeedMutations    *prometheus.CounterVec
	ReportActions    *prometheus.CounterVec

	// Featured metrics
	FeaturedRefreshes       *prometheus.CounterVec
	FeaturedRefreshDuration prometheus.Histogram
	FeaturedSize            prometheus.Gauge

	// Event metrics
	EventsPublished *prometheus.CounterVec
	EventsDropped   prometheus.Counter

	// Cache metrics
	CacheHits   *prometheus.CounterVec
	CacheMisses *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge
}

var (
	metrics  *Metrics
	initOnce sync.Once
)

// Init initializes all Prometheus metrics
func Init() *Metrics {
	initOnce.Do(func() {
		metrics = &Metrics{
			HTTPRequestsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "http_requests_total",
					Help: "Total number of HTTP requests",
				},
				[]string{"method", "path", "status"},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "http_request_duration_seconds",
					Help:    "HTTP request duration in seconds",
					Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
				},
				[]string{"method", "path"},
			),
			HTTPRequestsInFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "http_requests_in_flight",
					Help: "Number of HTTP requests currently being processed",
				},
			),

			RatingsSubmitted: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "ratings_submitted_total",
					Help: "Rating submissions by outcome",
				},
				[]string{"category", "outcome"},
			),
			SeedMutations: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "seed_mutations_total",
					Help: "Administrator seed mutations by action",
				},
				[]string{"action"},
			),
			ReportActions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rating_reports_total",
					Help: "Rating reports filed and reviewed",
				},
				[]string{"action", "status"},
			),

			FeaturedRefreshes: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "featured_refreshes_total",
					Help: "Featured ranking passes by status",
				},
				[]string{"status"},
			),
			FeaturedRefreshDuration: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "featured_refresh_duration_seconds",
					Help:    "Duration of a featured ranking pass",
					Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
				},
			),
			FeaturedSize: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "featured_entities",
					Help: "Entities in the current featured snapshot",
				},
			),

			EventsPublished: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "rating_events_published_total",
					Help: "Rating committed events delivered to sinks",
				},
				[]string{"sink", "status"},
			),
			EventsDropped: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "rating_events_dropped_total",
					Help: "Rating committed events dropped because the buffer was full",
				},
			),

			CacheHits: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_hits_total",
					Help: "Total number of cache hits",
				},
				[]string{"cache_type"},
			),
			CacheMisses: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "cache_misses_total",
					Help: "Total number of cache misses",
				},
				[]string{"cache_type"},
			),

			DBConnectionsActive: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "db_connections_active",
					Help: "Number of active database connections",
				},
			),
			DBConnectionsIdle: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "db_connections_idle",
					Help: "Number of idle database connections",
				},
			),
		}
	})
	return metrics
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Init()
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware collects HTTP metrics labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	m := Get()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordRatingSubmitted records a rating submission outcome
func RecordRatingSubmitted(category, outcome string) {
	Get().RatingsSubmitted.WithLabelValues(category, outcome).Inc()
}

// RecordSeedMutation records a seed set or reset
func RecordSeedMutation(action string) {
	Get().SeedMutations.WithLabelValues(action).Inc()
}

// RecordReportAction records a report being filed or reviewed
func RecordReportAction(action, status string) {
	Get().ReportActions.WithLabelValues(action, status).Inc()
}

// RecordFeaturedRefresh records one featured pass
func RecordFeaturedRefresh(status string, duration time.Duration, size int) {
	m := Get()
	m.FeaturedRefreshes.WithLabelValues(status).Inc()
	m.FeaturedRefreshDuration.Observe(duration.Seconds())
	if status == "ok" {
		m.FeaturedSize.Set(float64(size))
	}
}

// RecordEventPublished records a delivery attempt to an event sink
func RecordEventPublished(sink, status string) {
	Get().EventsPublished.WithLabelValues(sink, status).Inc()
}

// RecordEventDropped records an event lost to a full buffer
func RecordEventDropped() {
	Get().EventsDropped.Inc()
}

// RecordCacheHit records a cache hit
func RecordCacheHit(cacheType string) {
	Get().CacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss records a cache miss
func RecordCacheMiss(cacheType string) {
	Get().CacheMisses.WithLabelValues(cacheType).Inc()
}

// SetDBConnections sets database connection metrics
func SetDBConnections(active, idle int) {
	Get().DBConnectionsActive.Set(float64(active))
	Get().DBConnectionsIdle.Set(float64(idle))
}
