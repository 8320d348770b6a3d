package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coin_engine",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coin_engine",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "coin_engine",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	coinCredits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coin_engine",
			Subsystem: "ledger",
			Name:      "credits_total",
			Help:      "Total coins credited, by source.",
		},
		[]string{"source"},
	)

	accrualTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coin_engine",
			Subsystem: "accrual",
			Name:      "ticks_total",
			Help:      "Accrual interval firings, by result.",
		},
		[]string{"result"},
	)

	interactions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coin_engine",
			Subsystem: "rewards",
			Name:      "interactions_total",
			Help:      "Total rewarded content interactions, by kind.",
		},
		[]string{"kind"},
	)

	withdrawals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coin_engine",
			Subsystem: "wallet",
			Name:      "withdrawals_total",
			Help:      "Withdrawal gate outcomes.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		coinCredits,
		accrualTicks,
		interactions,
		withdrawals,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// CountCredit records coins credited to a ledger from the given source
// ("accrual" or an interaction kind).
func CountCredit(source string, coins int64) {
	if coins <= 0 {
		return
	}
	coinCredits.WithLabelValues(source).Add(float64(coins))
}

// CountAccrualTick records one accrual interval firing.
func CountAccrualTick(result string) {
	accrualTicks.WithLabelValues(result).Inc()
}

// CountInteraction records one rewarded interaction.
func CountInteraction(kind string) {
	interactions.WithLabelValues(kind).Inc()
}

// CountWithdrawal records one withdrawal gate outcome.
func CountWithdrawal(outcome string) {
	withdrawals.WithLabelValues(outcome).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// canonicalPath collapses resource IDs so metric cardinality stays bounded.
func canonicalPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if i%2 == 1 && part != "" {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}
