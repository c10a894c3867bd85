package obs

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Messaging metrics
var (
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elaqe_dispatch_total",
			Help: "Message dispatches by kind and delivery outcome.",
		},
		[]string{"type", "outcome"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "elaqe_gateway_request_duration_seconds",
			Help:    "Latency of delivery gateway calls.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"code"},
	)

	auditFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "elaqe_audit_write_failures_total",
			Help: "Audit entries that could not be written.",
		},
		[]string{"kind"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "elaqe_ready",
		Help: "1 when the service reports ready.",
	})
)

var initOnce sync.Once

// Init registers all collectors in the default registry.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			dispatchTotal, gatewayDuration, auditFailures, ready,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records RPS, latency and in-flight requests. It must run inside
// the chi router so the matched route pattern is available as a label.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := RouteLabel(r)
		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}

// RouteLabel returns the chi route pattern of r, keeping label cardinality bounded.
func RouteLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// ObserveDispatch counts a finished dispatch. outcome is delivered, failed or skipped.
func ObserveDispatch(kind, outcome string) {
	dispatchTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveGateway records one gateway round trip. code 0 means a transport error.
func ObserveGateway(code int, d time.Duration) {
	label := "error"
	if code > 0 {
		label = strconv.Itoa(code)
	}
	gatewayDuration.WithLabelValues(label).Observe(d.Seconds())
}

// AuditWriteFailed counts a dropped audit entry of the given kind.
func AuditWriteFailed(kind string) {
	auditFailures.WithLabelValues(kind).Inc()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
