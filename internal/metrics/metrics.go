package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	bidsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "bidding",
			Name:      "bids_total",
			Help:      "Total number of bid attempts by outcome.",
		},
		[]string{"result"},
	)

	settlementsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "settlement",
			Name:      "auctions_settled_total",
			Help:      "Total number of settled auctions by outcome.",
		},
		[]string{"outcome"},
	)

	settlementErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "settlement",
			Name:      "errors_total",
			Help:      "Per-auction settlement failures; retried on the next sweep.",
		},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "auction",
			Subsystem: "settlement",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of settlement sweeps.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
	)

	broadcastSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "auction",
			Subsystem: "broadcast",
			Name:      "subscribers",
			Help:      "Current number of websocket subscribers.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "auction",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "auction",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)
)

func init() {
	Registry.MustRegister(
		bidsTotal,
		settlementsTotal,
		settlementErrors,
		sweepDuration,
		broadcastSubscribers,
		httpRequests,
		httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// RecordBid counts one bid attempt with its outcome.
func RecordBid(result string) {
	bidsTotal.WithLabelValues(result).Inc()
}

// RecordSettlement counts one settled auction ("won" or "no_sale").
func RecordSettlement(outcome string) {
	settlementsTotal.WithLabelValues(outcome).Inc()
}

// RecordSettlementError counts a per-auction settlement failure.
func RecordSettlementError() {
	settlementErrors.Inc()
}

// ObserveSweep records the duration of one settlement sweep.
func ObserveSweep(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}

// SubscriberGauge tracks the websocket subscriber count.
func SubscriberGauge(delta float64) {
	broadcastSubscribers.Add(delta)
}

// Handler returns an HTTP handler exposing the registered metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(pathLabel string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		httpRequests.WithLabelValues(r.Method, pathLabel, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(r.Method, pathLabel).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the instrumented handler.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hj.Hijack()
}
