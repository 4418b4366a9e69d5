package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wirelink"

// Frame directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Dispatch results.
const (
	DispatchHandled     = "handled"
	DispatchUnknown     = "unknown_opcode"
	DispatchDecodeError = "decode_error"
)

var (
	registerOnce sync.Once

	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions currently connected.",
		},
	)
	sessionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "opened_total",
			Help:      "Sessions opened since start.",
		},
	)
	sessionFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "faults_total",
			Help:      "Sessions torn down by fault kind.",
		},
		[]string{"kind"},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frame",
			Name:      "total",
			Help:      "Frames processed by direction.",
		},
		[]string{"direction"},
	)
	bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frame",
			Name:      "bytes_total",
			Help:      "Raw wire bytes by direction.",
		},
		[]string{"direction"},
	)
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Dispatched frames by opcode and result.",
		},
		[]string{"opcode", "result"},
	)
	dispatchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatch",
			Name:      "duration_seconds",
			Help:      "Handler duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"opcode"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionsActive,
			sessionsTotal,
			sessionFaults,
			framesTotal,
			bytesTotal,
			dispatchTotal,
			dispatchDuration,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordSessionOpened() {
	RegisterMetrics()
	sessionsTotal.Inc()
	sessionsActive.Inc()
}

func RecordSessionClosed() {
	RegisterMetrics()
	sessionsActive.Dec()
}

// RecordFault counts one session teardown. kind is empty for clean closes.
func RecordFault(kind string) {
	RegisterMetrics()
	if kind == "" {
		return
	}
	sessionFaults.WithLabelValues(kind).Inc()
}

func RecordFrames(direction string, frames int, bytes int) {
	RegisterMetrics()
	if frames > 0 {
		framesTotal.WithLabelValues(direction).Add(float64(frames))
	}
	if bytes > 0 {
		bytesTotal.WithLabelValues(direction).Add(float64(bytes))
	}
}

func RecordDispatch(opcode uint16, result string, duration time.Duration) {
	RegisterMetrics()
	label := strconv.FormatUint(uint64(opcode), 10)
	dispatchTotal.WithLabelValues(label, result).Inc()
	if result == DispatchHandled {
		dispatchDuration.WithLabelValues(label).Observe(duration.Seconds())
	}
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
