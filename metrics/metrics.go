// Package metrics provides Prometheus metrics for the remote file system server.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"remotefs/protocol"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "remotefs_requests_total",
			Help: "Total number of file operations by operation and outcome",
		},
		[]string{"op", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remotefs_request_duration_seconds",
			Help:    "File operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	bytesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "remotefs_bytes_read_total",
			Help: "Total bytes returned by read operations",
		},
	)

	bytesWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "remotefs_bytes_written_total",
			Help: "Total bytes stored by write operations",
		},
	)

	activeSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "remotefs_active_sessions",
			Help: "Number of live WebSocket sessions",
		},
	)

	authFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "remotefs_auth_failures_total",
			Help: "Total number of rejected connections",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records the outcome of one operation.
func ObserveRequest(op protocol.Op, err error, d time.Duration) {
	requestsTotal.WithLabelValues(string(op), Status(err)).Inc()
	requestDuration.WithLabelValues(string(op)).Observe(d.Seconds())
}

// Status maps an operation error onto a low cardinality label.
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, protocol.ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, protocol.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, protocol.ErrWriteDisabled), errors.Is(err, protocol.ErrDeleteDisabled):
		return "disabled"
	case errors.Is(err, protocol.ErrTooLarge):
		return "too_large"
	}
	return "error"
}

func RecordBytesRead(n int64)    { bytesRead.Add(float64(n)) }
func RecordBytesWritten(n int64) { bytesWritten.Add(float64(n)) }
func SetActiveSessions(n int)    { activeSessions.Set(float64(n)) }
func RecordAuthFailure()         { authFailures.Inc() }
