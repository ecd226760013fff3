// Package metrics holds the Prometheus collectors for remote calls and local reconciliation.
//
// Collectors register with the default registry on import and are served by the HTTP server at /metrics.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RemoteRequestsTotal counts remote API calls by operation and outcome.
	RemoteRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodmusic_remote_requests_total",
			Help: "Total number of remote playlist service requests",
		},
		[]string{"op", "outcome"},
	)

	// RemoteRequestDuration tracks remote call latency by operation.
	RemoteRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moodmusic_remote_request_duration_seconds",
			Help:    "Duration of remote playlist service requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	// StaleSnapshotsTotal counts writes rejected because the presented snapshot was out of date.
	StaleSnapshotsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moodmusic_stale_snapshots_total",
			Help: "Total number of remote writes rejected for a stale snapshot",
		},
	)

	// BreakerState reports the remote circuit breaker state (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moodmusic_remote_breaker_state",
			Help: "State of the remote playlist service circuit breaker",
		},
	)

	// LocalCommitFailuresTotal counts local commits that failed after the remote side was already written.
	LocalCommitFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodmusic_local_commit_failures_total",
			Help: "Total number of local commits abandoned after a successful remote write",
		},
		[]string{"op"},
	)

	// DuplicatesRemovedTotal counts duplicate playlist entries removed remotely.
	DuplicatesRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moodmusic_duplicates_removed_total",
			Help: "Total number of duplicate playlist entries removed",
		},
	)

	// LibraryRefreshesTotal counts library refresh runs by outcome.
	LibraryRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodmusic_library_refreshes_total",
			Help: "Total number of library refreshes",
		},
		[]string{"outcome"},
	)

	// HTTPRequestsTotal counts API requests by route pattern, method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moodmusic_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"route", "method", "status"},
	)

	// HTTPRequestDuration tracks API latency by route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moodmusic_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// ObserveRemote records one remote call.
func ObserveRemote(op string, started time.Time, err error) {
	RemoteRequestsTotal.WithLabelValues(op, Outcome(err)).Inc()
	RemoteRequestDuration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// ObserveHTTP records one API request.
func ObserveHTTP(route, method string, status int, started time.Time) {
	HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(started).Seconds())
}

// Outcome maps err to a success/error label value.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
