package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldmorse_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worldmorse_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Relay metrics
	StationsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worldmorse_stations_registered_total",
			Help: "Total station registrations",
		},
	)

	MessagesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldmorse_messages_submitted_total",
			Help: "Total messages submitted",
		},
		[]string{"type"},
	)

	ValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldmorse_validation_failures_total",
			Help: "Total rejected requests by error code",
		},
		[]string{"code"},
	)

	StationsPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worldmorse_stations_pruned_total",
			Help: "Total stations removed by presence timeout",
		},
	)

	// Push metrics
	PushSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worldmorse_push_subscribers",
			Help: "Live push subscribers",
		},
	)

	PushDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldmorse_push_events_total",
			Help: "Total push events queued to subscribers",
		},
		[]string{"kind"},
	)

	PushDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worldmorse_push_subscribers_dropped_total",
			Help: "Total subscribers dropped for a full buffer or failed write",
		},
	)

	Heartbeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "worldmorse_heartbeats_total",
			Help: "Total heartbeats received",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldmorse_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worldmorse_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worldmorse_store_latency_seconds",
			Help:    "Storage operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"backend", "op"},
	)
)
