package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resv_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	EngineOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resv_engine_ops_total",
			Help: "Engine operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	TxDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "resv_tx_seconds",
			Help:    "Duration of engine transactions including retries",
			Buckets: prometheus.DefBuckets,
		},
	)

	CapacityRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resv_capacity_rejections_total",
			Help: "Operations rejected for insufficient capacity",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resv_outbox_lag_seconds",
			Help: "Age of the oldest unpublished outbox record",
		},
	)

	SeatDrift = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resv_seat_drift_flights",
			Help: "Flights whose booked seats disagree with the active roster sum",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resv_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
