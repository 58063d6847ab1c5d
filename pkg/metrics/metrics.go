package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "method", "path", "status"},
	)

	HttpRequestsInFlight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being processed",
		},
		[]string{"service"},
	)

	// Business metrics
	ActiveDispatchesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "active_dispatches_total",
			Help: "Current number of in-flight dispatch searches",
		},
		[]string{"service"},
	)

	DispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatches_total",
			Help: "Total number of dispatch searches by outcome",
		},
		[]string{"service", "outcome"},
	)

	OffersPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_offers_published_total",
			Help: "Total number of order offers sent to couriers",
		},
		[]string{"service"},
	)

	CouriersOnlineGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "couriers_online_total",
			Help: "Current number of online couriers",
		},
		[]string{"service"},
	)

	TrafficSamplesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_samples_ingested_total",
			Help: "Total number of GPS speed samples ingested",
		},
		[]string{"service", "status"},
	)

	TrafficCellsActiveGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "traffic_cells_active_total",
			Help: "Current number of reportable traffic cells",
		},
		[]string{"service"},
	)

	TrafficEventsReportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "traffic_events_reported_total",
			Help: "Total number of crowd-reported traffic events",
		},
		[]string{"service", "type"},
	)

	WebSocketConnectionsGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections_total",
			Help: "Current number of active WebSocket connections",
		},
		[]string{"service"},
	)

	DatabaseQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries",
		},
		[]string{"service", "operation", "status"},
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)

	RabbitMQMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitmq_messages_published_total",
			Help: "Total number of messages published to RabbitMQ",
		},
		[]string{"service", "queue", "status"},
	)

	RabbitMQMessagesConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitmq_messages_consumed_total",
			Help: "Total number of messages consumed from RabbitMQ",
		},
		[]string{"service", "queue", "status"},
	)
)

// RecordHTTPMetrics records HTTP request metrics
func RecordHTTPMetrics(service, method, path string, statusCode int, duration time.Duration) {
	status := strconv.Itoa(statusCode)
	HttpRequestsTotal.WithLabelValues(service, method, path, status).Inc()
	HttpRequestDuration.WithLabelValues(service, method, path, status).Observe(duration.Seconds())
}

// RecordDatabaseQuery records database query metrics
func RecordDatabaseQuery(service, operation string, err error, duration time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseQueriesTotal.WithLabelValues(service, operation, status).Inc()
	DatabaseQueryDuration.WithLabelValues(service, operation).Observe(duration.Seconds())
}

// RecordSampleIngested records the outcome of one GPS sample
func RecordSampleIngested(service string, accepted bool) {
	status := "accepted"
	if !accepted {
		status = "dropped"
	}
	TrafficSamplesTotal.WithLabelValues(service, status).Inc()
}
