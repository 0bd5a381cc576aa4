package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "magnetcast",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "magnetcast",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10, 30},
	}, []string{"method", "path"})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "magnetcast",
		Name:      "active_sessions",
		Help:      "Number of currently registered download sessions.",
	})

	DownloadSpeedBytes = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "magnetcast",
		Name:      "download_speed_bytes",
		Help:      "Current aggregate download speed in bytes per second.",
	})

	PeersConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "magnetcast",
		Name:      "peers_connected",
		Help:      "Total number of peers connected across all sessions.",
	})

	SessionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "magnetcast",
		Name:      "sessions_created_total",
		Help:      "Total number of download sessions created.",
	})

	SessionsRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "magnetcast",
		Name:      "sessions_removed_total",
		Help:      "Total number of download sessions removed.",
	})

	StreamBytesServedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "magnetcast",
		Name:      "stream_bytes_served_total",
		Help:      "Total payload bytes served by the stream endpoint.",
	})

	StreamNotReadyTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "magnetcast",
		Name:      "stream_not_ready_total",
		Help:      "Stream requests rejected because the requested range was not materialized yet.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		ActiveSessions,
		DownloadSpeedBytes,
		PeersConnected,
		SessionsCreatedTotal,
		SessionsRemovedTotal,
		StreamBytesServedTotal,
		StreamNotReadyTotal,
	)
}
