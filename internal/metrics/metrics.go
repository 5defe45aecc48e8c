package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alumnichat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "alumnichat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alumnichat_http_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"path"},
	)

	// Live gateway metrics
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alumnichat_ws_connections",
			Help: "Open websocket connections",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "alumnichat_online_users",
			Help: "Users with at least one open connection",
		},
	)

	GatewayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alumnichat_ws_events_total",
			Help: "Inbound websocket events",
		},
		[]string{"type", "outcome"}, // outcome: "ok", error kind, or "rate_limited"
	)

	// Business metrics
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alumnichat_messages_sent_total",
			Help: "Total messages appended",
		},
		[]string{"transport"}, // "ws" or "http"
	)

	OfflineNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alumnichat_offline_notifications_total",
			Help: "Offline message notifications",
		},
		[]string{"outcome"},
	)
)
