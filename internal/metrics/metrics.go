package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_ws_connections",
		Help: "Current number of authenticated websocket connections",
	})
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_online_users",
		Help: "Current number of distinct online users",
	})
	WsRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_ws_rejected_total",
		Help: "Total number of connection attempts rejected during authentication",
	})
	WsEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_ws_events_total",
		Help: "Total number of client events handled, by event and outcome",
	}, []string{"event", "outcome"})
	WsMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_messages_total",
		Help: "Total number of chat messages persisted and broadcast",
	})
	OfflineNotificationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_offline_notifications_total",
		Help: "Total number of new-message-notification events emitted",
	})
	SlowConsumersTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "gateway_slow_consumers_total",
		Help: "Total number of connections closed because their send queue was full",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		WsConnections, OnlineUsers, WsRejectedTotal, WsEventsTotal, WsMessagesTotal,
		OfflineNotificationsTotal, SlowConsumersTotal, HttpRequestsTotal, HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
