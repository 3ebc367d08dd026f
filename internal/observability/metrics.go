package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_http_requests_total",
			Help: "Total number of HTTP requests served to the console UI.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_http_request_duration_seconds",
			Help:    "Console UI request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_api_requests_total",
			Help: "Total number of requests sent to the platform REST API.",
		},
		[]string{"method", "endpoint", "status"},
	)
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "console_api_request_duration_seconds",
			Help:    "Platform REST API latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	socketConnected = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "console_socket_connected",
			Help: "1 while the platform socket is connected.",
		},
		[]string{"socket"},
	)
	socketTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_socket_transitions_total",
			Help: "Socket supervisor state transitions.",
		},
		[]string{"socket", "state"},
	)
	socketRetriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_socket_retries_total",
			Help: "Reconnect attempts made by the socket supervisor.",
		},
		[]string{"socket"},
	)
	reconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_reconcile_outcomes_total",
			Help: "Outcomes of applying server messages to the conversation store.",
		},
		[]string{"outcome"},
	)
	sendFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "console_send_failures_total",
			Help: "Optimistic sends rolled back after a transport failure.",
		},
	)
	wsActiveConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "console_ws_active_connections",
			Help: "Number of UI websocket connections.",
		},
		[]string{"kind"},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "console_ws_events_total",
			Help: "Total number of UI websocket events.",
		},
		[]string{"kind", "event"},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "console_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		apiRequestsTotal,
		apiRequestDuration,
		socketConnected,
		socketTransitionsTotal,
		socketRetriesTotal,
		reconcileTotal,
		sendFailuresTotal,
		wsActiveConnections,
		wsEventsTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

// ObserveAPIRequest records one outbound platform API call. status is 0 on transport errors.
func ObserveAPIRequest(method, endpoint string, status int, elapsed time.Duration) {
	apiRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	apiRequestDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func SetSocketConnected(socket string, connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	socketConnected.WithLabelValues(socket).Set(v)
}

func IncSocketTransition(socket, state string) {
	socketTransitionsTotal.WithLabelValues(socket, state).Inc()
}

func IncSocketRetry(socket string) {
	socketRetriesTotal.WithLabelValues(socket).Inc()
}

func IncReconcile(outcome string) {
	reconcileTotal.WithLabelValues(outcome).Inc()
}

func IncSendFailure() {
	sendFailuresTotal.Inc()
}

func IncWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Inc()
}

func DecWSActive(kind string) {
	wsActiveConnections.WithLabelValues(kind).Dec()
}

func IncWSEvent(kind, event string) {
	wsEventsTotal.WithLabelValues(kind, event).Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}
