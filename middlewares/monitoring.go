package middlewares

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordenes_service_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ordenes_service_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordenes_service_order_operations_total",
			Help: "Total number of order operations",
		},
		[]string{"operation", "status"},
	)

	cartOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordenes_service_cart_operations_total",
			Help: "Total number of cart operations",
		},
		[]string{"operation", "status"},
	)

	stockCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordenes_service_stock_calls_total",
			Help: "Calls made to the product service",
		},
		[]string{"call", "status"},
	)

	stockRestoreFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ordenes_service_stock_restore_failures_total",
			Help: "Stock restorations that failed while cancelling an order",
		},
	)

	eventPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ordenes_service_event_publishes_total",
			Help: "Order events handed to the message broker",
		},
		[]string{"topic", "status"},
	)
)

// PrometheusMiddleware records request counts and latency per route.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
	}
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

func RecordOrderOperation(operation string, success bool) {
	orderOperations.WithLabelValues(operation, outcome(success)).Inc()
}

func RecordCartOperation(operation string, success bool) {
	cartOperations.WithLabelValues(operation, outcome(success)).Inc()
}

func RecordStockCall(call string, success bool) {
	stockCalls.WithLabelValues(call, outcome(success)).Inc()
}

func RecordStockRestoreFailure() {
	stockRestoreFailures.Inc()
}

func RecordEventPublish(topic string, success bool) {
	eventPublishes.WithLabelValues(topic, outcome(success)).Inc()
}
