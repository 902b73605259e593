package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	SyncItemsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_queue_items_total",
			Help: "Outbox items processed by the sync engine",
		},
		[]string{"entity_type", "outcome"},
	)

	SyncPassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_pass_duration_seconds",
			Help:    "Duration of a full outbox drain pass",
			Buckets: []float64{0.5, 1, 5, 15, 60},
		},
	)

	SyncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_queue_pending",
			Help: "Outbox rows currently pending upload",
		},
	)

	CanvasOnline = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "canvas_online",
			Help: "1 when the last connectivity probe reached Canvas",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(SyncItemsProcessed)
	prometheus.MustRegister(SyncPassDuration)
	prometheus.MustRegister(SyncQueueDepth)
	prometheus.MustRegister(CanvasOnline)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
