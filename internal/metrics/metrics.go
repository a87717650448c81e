// Package metrics provides Prometheus metrics for remote attachment storage.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachment_offload_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attachment_offload_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	remoteOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attachment_offload_remote_operation_duration_seconds",
			Help:    "Object store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	remoteOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachment_offload_remote_operations_total",
			Help: "Total object store operations",
		},
		[]string{"operation", "status"},
	)

	remoteBytesUploaded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attachment_offload_remote_bytes_uploaded_total",
			Help: "Total bytes written to the object store",
		},
	)

	// Outcome of the create-time upload hook: remote, placeholder, skipped, failed.
	offloadTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachment_offload_transitions_total",
			Help: "Create-time offload outcomes",
		},
		[]string{"state"},
	)

	migrationItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attachment_offload_migration_items_total",
			Help: "Bulk migration items by result",
		},
		[]string{"result"},
	)

	redirectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attachment_offload_redirects_total",
			Help: "Attachment reads answered with a redirect to the object store",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRemoteOperation records one object store call.
func RecordRemoteOperation(operation string, duration time.Duration, success bool) {
	remoteOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	remoteOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordUploadedBytes adds n to the uploaded byte counter.
func RecordUploadedBytes(n int64) {
	if n > 0 {
		remoteBytesUploaded.Add(float64(n))
	}
}

func RecordTransition(state string) {
	offloadTransitionsTotal.WithLabelValues(state).Inc()
}

func RecordMigrationItem(result string) {
	migrationItemsTotal.WithLabelValues(result).Inc()
}

func RecordRedirect() {
	redirectsTotal.Inc()
}

// GinMiddleware records request counts and latency per route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
