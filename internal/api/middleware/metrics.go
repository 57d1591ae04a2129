package middleware

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/switchboard-labs/switchboard/internal/metrics"
)

// MetricsCollector counts requests for the runtime stats endpoint and feeds
// request latency into Prometheus.
type MetricsCollector struct {
	requestCount *atomic.Int64
	errorCount   *atomic.Int64
	metrics      *metrics.Metrics
}

func NewMetricsCollector(requestCount, errorCount *atomic.Int64, m *metrics.Metrics) *MetricsCollector {
	return &MetricsCollector{
		requestCount: requestCount,
		errorCount:   errorCount,
		metrics:      m,
	}
}

// Middleware counts requests and errors (4xx and 5xx).
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mc.requestCount.Add(1)
		start := time.Now()

		rw := newResponseWriter(w)
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 400 {
			mc.errorCount.Add(1)
		}
		mc.metrics.ObserveHTTP(r.Method, rw.statusCode, time.Since(start))
	})
}
