// Package metrics exposes Prometheus-format counters for HTTP traffic
// and library activity.
package metrics

import (
	"fmt"
	"time"

	vm "github.com/VictoriaMetrics/metrics"
	"github.com/gin-gonic/gin"
)

// Middleware records request counts and latency per route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		vm.GetOrCreateCounter(fmt.Sprintf(
			`kompanion_http_requests_total{method=%q,route=%q,status="%d"}`,
			c.Request.Method, route, c.Writer.Status())).Inc()
		vm.GetOrCreateSummary(fmt.Sprintf(
			`kompanion_http_request_duration_seconds{method=%q,route=%q}`,
			c.Request.Method, route)).Update(time.Since(start).Seconds())
	}
}

// Handler serves the metrics endpoint.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; charset=utf-8")
		vm.WritePrometheus(c.Writer, true)
	}
}

// CountSync increments the progress sync counter.
func CountSync() {
	vm.GetOrCreateCounter("kompanion_progress_syncs_total").Inc()
}

// CountUpload increments the book upload counter.
func CountUpload(format string) {
	vm.GetOrCreateCounter(fmt.Sprintf(
		`kompanion_book_uploads_total{format=%q}`, format)).Inc()
}

// CountDownload increments the book download counter.
func CountDownload(format string) {
	vm.GetOrCreateCounter(fmt.Sprintf(
		`kompanion_book_downloads_total{format=%q}`, format)).Inc()
}

// CountStatisticsUpload increments the WebDAV statistics upload counter.
func CountStatisticsUpload() {
	vm.GetOrCreateCounter("kompanion_statistics_uploads_total").Inc()
}
