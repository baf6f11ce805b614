package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/flashcard-market/internal/domain"
)

// Paths are gin route patterns (/api/v1/sets/:id), so label cardinality is
// bounded by the route table. Unmatched requests fall back to the raw path.
var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	httpRespSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_response_size_bytes",
			Help: "Size of HTTP responses in bytes.",
			// 200B .. 1MiB; card decks are the largest payloads.
			Buckets: []float64{200, 1 << 10, 5 << 10, 25 << 10, 100 << 10, 250 << 10, 1 << 20},
		},
		[]string{"method", "path"},
	)

	accessVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "set_access_verdicts_total",
			Help: "Content access decisions by set type and outcome.",
		},
		[]string{"set_type", "granted"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by a rate limiter, by limiter scope.",
		},
		[]string{"scope"},
	)
)

func init() {
	prometheus.MustRegister(httpReqs, httpLat, httpInflight, httpRespSize, accessVerdicts, rateLimited)
}

// Metrics records request count, latency, in-flight gauge and response size.
// Expose the registry with gin.WrapH(promhttp.Handler()).
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size >= 0 {
			httpRespSize.WithLabelValues(method, path).Observe(float64(size))
		}
	}
}

// ObserveVerdict counts one access decision.
func ObserveVerdict(v *domain.AccessVerdict) {
	if v == nil {
		return
	}
	accessVerdicts.WithLabelValues(string(v.SetType), strconv.FormatBool(v.HasAccess)).Inc()
}
