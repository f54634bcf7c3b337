package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestTotal counts HTTP requests by method, route and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formrelay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formrelay_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	// RelaySendsTotal counts outbound relay sends from the HTTP side.
	RelaySendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formrelay_relay_sends_total",
			Help: "Submissions forwarded to the relay listener",
		},
		[]string{"status"},
	)
	// RelayConnectionsTotal counts connections processed by the relay listener.
	RelayConnectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formrelay_relay_connections_total",
			Help: "Connections processed by the relay listener",
		},
		[]string{"result"},
	)
	// AppendsTotal counts append log writes by outcome.
	AppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formrelay_appends_total",
			Help: "Append log writes",
		},
		[]string{"status"},
	)
)

// Middleware records request count and duration. Unmatched routes are
// labelled "static" so arbitrary paths do not blow up label cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "static"
		}
		if c.Request.Method == http.MethodPost {
			route = "submit"
		}
		RequestTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
