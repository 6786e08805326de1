package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prizedraw"

// Recorder owns the prometheus collectors of one server instance. It
// satisfies services.Observer.
type Recorder struct {
	registry *prometheus.Registry

	draws          *prometheus.CounterVec
	rejections     *prometheus.CounterVec
	persistFailure *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		draws: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "draw",
				Name:      "attempts_total",
				Help:      "Completed draw attempts by outcome.",
			},
			[]string{"outcome"},
		),
		rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "draw",
				Name:      "rejections_total",
				Help:      "Draw attempts rejected before drawing, by reason.",
			},
			[]string{"reason"},
		),
		persistFailure: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "store",
				Name:      "failures_total",
				Help:      "Failed persistence operations.",
			},
			[]string{"op"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests handled.",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"method", "path"},
		),
	}
	r.registry.MustRegister(
		r.draws,
		r.rejections,
		r.persistFailure,
		r.httpRequests,
		r.httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return r
}

func (r *Recorder) DrawCompleted(won bool) {
	outcome := "loss"
	if won {
		outcome = "win"
	}
	r.draws.WithLabelValues(outcome).Inc()
}

func (r *Recorder) DrawRejected(reason string) {
	r.rejections.WithLabelValues(reason).Inc()
}

func (r *Recorder) PersistFailed(op string) {
	r.persistFailure.WithLabelValues(op).Inc()
}

// Handler exposes the registered metrics.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency by route template.
func (r *Recorder) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		r.httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
