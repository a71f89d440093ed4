package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ControllerMetrics holds the fault backend's operational counters.
type ControllerMetrics struct {
	// ExperimentsTotal counts applied faults by kind, target and outcome
	ExperimentsTotal *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// NewControllerMetrics registers the controller metrics on the given registry.
func NewControllerMetrics(reg prometheus.Registerer) *ControllerMetrics {
	return &ControllerMetrics{
		ExperimentsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "chaos_experiments_total",
			Help: "Total chaos experiments run",
		}, []string{"experiment_type", "target", "status"}),
		RequestDuration: requestDurationHistogram(reg, "chaos_controller"),
	}
}

// RunnerMetrics holds the experiment runner's operational counters.
type RunnerMetrics struct {
	// ExperimentsTotal counts orchestration runs by experiment and verdict
	ExperimentsTotal *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// NewRunnerMetrics registers the runner metrics on the given registry.
func NewRunnerMetrics(reg prometheus.Registerer) *RunnerMetrics {
	return &RunnerMetrics{
		ExperimentsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "experiment_runner_total",
			Help: "Total experiments run",
		}, []string{"experiment_name", "result"}),
		RequestDuration: requestDurationHistogram(reg, "experiment_runner"),
	}
}

func requestDurationHistogram(reg prometheus.Registerer, subsystem string) *prometheus.HistogramVec {
	return promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "eris",
		Subsystem: subsystem,
		Name:      "http_request_duration_seconds",
		Help:      "Control-plane request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"path", "method", "code"})
}

// RequestTimer is a gin middleware recording per-request latency.
func RequestTimer(duration *prometheus.HistogramVec) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		duration.WithLabelValues(path, c.Request.Method, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
