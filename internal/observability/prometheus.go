package observability

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder counts operations by outcome and tracks their latency.
type PrometheusRecorder struct {
	operations *prometheus.CounterVec   // operation, status
	duration   *prometheus.HistogramVec // operation
}

// NewPrometheusRecorder registers flowcore operation metrics under namespace
// (default "flowcore") with reg.
func NewPrometheusRecorder(reg prometheus.Registerer, namespace string) (*PrometheusRecorder, error) {
	if reg == nil {
		return nil, errors.New("prometheus registerer required")
	}
	if namespace == "" {
		namespace = "flowcore"
	}
	r := &PrometheusRecorder{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "samples",
			Name:      "operations_total",
			Help:      "Total number of sample operations by outcome",
		}, []string{"operation", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "samples",
			Name:      "operation_duration_seconds",
			Help:      "Sample operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"operation"}),
	}
	for _, c := range []prometheus.Collector{r.operations, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "register sample metrics")
		}
	}
	return r, nil
}

// Observe implements MetricsRecorder.
func (r *PrometheusRecorder) Observe(_ context.Context, operation string, success bool, d time.Duration) {
	if operation == "" {
		return
	}
	r.operations.WithLabelValues(operation, status(success)).Inc()
	r.duration.WithLabelValues(operation).Observe(d.Seconds())
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
