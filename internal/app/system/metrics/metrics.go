// Package metrics exposes Prometheus collectors for the consistency engine.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CascadeRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "centerhub", Name: "cascade_runs_total", Help: "Cascade executions by kind and final status",
	}, []string{"kind", "status"})
	CascadeDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "centerhub", Name: "cascade_duration_seconds", Help: "Cascade execution time",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
	BatchesCommitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "centerhub", Name: "batches_committed_total", Help: "Atomic batches committed",
	})
	BatchWrites = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "centerhub", Name: "batch_writes", Help: "Document writes per committed batch",
		Buckets: []float64{1, 2, 5, 10, 50, 100, 250, 500},
	})
	Conflicts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "centerhub", Name: "conflicts_total", Help: "Optimistic version conflicts by operation",
	}, []string{"op"})
	ResumedCascades = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "centerhub", Name: "cascades_resumed_total", Help: "Cascades picked up by the resumer",
	})
)

func init() {
	prometheus.MustRegister(CascadeRuns, CascadeDuration, BatchesCommitted, BatchWrites, Conflicts, ResumedCascades)
}

func Handler() http.Handler { return promhttp.Handler() }

// ObserveCascade records one finished cascade execution.
func ObserveCascade(kind, status string, d time.Duration) {
	CascadeRuns.WithLabelValues(kind, status).Inc()
	CascadeDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// ObserveBatch records one committed batch of n writes.
func ObserveBatch(n int) {
	BatchesCommitted.Inc()
	BatchWrites.Observe(float64(n))
}
