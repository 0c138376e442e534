// Package metrics exports build metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/k11v/genbuild/internal/build"
	"github.com/k11v/genbuild/internal/build/operation"
)

var _ operation.Recorder = (*PrometheusRecorder)(nil)

// PrometheusRecorder implements operation.Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	buildsCreated prom.Counter
	runDuration   *prom.HistogramVec
	runOutcomes   *prom.CounterVec
	downloads     *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg prom.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		buildsCreated: prom.NewCounter(prom.CounterOpts{
			Namespace: "genbuild",
			Name:      "builds_created_total",
			Help:      "Builds stored and queued",
		}),
		runDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "genbuild",
			Name:      "build_run_duration_seconds",
			Help:      "Duration of build runs by final status",
			Buckets:   prom.DefBuckets,
		}, []string{"status"}),
		runOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "genbuild",
			Name:      "build_run_outcomes_total",
			Help:      "Build runs by final status",
		}, []string{"status"}),
		downloads: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "genbuild",
			Name:      "downloads_total",
			Help:      "Archive downloads by result",
		}, []string{"result"}),
	}
	reg.MustRegister(pr.buildsCreated, pr.runDuration, pr.runOutcomes, pr.downloads)
	return pr
}

func (pr *PrometheusRecorder) IncBuildsCreated() {
	pr.buildsCreated.Inc()
}

func (pr *PrometheusRecorder) ObserveBuildRun(status build.Status, d time.Duration) {
	pr.runDuration.WithLabelValues(string(status)).Observe(d.Seconds())
	pr.runOutcomes.WithLabelValues(string(status)).Inc()
}

func (pr *PrometheusRecorder) IncDownloads(result string) {
	pr.downloads.WithLabelValues(result).Inc()
}

// HTTPHandler returns an http.Handler that serves the metrics of gatherer.
func HTTPHandler(gatherer prom.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
