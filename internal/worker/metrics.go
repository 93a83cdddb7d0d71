package worker

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry             *prometheus.Registry
	transformsTotal      *prometheus.CounterVec
	transformDuration    *prometheus.HistogramVec
	activeTransforms     prometheus.Gauge
	pixelsProcessedTotal prometheus.Counter
	bytesWrittenTotal    prometheus.Counter
	computeTimeMSTotal   prometheus.Counter
}

func newMetrics() *metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &metrics{
		registry: registry,
		transformsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imagekiln_worker_transforms_total",
			Help: "Total worker transforms by source type and final outcome.",
		}, []string{"source_type", "outcome"}),
		transformDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "imagekiln_worker_transform_duration_seconds",
			Help:    "End-to-end duration for each worker transform.",
			Buckets: prometheus.DefBuckets,
		}, []string{"source_type", "outcome"}),
		activeTransforms: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imagekiln_worker_active_transforms",
			Help: "Current number of in-flight transforms in the worker.",
		}),
		pixelsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imagekiln_usage_pixels_processed_total",
			Help: "Total output pixels produced across all successful transforms.",
		}),
		bytesWrittenTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imagekiln_usage_bytes_written_total",
			Help: "Total derived artifact bytes written across all successful transforms.",
		}),
		computeTimeMSTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imagekiln_usage_compute_time_ms_total",
			Help: "Total compute time in milliseconds across successful transforms.",
		}),
	}

	registry.MustRegister(
		m.transformsTotal,
		m.transformDuration,
		m.activeTransforms,
		m.pixelsProcessedTotal,
		m.bytesWrittenTotal,
		m.computeTimeMSTotal,
	)
	return m
}

func (m *metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
