// Package metrics exposes catalog and HTTP metrics through Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/music-catalog/pkg/catalog"
)

const namespace = "catalog"

// Recorder implements catalog.MetricsRecorder and records HTTP requests
type Recorder struct {
	registry *prometheus.Registry

	operations    *prometheus.CounterVec
	opDuration    *prometheus.HistogramVec
	uploads       *prometheus.CounterVec
	uploadBytes   *prometheus.CounterVec
	compensations *prometheus.CounterVec
	requests      *prometheus.CounterVec
	reqDuration   *prometheus.HistogramVec
}

// NewRecorder creates a Recorder with its own registry, which also carries
// the Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Workflow operations by outcome.",
		}, []string{"op", "outcome"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Workflow operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"op"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Blob uploads by asset kind and result.",
		}, []string{"asset", "result"}),
		uploadBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upload_bytes_total",
			Help:      "Bytes successfully uploaded by asset kind.",
		}, []string{"asset"}),
		compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compensations_total",
			Help:      "Compensating actions by operation and result.",
		}, []string{"op", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		reqDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	r.registry.MustRegister(
		r.operations, r.opDuration, r.uploads, r.uploadBytes, r.compensations,
		r.requests, r.reqDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry backing the recorder
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) ObserveOperation(op string, kind catalog.ErrorKind, d time.Duration) {
	outcome := "success"
	if kind != "" {
		outcome = string(kind)
	}
	r.operations.WithLabelValues(op, outcome).Inc()
	r.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (r *Recorder) ObserveUpload(asset catalog.AssetKind, bytes int64, err error) {
	if err != nil {
		r.uploads.WithLabelValues(string(asset), "error").Inc()
		return
	}
	r.uploads.WithLabelValues(string(asset), "success").Inc()
	r.uploadBytes.WithLabelValues(string(asset)).Add(float64(bytes))
}

func (r *Recorder) ObserveCompensation(op string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	r.compensations.WithLabelValues(op, result).Inc()
}

// RecordRequest records one served HTTP request. route should be the
// router pattern, not the raw path.
func (r *Recorder) RecordRequest(method, route string, statusCode int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	r.requests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	r.reqDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

var _ catalog.MetricsRecorder = (*Recorder)(nil)
