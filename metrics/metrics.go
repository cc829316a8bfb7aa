// Package metrics exposes Prometheus collectors for the capture and
// extraction pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsTotal counts finished pipeline items by outcome ("success" /
	// "failure").
	ItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pageshot_items_total",
		Help: "Total pipeline items processed, by outcome.",
	}, []string{"outcome"})

	// FailuresTotal counts item failures by failure kind.
	FailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pageshot_failures_total",
		Help: "Total item failures, by failure kind.",
	}, []string{"kind"})

	// CaptureDuration observes successful capture latency per engine.
	CaptureDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pageshot_capture_duration_seconds",
		Help:    "Screenshot capture duration by engine.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	}, []string{"engine"})

	// InferenceDuration observes inference call latency.
	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pageshot_inference_duration_seconds",
		Help:    "Vision inference call duration.",
		Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
	})

	// BatchesTotal counts completed batches by final status.
	BatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pageshot_batches_total",
		Help: "Total batches run, by final status.",
	}, []string{"status"})
)
