// Package metrics defines prometheus metrics to expose
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InferenceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_filter_inference_duration_seconds",
			Help:    "Time spent in the inference pipeline per exchange",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"task"},
	)

	BufferedBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inference_filter_buffered_body_bytes",
			Help:    "Size of request bodies handed to the pipeline",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		},
		[]string{"task"},
	)

	ExchangeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_filter_exchange_count_total",
			Help: "Finished exchanges by outcome",
		},
		[]string{"task", "outcome"},
	)

	PredictionCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_filter_prediction_count_total",
			Help: "Stored predictions by label",
		},
		[]string{"task", "label"},
	)

	ErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_filter_error_count",
			Help: "Classification failures by kind",
		},
		[]string{"task", "kind"},
	)

	InflightExchanges = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inference_filter_inflight_exchanges",
			Help: "Current Inflight Exchanges",
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_filter_cache_lookups_total",
			Help: "Prediction cache lookups by result",
		},
		[]string{"result"},
	)

	RecorderFlushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_filter_recorder_flushes_total",
			Help: "Prediction recorder flushes by status",
		},
		[]string{"status"},
	)

	ResponseCodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inference_filter_status_code",
			Help: "Status Codes",
		},
		[]string{"path", "status_code"},
	)
)
