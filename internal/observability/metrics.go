package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecognitionOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "recognition_outcomes_total",
		Help:      "Recognition attempts by outcome",
	}, []string{"outcome"})

	MatchDistance = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "match_distance",
		Help:      "Raw nearest-neighbour distance of accepted and rejected probes",
		Buckets:   []float64{10, 20, 30, 40, 55, 70, 85, 100, 150, 250},
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "stage_duration_seconds",
		Help:      "Duration of recognition pipeline stages",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"stage"})

	MarksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "marks_total",
		Help:      "Ledger mark attempts by method and outcome",
	}, []string{"method", "outcome"})

	TrainingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "attendance",
		Name:      "training_runs_total",
		Help:      "Training runs by result",
	}, []string{"result"})

	TrainingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "training_duration_seconds",
		Help:      "Wall time of a full model rebuild",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	ModelLabels = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "model_labels",
		Help:      "Number of identities in the current model",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "attendance",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "attendance",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)

var TrainingQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "attendance",
	Name:      "training_queue_depth",
	Help:      "Pending model rebuild requests",
})
