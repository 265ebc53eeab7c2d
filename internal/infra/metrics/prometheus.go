package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_expander_jobs_processed_total",
		Help: "Total number of expansion jobs processed, by status",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frame_expander_job_processing_duration_seconds",
		Help:    "Duration of each stage of the expansion pipeline",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	}, []string{"stage"})

	FramesExpandedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frame_expander_frames_expanded_total",
		Help: "Total number of frames written across all jobs",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frame_expander_active_workers",
		Help: "Number of workers currently expanding a job",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frame_expander_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
