package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rotation metrics
var (
	RotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollarc_rotations_total",
			Help: "Total number of rollover attempts",
		},
		[]string{"status"},
	)
)

// Storage metrics
var (
	S3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollarc_s3_operations_total",
			Help: "Total number of S3 operations",
		},
		[]string{"operation", "status"},
	)

	S3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollarc_s3_operation_duration_seconds",
			Help:    "Duration of S3 operations in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
		[]string{"operation"},
	)
)

// Upload worker metrics
var (
	UploadWorkerJobs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollarc_upload_worker_jobs_total",
			Help: "Total number of upload jobs processed by the worker",
		},
		[]string{"result"},
	)

	UploadWorkerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollarc_upload_worker_duration_seconds",
			Help:    "Duration of individual uploads in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		},
	)

	UploadQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollarc_upload_queue_depth",
			Help: "Number of upload requests waiting in the queue",
		},
	)

	UploadsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollarc_uploads_skipped_total",
			Help: "Total number of submissions skipped before queueing",
		},
		[]string{"reason"},
	)
)
