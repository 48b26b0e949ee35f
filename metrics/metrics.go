package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion metrics
var (
	IngestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_ingest_runs_total",
			Help: "Total number of archive ingestion runs",
		},
		[]string{"status"}, // "ok", "model_not_found", "invalid_archive", "error"
	)

	IngestRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_ingest_run_duration_seconds",
			Help:    "Duration of archive ingestion runs",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	IngestFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_ingest_files_total",
			Help: "Files seen by the ingestion pipeline by outcome",
		},
		[]string{"outcome"}, // "processed", "duplicate", "error"
	)

	IngestSetsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_ingest_sets_created_total",
			Help: "Sets created by archive ingestion",
		},
	)

	IngestFileDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_ingest_file_duration_seconds",
			Help:    "Time spent processing one archive file",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind"},
	)

	IngestHashFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_ingest_hash_failures_total",
			Help: "Files ingested without a hash because hashing failed",
		},
	)

	CascadeUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_cascade_updates_total",
			Help: "Thumbnail cascade results per hierarchy level",
		},
		[]string{"level", "result"}, // level: set/model/studio, result: filled/error
	)
)

// Worker metrics
var (
	IngestQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_ingest_queue_depth",
			Help: "Archive ingestion jobs waiting for a worker",
		},
	)

	IngestJobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "catalog_ingest_jobs_in_flight",
			Help: "Archive ingestion jobs currently running",
		},
	)

	UploadTempSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_upload_temp_swept_total",
			Help: "Stale temporary uploads removed by the sweeper",
		},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
