package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	TasksTotal  *prometheus.CounterVec
	TasksFailed *prometheus.CounterVec

	TaskDuration   prometheus.Histogram
	FFmpegDuration prometheus.Histogram
	FetchDuration  prometheus.Histogram
	UploadDuration prometheus.Histogram

	VideoSizeBytes prometheus.Histogram

	ActiveTasks prometheus.Gauge

	VideosRendered *prometheus.CounterVec
	ClipsFetched   *prometheus.CounterVec
}

// NewMetrics registers all collectors on reg; pass a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shortsgen_tasks_total",
				Help: "Total number of tasks processed",
			},
			[]string{"status"}, // completed, failed
		),

		TasksFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shortsgen_tasks_failed_total",
				Help: "Total number of failed tasks by error type",
			},
			[]string{"error_type", "operation"},
		),

		TaskDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shortsgen_task_duration_seconds",
				Help:    "Time taken to process a task",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~512s
			},
		),

		FFmpegDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shortsgen_ffmpeg_duration_seconds",
				Help:    "Time taken for a single FFmpeg invocation",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),

		FetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shortsgen_fetch_duration_seconds",
				Help:    "Time taken to fetch remote media (clips, audio, downloads)",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
		),

		UploadDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shortsgen_upload_duration_seconds",
				Help:    "Time taken to upload results to object storage",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),

		VideoSizeBytes: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shortsgen_video_size_bytes",
				Help:    "Size of rendered video files",
				Buckets: prometheus.ExponentialBuckets(1024, 2, 20), // 1KB to ~512MB
			},
		),

		ActiveTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "shortsgen_active_tasks",
				Help: "Number of tasks currently being processed",
			},
		),

		VideosRendered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shortsgen_videos_rendered_total",
				Help: "Count of videos rendered by platform",
			},
			[]string{"platform"},
		),

		ClipsFetched: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shortsgen_clips_fetched_total",
				Help: "Count of stock clips fetched by provider",
			},
			[]string{"provider"},
		),
	}
}
