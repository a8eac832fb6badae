package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtvision_uploads_total",
		Help: "Uploads driven by the upload controller, by outcome",
	}, []string{"result"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "courtvision_stage_duration_seconds",
		Help:    "Duration of upload, analysis and worker stages",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	StatusPollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtvision_status_polls_total",
		Help: "Job status requests, by reported status",
	}, []string{"status"})

	StreamFramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtvision_stream_frames_total",
		Help: "Visualization frames, by stream and outcome",
	}, []string{"stream", "outcome"})

	LiveFPS = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "courtvision_live_fps",
		Help: "Frames sent per second by the live streamer",
	})

	SocketErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtvision_socket_errors_total",
		Help: "Non-fatal socket errors, by stream",
	}, []string{"stream"})

	WorkerJobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtvision_worker_jobs_total",
		Help: "Queued analysis requests handled by the worker, by status",
	}, []string{"status"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "courtvision_active_workers",
		Help: "Analysis requests currently in progress",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "courtvision_retry_total",
		Help: "Worker retries, by attempt",
	}, []string{"attempt"})
)

const (
	StreamRecorded = "recorded"
	StreamLive     = "live"

	OutcomeDrawn   = "drawn"
	OutcomeIgnored = "ignored"
	OutcomeSent    = "sent"
	OutcomeDropped = "dropped"
)
