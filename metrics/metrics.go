// Package metrics holds the Prometheus collectors served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspot_events_accepted_total",
		Help: "Events accepted from tracker batches, by event type",
	}, []string{"event_type"})

	BatchesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspot_batches_rejected_total",
		Help: "Tracker batches rejected as a whole, by reason",
	}, []string{"reason"})

	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotspot_sessions_opened_total",
		Help: "Sessions created on first contact",
	})

	RecordingFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotspot_recording_frames_total",
		Help: "Recording frames appended to session timelines",
	})

	HeatmapDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hotspot_heatmap_generation_seconds",
		Help:    "Time spent generating a heatmap, by kind",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	FunnelComputations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hotspot_funnel_computations_total",
		Help: "Funnel analytics computed",
	})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotspot_http_requests_total",
		Help: "HTTP requests served, by route and status",
	}, []string{"route", "status"})
)
