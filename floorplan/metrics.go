package floorplan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blemap_batches_total",
			Help: "Observation batches by outcome",
		},
		[]string{"result"}, // accepted, rejected, dropped, rendered, failed
	)

	FloorRendersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blemap_floor_renders_total",
			Help: "Floor renders by outcome",
		},
		[]string{"result"},
	)

	FloorRenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "blemap_floor_render_duration_seconds",
			Help:    "Time to render and save one annotated floor image",
			Buckets: prometheus.DefBuckets,
		},
	)

	DevicePlacements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blemap_device_placements_total",
			Help: "Devices drawn or skipped, by placement kind or skip reason",
		},
		[]string{"outcome"},
	)

	DispatchQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "blemap_dispatch_queue_depth",
			Help: "Batches waiting for a render worker",
		},
	)
)
