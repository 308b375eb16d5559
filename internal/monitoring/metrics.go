// Package monitoring declares the Prometheus instruments shared across the
// service. Collectors register on the default registry; /metrics serves them.
package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "im"

var (
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "active_connections",
		Help:      "Open WebSocket sessions on this node.",
	})

	ConnectedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "connected_users",
		Help:      "Distinct users with at least one session on this node.",
	})

	DroppedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "dropped_frames_total",
		Help:      "Frames shed because a session mailbox stayed full.",
	})

	FramesIn = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "frames_in_total",
		Help:      "Client frames read, by frame type.",
	}, []string{"type"})

	FramesOut = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "frames_out_total",
		Help:      "Server frames accepted into session mailboxes, by frame type.",
	}, []string{"type"})

	ErrorFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "router",
		Name:      "error_frames_total",
		Help:      "Error frames sent to clients, by code.",
	}, []string{"code"})

	DeliveryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "delivery",
		Name:      "outcomes_total",
		Help:      "Send outcomes, by operation and outcome (delivered, queued, failed).",
	}, []string{"op", "outcome"})

	PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "persist_failures_total",
		Help:      "Message rows that could not be written, by kind.",
	}, []string{"kind"})

	FlushBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "flush",
		Name:      "batch_size",
		Help:      "Messages delivered per offline flush.",
		Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
	})

	RelayFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "relay",
		Name:      "frames_total",
		Help:      "Relay traffic, by direction (published, delivered, dropped).",
	}, []string{"direction"})
)
