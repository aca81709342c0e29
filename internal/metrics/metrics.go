// Package metrics holds the Prometheus instrumentation for the mesh node.
// Everything is registered via promauto on the default registry and exposed
// by the HTTP server at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "brainmesh"

var (
	// HeartbeatProbes counts heartbeat probes by outcome.
	HeartbeatProbes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeat_probes_total",
			Help:      "Total heartbeat probes issued to peers",
		},
		[]string{"status"}, // ok/failed
	)

	// PeersByState tracks the registry size per liveness state.
	PeersByState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Known peers by liveness state",
		},
		[]string{"state"}, // alive/suspected/dead
	)

	// GossipExchanges counts gossip rounds per peer by outcome.
	GossipExchanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gossip_exchanges_total",
			Help:      "Total gossip exchanges attempted",
		},
		[]string{"status"}, // ok/failed
	)

	// SyncFiles counts replicated files by direction and outcome.
	SyncFiles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_files_total",
			Help:      "Files transferred by the sync protocol",
		},
		[]string{"direction", "status"}, // pull/push, ok/rejected/corrupt/failed
	)

	// SyncCycleDuration measures full sync cycle latency.
	SyncCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_cycle_duration_seconds",
			Help:      "Duration of a full sync cycle across all peers",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		},
	)

	// MemoryFiles tracks the number of memory files per tier.
	MemoryFiles = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_files",
			Help:      "Memory files in the store by tier",
		},
		[]string{"tier"}, // active/archive
	)

	// ArchivedFiles counts files moved to the archive tier by the sweep.
	ArchivedFiles = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_files_total",
			Help:      "Files moved from the active to the archive tier",
		},
	)
)
