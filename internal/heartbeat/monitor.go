// Package heartbeat implements the failure detector: a high-frequency prober
// that feeds the peer registry's liveness state machine.
package heartbeat

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/brainmesh/brainmesh-go/internal/metrics"
	"github.com/brainmesh/brainmesh-go/pkg/httpclient"
	"github.com/brainmesh/brainmesh-go/pkg/peer"
)

// Config holds monitor configuration.
type Config struct {
	Interval    time.Duration // probe cycle interval
	Timeout     time.Duration // per-probe timeout
	Concurrency int           // max in-flight probes
}

// SetDefaults sets sensible default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
}

// Monitor probes every known peer each interval. A response upserts the peer
// (any state back to alive); a failure or timeout marks a miss. Dead peers
// keep being probed until pruned so recovery needs no rediscovery.
type Monitor struct {
	config    Config
	registry  peer.Registry
	client    *httpclient.Client
	onRecover func(nodeID string)
}

// NewMonitor creates a heartbeat monitor. onRecover, if non-nil, is invoked
// when a dead peer responds again (used to request an immediate sync).
func NewMonitor(config Config, registry peer.Registry, client *httpclient.Client, onRecover func(nodeID string)) *Monitor {
	config.SetDefaults()
	return &Monitor{
		config:    config,
		registry:  registry,
		client:    client,
		onRecover: onRecover,
	}
}

// Run probes on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Cycle(ctx)
		}
	}
}

// Cycle probes all known peers once with bounded parallelism. One
// unresponsive peer cannot stall the cycle beyond the probe timeout.
func (m *Monitor) Cycle(ctx context.Context) {
	peers := m.registry.List()
	if len(peers) == 0 {
		return
	}

	sem := make(chan struct{}, m.config.Concurrency)
	var wg sync.WaitGroup
	for _, p := range peers {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(p peer.Record) {
			defer wg.Done()
			defer func() { <-sem }()
			m.probe(ctx, p)
		}(p)
	}
	wg.Wait()
	updatePeerGauges(m.registry)
}

func (m *Monitor) probe(ctx context.Context, p peer.Record) {
	probeCtx, cancel := context.WithTimeout(ctx, m.config.Timeout)
	defer cancel()

	resp, err := m.client.Heartbeat(probeCtx, p.Address)
	if err != nil || resp.NodeID == "" {
		metrics.HeartbeatProbes.WithLabelValues("failed").Inc()
		m.registry.MarkMissed(p.NodeID)
		return
	}

	metrics.HeartbeatProbes.WithLabelValues("ok").Inc()
	prev := m.registry.Upsert(peer.Record{NodeID: resp.NodeID, Address: p.Address})
	if prev == peer.StateDead && m.onRecover != nil {
		log.Printf("heartbeat: dead peer %s is back, requesting resync", p.Address)
		m.onRecover(resp.NodeID)
	}
}

func updatePeerGauges(registry peer.Registry) {
	counts := map[peer.State]int{
		peer.StateAlive:     0,
		peer.StateSuspected: 0,
		peer.StateDead:      0,
	}
	for _, p := range registry.List() {
		counts[p.State]++
	}
	for state, n := range counts {
		metrics.PeersByState.WithLabelValues(string(state)).Set(float64(n))
	}
}
