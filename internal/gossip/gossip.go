// Package gossip spreads peer knowledge through the mesh: each round the node
// exchanges its full peer list with a few random alive peers, so membership
// converges without any central registry.
package gossip

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/brainmesh/brainmesh-go/internal/metrics"
	"github.com/brainmesh/brainmesh-go/pkg/httpclient"
	"github.com/brainmesh/brainmesh-go/pkg/peer"
)

// Config holds gossip configuration.
type Config struct {
	Interval      time.Duration // round interval
	Timeout       time.Duration // per-exchange timeout
	Fanout        int           // peers contacted per round
	DeadRetention time.Duration // how long dead peers are kept before pruning
	Seeds         []string      // bootstrap addresses (host:port)
}

// SetDefaults sets sensible default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Interval <= 0 {
		c.Interval = 60 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.Fanout <= 0 {
		c.Fanout = 3
	}
	if c.DeadRetention <= 0 {
		c.DeadRetention = time.Hour
	}
}

// Protocol runs the periodic gossip rounds. When the registry knows no alive
// peers it falls back to the configured seed addresses, so a restarted or
// isolated node can rejoin the mesh.
type Protocol struct {
	config   Config
	self     func() peer.Record
	registry peer.Registry
	client   *httpclient.Client
	rand     *rand.Rand
}

// NewProtocol creates a gossip protocol task. self supplies the node's own
// record, sent with every exchange so the receiver learns about us too.
func NewProtocol(config Config, self func() peer.Record, registry peer.Registry, client *httpclient.Client) *Protocol {
	config.SetDefaults()
	return &Protocol{
		config:   config,
		self:     self,
		registry: registry,
		client:   client,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run gossips immediately, then on the configured interval until ctx is
// cancelled. The immediate round makes a fresh node visible without waiting
// a full interval.
func (g *Protocol) Run(ctx context.Context) {
	g.Round(ctx)

	ticker := time.NewTicker(g.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Round(ctx)
		}
	}
}

// Round performs one gossip round: pick targets, exchange peer lists, prune
// long-dead peers.
func (g *Protocol) Round(ctx context.Context) {
	for _, address := range g.targets() {
		if ctx.Err() != nil {
			return
		}
		g.exchange(ctx, address)
	}

	if removed := g.registry.Prune(g.config.DeadRetention); removed > 0 {
		log.Printf("gossip: pruned %d dead peer(s)", removed)
	}
}

// targets picks the addresses for this round: up to Fanout random alive
// peers, or the seeds when no alive peer is known.
func (g *Protocol) targets() []string {
	alive := g.registry.ListAlive()
	if len(alive) == 0 {
		return g.seedAddresses()
	}

	g.rand.Shuffle(len(alive), func(i, j int) {
		alive[i], alive[j] = alive[j], alive[i]
	})
	if len(alive) > g.config.Fanout {
		alive = alive[:g.config.Fanout]
	}
	addresses := make([]string, 0, len(alive))
	for _, p := range alive {
		addresses = append(addresses, p.Address)
	}
	return addresses
}

func (g *Protocol) seedAddresses() []string {
	self := g.self()
	var out []string
	for _, seed := range g.config.Seeds {
		if seed == "" || seed == self.Address {
			continue
		}
		out = append(out, seed)
	}
	return out
}

// exchange sends our peer list to one address and merges what comes back.
// The responder itself is upserted from direct contact; its peer list only
// contributes membership, never liveness.
func (g *Protocol) exchange(ctx context.Context, address string) {
	exCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	req := httpclient.GossipRequest{
		Sender: g.self(),
		Peers:  g.registry.List(),
	}
	resp, err := g.client.Gossip(exCtx, address, req)
	if err != nil {
		metrics.GossipExchanges.WithLabelValues("failed").Inc()
		log.Printf("gossip: exchange with %s failed: %v", address, err)
		if rec, ok := g.findByAddress(address); ok {
			g.registry.MarkMissed(rec.NodeID)
		}
		return
	}

	metrics.GossipExchanges.WithLabelValues("ok").Inc()
	if resp.Node.Address == "" {
		resp.Node.Address = address
	}
	g.registry.Upsert(resp.Node)
	if added := g.registry.Merge(resp.Peers); added > 0 {
		log.Printf("gossip: learned %d new peer(s) from %s", added, address)
	}
}

func (g *Protocol) findByAddress(address string) (peer.Record, bool) {
	for _, p := range g.registry.List() {
		if p.Address == address {
			return p, true
		}
	}
	return peer.Record{}, false
}
