// Package syncer replicates memory files across the mesh. Each cycle it
// fetches every alive peer's manifest, diffs it against the local store, and
// transfers only the differing files, one per request, in both directions.
package syncer

import (
	"context"
	"log"
	"time"

	"github.com/brainmesh/brainmesh-go/internal/metrics"
	"github.com/brainmesh/brainmesh-go/pkg/httpclient"
	"github.com/brainmesh/brainmesh-go/pkg/peer"
	"github.com/brainmesh/brainmesh-go/pkg/store"
)

// Config holds syncer configuration.
type Config struct {
	Interval    time.Duration // full-mesh sync cycle interval
	FileTimeout time.Duration // per-file transfer timeout
	BatchLimit  int           // max files transferred per peer per cycle
}

// SetDefaults sets sensible default values for unset configuration fields.
func (c *Config) SetDefaults() {
	if c.Interval <= 0 {
		c.Interval = 300 * time.Second
	}
	if c.FileTimeout <= 0 {
		c.FileTimeout = 10 * time.Second
	}
	if c.BatchLimit <= 0 {
		c.BatchLimit = 64
	}
}

// Syncer runs the periodic sync cycles and serves on-demand requests from
// the heartbeat monitor when a dead peer comes back.
type Syncer struct {
	config   Config
	registry peer.Registry
	warm     store.Warm
	client   *httpclient.Client
	pending  chan string
}

// NewSyncer creates a syncer.
func NewSyncer(config Config, registry peer.Registry, warm store.Warm, client *httpclient.Client) *Syncer {
	config.SetDefaults()
	return &Syncer{
		config:   config,
		registry: registry,
		warm:     warm,
		client:   client,
		pending:  make(chan string, 16),
	}
}

// RequestSync queues an immediate sync with one peer, ahead of the regular
// cycle. Safe to call from any goroutine; drops the request if the queue is
// full, since the next cycle covers it anyway.
func (s *Syncer) RequestSync(nodeID string) {
	select {
	case s.pending <- nodeID:
	default:
	}
}

// Run syncs on the configured interval, and immediately for queued recovery
// requests, until ctx is cancelled.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case nodeID := <-s.pending:
			if rec, ok := s.registry.Get(nodeID); ok && rec.Reachable() {
				s.SyncPeer(ctx, rec)
			}
		case <-ticker.C:
			s.Cycle(ctx)
		}
	}
}

// Cycle syncs with every alive peer once.
func (s *Syncer) Cycle(ctx context.Context) {
	peers := s.registry.ListAlive()
	if len(peers) == 0 {
		return
	}

	start := time.Now()
	for _, p := range peers {
		if ctx.Err() != nil {
			return
		}
		s.SyncPeer(ctx, p)
	}
	metrics.SyncCycleDuration.Observe(time.Since(start).Seconds())
}

// SyncPeer reconciles state with one peer: manifest, diff, then pull and push
// the differing files. An unreachable peer is logged and skipped; the
// heartbeat monitor owns liveness.
func (s *Syncer) SyncPeer(ctx context.Context, p peer.Record) {
	manifestCtx, cancel := context.WithTimeout(ctx, s.config.FileTimeout)
	remote, err := s.client.Manifest(manifestCtx, p.Address)
	cancel()
	if err != nil {
		log.Printf("sync: manifest from %s failed: %v", p.Address, err)
		return
	}

	pulls, pushes := s.warm.Diff(remote)
	pulls = capPaths(pulls, s.config.BatchLimit)
	pushes = capPaths(pushes, s.config.BatchLimit)
	if len(pulls) == 0 && len(pushes) == 0 {
		return
	}
	log.Printf("sync: %s needs %d pull(s), %d push(es)", p.Address, len(pulls), len(pushes))

	for _, path := range pulls {
		if ctx.Err() != nil {
			return
		}
		s.pullOne(ctx, p, path)
	}
	for _, path := range pushes {
		if ctx.Err() != nil {
			return
		}
		s.pushOne(ctx, p, path)
	}
}

// pullOne fetches a single file and applies it. The content hash is verified
// before anything touches the store; a corrupted transfer is dropped and the
// next cycle retries.
func (s *Syncer) pullOne(ctx context.Context, p peer.Record, path string) {
	fileCtx, cancel := context.WithTimeout(ctx, s.config.FileTimeout)
	defer cancel()

	files, err := s.client.Pull(fileCtx, p.Address, []string{path})
	if err != nil {
		metrics.SyncFiles.WithLabelValues("pull", "failed").Inc()
		log.Printf("sync: pull %s from %s failed: %v", path, p.Address, err)
		return
	}
	if len(files) == 0 {
		// Peer no longer holds the path; nothing to apply.
		return
	}

	f := files[0]
	if store.HashBytes(f.Content) != f.Hash {
		metrics.SyncFiles.WithLabelValues("pull", "corrupt").Inc()
		log.Printf("sync: pull %s from %s rejected, hash mismatch", path, p.Address)
		return
	}

	accepted, err := s.warm.Apply(f.Meta(), f.Content)
	if err != nil {
		metrics.SyncFiles.WithLabelValues("pull", "failed").Inc()
		log.Printf("sync: apply %s from %s failed: %v", path, p.Address, err)
		return
	}
	if accepted {
		metrics.SyncFiles.WithLabelValues("pull", "ok").Inc()
	}
}

// pushOne offers a single local file to the peer. Rejections are the peer's
// prerogative (its copy may be newer); only transport errors are failures.
func (s *Syncer) pushOne(ctx context.Context, p peer.Record, path string) {
	mf, content, err := s.warm.Get(path)
	if err != nil {
		// Locally archived or deleted since the diff; skip.
		return
	}

	fileCtx, cancel := context.WithTimeout(ctx, s.config.FileTimeout)
	defer cancel()

	results, err := s.client.Push(fileCtx, p.Address, []httpclient.FilePayload{httpclient.PayloadFor(mf, content)})
	if err != nil {
		metrics.SyncFiles.WithLabelValues("push", "failed").Inc()
		log.Printf("sync: push %s to %s failed: %v", path, p.Address, err)
		return
	}
	for _, r := range results {
		if r.Accepted {
			metrics.SyncFiles.WithLabelValues("push", "ok").Inc()
		} else {
			metrics.SyncFiles.WithLabelValues("push", "rejected").Inc()
			log.Printf("sync: push %s to %s rejected: %s", r.Path, p.Address, r.Reason)
		}
	}
}

func capPaths(paths []string, limit int) []string {
	if len(paths) > limit {
		return paths[:limit]
	}
	return paths
}
