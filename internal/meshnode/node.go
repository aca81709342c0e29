// Package meshnode wires the pieces into a running node: identity, peer
// registry, memory tiers, HTTP server, and the heartbeat, gossip, sync, and
// maintenance loops.
package meshnode

import (
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/brainmesh/brainmesh-go/internal/gossip"
	"github.com/brainmesh/brainmesh-go/internal/heartbeat"
	"github.com/brainmesh/brainmesh-go/internal/httpapi"
	"github.com/brainmesh/brainmesh-go/internal/identity"
	"github.com/brainmesh/brainmesh-go/internal/metrics"
	internalpeer "github.com/brainmesh/brainmesh-go/internal/peer"
	internalstore "github.com/brainmesh/brainmesh-go/internal/store"
	"github.com/brainmesh/brainmesh-go/internal/syncer"
	"github.com/brainmesh/brainmesh-go/pkg/httpclient"
	"github.com/brainmesh/brainmesh-go/pkg/peer"
	"github.com/brainmesh/brainmesh-go/pkg/store"
)

// Node is a running mesh node.
type Node struct {
	config   Config
	identity identity.Identity
	registry *internalpeer.InMemoryRegistry
	warm     *internalstore.FileStore
	hot      store.Hot
	client   *httpclient.Client

	monitor *heartbeat.Monitor
	gossip  *gossip.Protocol
	syncer  *syncer.Syncer
	server  *httpapi.Server

	address   string
	startTime time.Time

	mu       sync.Mutex
	listener net.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewNode builds a node from config. Nothing is listening yet; Start binds
// the port and launches the background tasks.
func NewNode(config Config) (*Node, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	id, err := identity.LoadOrCreate(config.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load identity: %w", err)
	}

	address, err := config.AdvertiseAddress()
	if err != nil {
		return nil, err
	}

	registry := internalpeer.NewInMemoryRegistry(id.NodeID, 3)
	if loaded, err := registry.LoadSnapshot(filepath.Join(config.DataDir, "peers.json")); err != nil {
		log.Printf("node: ignoring unreadable peer snapshot: %v", err)
	} else if loaded > 0 {
		log.Printf("node: restored %d peer(s) from snapshot", loaded)
	}

	warm, err := internalstore.NewFileStore(filepath.Join(config.DataDir, "memories"), id.NodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory store: %w", err)
	}

	hot, err := internalstore.NewBadgerHot(filepath.Join(config.DataDir, "hot"))
	if err != nil {
		return nil, fmt.Errorf("failed to open hot store: %w", err)
	}

	client := httpclient.New(httpclient.Config{Timeout: 30 * time.Second})

	node := &Node{
		config:    config,
		identity:  id,
		registry:  registry,
		warm:      warm,
		hot:       hot,
		client:    client,
		address:   address,
		startTime: time.Now(),
	}

	node.syncer = syncer.NewSyncer(syncer.Config{
		Interval:    config.SyncInterval.Std(),
		FileTimeout: config.SyncFileTimeout.Std(),
		BatchLimit:  config.SyncBatchLimit,
	}, registry, warm, client)

	node.monitor = heartbeat.NewMonitor(heartbeat.Config{
		Interval:    config.HeartbeatInterval.Std(),
		Timeout:     config.HeartbeatTimeout.Std(),
		Concurrency: config.HeartbeatConcurrency,
	}, registry, client, node.syncer.RequestSync)

	node.gossip = gossip.NewProtocol(gossip.Config{
		Interval:      config.GossipInterval.Std(),
		Timeout:       config.GossipTimeout.Std(),
		Fanout:        config.GossipFanout,
		DeadRetention: config.DeadRetention.Std(),
		Seeds:         config.Seeds,
	}, node.SelfRecord, registry, client)

	node.server = httpapi.NewServer(node, httpapi.Config{
		SecretKey: config.APISecret,
		NoAuth:    config.NoAuth,
	})

	return node, nil
}

// Start binds the listen port and launches the HTTP server and background
// tasks. A port already in use fails here, before any task runs.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listener != nil {
		return fmt.Errorf("node already started")
	}

	ln, err := net.Listen("tcp", n.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", n.config.Listen, err)
	}
	n.listener = ln

	// With an ephemeral listen port the advertise address is only known now.
	if n.config.Advertise == "" {
		if host, port, err := net.SplitHostPort(n.address); err == nil && port == "0" {
			if _, actual, err := net.SplitHostPort(ln.Addr().String()); err == nil {
				n.address = net.JoinHostPort(host, actual)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.server.Serve(ln); err != nil && ctx.Err() == nil {
			log.Printf("node: http server stopped: %v", err)
		}
	}()

	for _, task := range []func(context.Context){
		n.monitor.Run,
		n.gossip.Run,
		n.syncer.Run,
		n.maintenanceLoop,
	} {
		n.wg.Add(1)
		go func(run func(context.Context)) {
			defer n.wg.Done()
			run(ctx)
		}(task)
	}

	log.Printf("node: %s (%s) listening on %s, advertising %s",
		n.identity.ShortID(), n.identity.Persona, n.config.Listen, n.address)
	return nil
}

// Stop shuts the node down: stop accepting requests, cancel the background
// tasks, persist the peer snapshot, close the hot store.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listener == nil {
		return nil
	}

	n.cancel()
	if err := n.server.Stop(ctx); err != nil {
		log.Printf("node: http shutdown: %v", err)
	}

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		log.Printf("node: background tasks did not stop in time")
	}
	n.listener = nil

	if err := n.registry.SaveSnapshot(filepath.Join(n.config.DataDir, "peers.json")); err != nil {
		log.Printf("node: failed to save peer snapshot: %v", err)
	}
	if err := n.hot.Close(); err != nil {
		return fmt.Errorf("failed to close hot store: %w", err)
	}
	return nil
}

// maintenanceLoop runs the slow housekeeping: archive sweeps, the monthly
// digest, store gauges, and periodic peer snapshots.
func (n *Node) maintenanceLoop(ctx context.Context) {
	ticker := time.NewTicker(n.config.ArchiveSweepInterval.Std())
	defer ticker.Stop()

	n.updateStoreGauges()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.maintain()
		}
	}
}

func (n *Node) maintain() {
	moved, err := n.warm.Archive(n.config.ArchiveThreshold.Std())
	if err != nil {
		log.Printf("node: archive sweep failed: %v", err)
	} else if moved > 0 {
		metrics.ArchivedFiles.Add(float64(moved))
		log.Printf("node: archived %d file(s)", moved)
	}

	// Digest the previous month once its files have settled in the archive.
	month := time.Now().UTC().AddDate(0, -1, 0)
	if _, err := n.warm.Consolidate(month); err != nil {
		log.Printf("node: consolidation of %s failed: %v", month.Format("2006-01"), err)
	}

	n.updateStoreGauges()
	if err := n.registry.SaveSnapshot(filepath.Join(n.config.DataDir, "peers.json")); err != nil {
		log.Printf("node: failed to save peer snapshot: %v", err)
	}
}

func (n *Node) updateStoreGauges() {
	stats := n.warm.Stats()
	metrics.MemoryFiles.WithLabelValues(string(store.TierActive)).Set(float64(stats.ActiveFiles))
	metrics.MemoryFiles.WithLabelValues(string(store.TierArchive)).Set(float64(stats.ArchiveFiles))
}

// SelfRecord returns this node as a peer record, sent in gossip exchanges.
func (n *Node) SelfRecord() peer.Record {
	return peer.Record{
		NodeID:       n.identity.NodeID,
		Address:      n.address,
		Hostname:     n.identity.Hostname,
		Persona:      n.identity.Persona,
		Capabilities: n.identity.Capabilities,
		State:        peer.StateAlive,
		LastSeen:     time.Now().UTC(),
	}
}

// Externalize renders a hot record as markdown into the active tier, from
// where the sync protocol replicates it.
func (n *Node) Externalize(ctx context.Context, id string) (store.MemoryFile, error) {
	rec, err := n.hot.Get(id)
	if err != nil {
		return store.MemoryFile{}, err
	}
	path := internalstore.ExternalPath(rec)
	mf, err := n.warm.Put(path, internalstore.RenderMarkdown(rec))
	if err != nil {
		return store.MemoryFile{}, fmt.Errorf("failed to externalize record: %w", err)
	}
	return mf, nil
}

// Accessors implementing the HTTP API's view of the node.

func (n *Node) Identity() identity.Identity { return n.identity }
func (n *Node) Address() string             { return n.address }
func (n *Node) StartTime() time.Time        { return n.startTime }
func (n *Node) Registry() peer.Registry     { return n.registry }
func (n *Node) Warm() store.Warm            { return n.warm }
func (n *Node) Hot() store.Hot              { return n.hot }

// ListenAddr returns the actual bound address, useful when listening on
// port 0 in tests.
func (n *Node) ListenAddr() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// Verify interface compliance at compile time.
var _ httpapi.Node = (*Node)(nil)
