package peer

import (
	"log"
	"sync"
	"time"

	"github.com/brainmesh/brainmesh-go/pkg/peer"
)

// InMemoryRegistry implements the peer.Registry interface with a mutex-guarded
// map. It is the single structure shared by the heartbeat, gossip, and sync
// tasks, so every method takes the lock. Records are copied in and out; the
// registry owns the only mutable copies.
type InMemoryRegistry struct {
	mu          sync.RWMutex
	localNodeID string
	maxMissed   int
	peers       map[string]*peer.Record
	now         func() time.Time
}

// NewInMemoryRegistry creates a registry. The local node id is excluded from
// all inserts so a node never tracks itself. maxMissed is the number of
// consecutive missed heartbeats before a peer is marked dead.
func NewInMemoryRegistry(localNodeID string, maxMissed int) *InMemoryRegistry {
	if maxMissed <= 0 {
		maxMissed = 3
	}
	return &InMemoryRegistry{
		localNodeID: localNodeID,
		maxMissed:   maxMissed,
		peers:       make(map[string]*peer.Record),
		now:         time.Now,
	}
}

// Upsert inserts or refreshes a peer after direct contact. Returns the
// previous state, or "" for a newly discovered peer.
func (r *InMemoryRegistry) Upsert(rec peer.Record) peer.State {
	if rec.NodeID == "" || rec.NodeID == r.localNodeID {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	existing, ok := r.peers[rec.NodeID]
	if !ok {
		stored := rec
		stored.State = peer.StateAlive
		stored.MissedHeartbeats = 0
		stored.LastSeen = now
		stored.FirstDiscoveredAt = now
		r.peers[rec.NodeID] = &stored
		log.Printf("peer: discovered %s (%s) at %s", shortID(rec.NodeID), rec.Persona, rec.Address)
		return ""
	}

	prev := existing.State
	if rec.Address != "" {
		existing.Address = rec.Address
	}
	if rec.Hostname != "" {
		existing.Hostname = rec.Hostname
	}
	if rec.Persona != "" {
		existing.Persona = rec.Persona
	}
	if rec.Capabilities != nil {
		existing.Capabilities = rec.Capabilities
	}
	existing.LastSeen = now
	existing.MissedHeartbeats = 0
	existing.State = peer.StateAlive
	if prev != peer.StateAlive {
		log.Printf("peer: %s (%s) is back alive", shortID(existing.NodeID), existing.Address)
	}
	return prev
}

// MarkMissed records a failed probe: alive -> suspected on the first miss,
// suspected -> dead once maxMissed consecutive misses accumulate.
func (r *InMemoryRegistry) MarkMissed(nodeID string) (peer.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.peers[nodeID]
	if !ok {
		return peer.Record{}, false
	}

	rec.MissedHeartbeats++
	switch {
	case rec.MissedHeartbeats >= r.maxMissed:
		if rec.State != peer.StateDead {
			log.Printf("peer: %s (%s) is dead after %d missed heartbeats", shortID(nodeID), rec.Address, rec.MissedHeartbeats)
		}
		rec.State = peer.StateDead
	default:
		if rec.State == peer.StateAlive {
			log.Printf("peer: %s (%s) is suspected", shortID(nodeID), rec.Address)
		}
		if rec.State != peer.StateDead {
			rec.State = peer.StateSuspected
		}
	}
	return *rec, true
}

// Get returns a copy of the record for nodeID.
func (r *InMemoryRegistry) Get(nodeID string) (peer.Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.peers[nodeID]
	if !ok {
		return peer.Record{}, false
	}
	return *rec, true
}

// List returns copies of all known peers.
func (r *InMemoryRegistry) List() []peer.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]peer.Record, 0, len(r.peers))
	for _, rec := range r.peers {
		out = append(out, *rec)
	}
	return out
}

// ListAlive returns the alive peers used as fanout targets.
func (r *InMemoryRegistry) ListAlive() []peer.Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]peer.Record, 0, len(r.peers))
	for _, rec := range r.peers {
		if rec.State == peer.StateAlive {
			out = append(out, *rec)
		}
	}
	return out
}

// Merge folds a gossiped peer list into the registry. Liveness state is never
// taken from gossip; only direct contact moves the state machine. A known
// peer's metadata is refreshed when the gossiped LastSeen is newer than ours.
func (r *InMemoryRegistry) Merge(records []peer.Record) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	added := 0
	for _, rec := range records {
		if rec.NodeID == "" || rec.NodeID == r.localNodeID {
			continue
		}
		existing, ok := r.peers[rec.NodeID]
		if !ok {
			stored := rec
			stored.State = peer.StateAlive
			stored.MissedHeartbeats = 0
			stored.FirstDiscoveredAt = r.now()
			if stored.LastSeen.IsZero() {
				stored.LastSeen = r.now()
			}
			r.peers[rec.NodeID] = &stored
			added++
			continue
		}
		if rec.LastSeen.After(existing.LastSeen) {
			if rec.Address != "" {
				existing.Address = rec.Address
			}
			if rec.Hostname != "" {
				existing.Hostname = rec.Hostname
			}
			if rec.Persona != "" {
				existing.Persona = rec.Persona
			}
			if rec.Capabilities != nil {
				existing.Capabilities = rec.Capabilities
			}
			existing.LastSeen = rec.LastSeen
		}
	}
	if added > 0 {
		log.Printf("peer: merged %d new peer(s) from gossip", added)
	}
	return added
}

// Prune removes peers dead for longer than retention.
func (r *InMemoryRegistry) Prune(retention time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	pruned := 0
	for nodeID, rec := range r.peers {
		if rec.State == peer.StateDead && now.Sub(rec.LastSeen) > retention {
			delete(r.peers, nodeID)
			pruned++
		}
	}
	if pruned > 0 {
		log.Printf("peer: pruned %d stale dead peer(s)", pruned)
	}
	return pruned
}

// Len returns the number of known peers.
func (r *InMemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Verify interface compliance at compile time.
var _ peer.Registry = (*InMemoryRegistry)(nil)
