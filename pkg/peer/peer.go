package peer

import (
	"time"
)

// State is the liveness state of a peer as seen by the local node.
type State string

const (
	// StateAlive means the peer responded to its most recent probe.
	StateAlive State = "alive"
	// StateSuspected means the peer missed at least one heartbeat.
	StateSuspected State = "suspected"
	// StateDead means the peer missed enough consecutive heartbeats to be
	// considered gone. Dead peers are excluded from fanout but kept in the
	// registry until pruned so a late recovery needs no rediscovery.
	StateDead State = "dead"
)

// Record describes a known peer and the local view of its liveness.
// Records are passed by value; the registry owns the authoritative copy.
type Record struct {
	NodeID       string   `json:"node_id"`
	Address      string   `json:"address"` // host:port
	Hostname     string   `json:"hostname,omitempty"`
	Persona      string   `json:"persona,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`

	State             State     `json:"state"`
	LastSeen          time.Time `json:"last_seen"`
	MissedHeartbeats  int       `json:"missed_heartbeats"`
	FirstDiscoveredAt time.Time `json:"first_discovered_at"`
}

// Reachable reports whether the peer is worth contacting at all.
func (r Record) Reachable() bool {
	return r.State == StateAlive || r.State == StateSuspected
}

// Registry is the shared table of known peers. It is the only structure
// mutated by the heartbeat, gossip, and sync tasks concurrently, so every
// method must be safe for concurrent use.
type Registry interface {
	// Upsert inserts an unknown peer as alive, or refreshes a known peer's
	// address and last-seen time and resets its missed-heartbeat count.
	// Any successful direct contact transitions the peer back to alive.
	// It returns the peer's previous state, or "" if the peer was unknown.
	Upsert(rec Record) State

	// MarkMissed records a failed probe. One miss moves an alive peer to
	// suspected; enough consecutive misses move it to dead. The updated
	// record is returned; ok is false if the peer is unknown.
	MarkMissed(nodeID string) (rec Record, ok bool)

	// Get returns a copy of the record for the given node.
	Get(nodeID string) (Record, bool)

	// List returns copies of all known peers.
	List() []Record

	// ListAlive returns peers in the alive state, the fanout targets for
	// gossip and sync.
	ListAlive() []Record

	// Merge folds a gossiped peer list into the registry. Unknown peers are
	// inserted; for known peers only metadata and a newer last-seen time are
	// taken, never liveness state (liveness is decided by direct contact).
	// It returns the number of newly discovered peers.
	Merge(records []Record) int

	// Prune removes peers that have been dead for longer than retention and
	// returns how many were removed.
	Prune(retention time.Duration) int

	// Len returns the number of known peers.
	Len() int
}
