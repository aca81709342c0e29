package peer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/brainmesh/brainmesh-go/pkg/peer"
)

// snapshot is the on-disk form of the registry, used for fast restart.
// Losing it is harmless; gossip rebuilds the registry from seeds.
type snapshot struct {
	SavedAt time.Time     `json:"saved_at"`
	Peers   []peer.Record `json:"peers"`
}

// SaveSnapshot writes the current peer table to path atomically.
func (r *InMemoryRegistry) SaveSnapshot(path string) error {
	snap := snapshot{
		SavedAt: time.Now(),
		Peers:   r.List(),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode peer snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write peer snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace peer snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot restores peers from a snapshot written by SaveSnapshot.
// Restored peers enter as suspected so the first heartbeat cycle decides
// whether they are still there. Missing files are not an error.
func (r *InMemoryRegistry) LoadSnapshot(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read peer snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return 0, fmt.Errorf("failed to decode peer snapshot: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	loaded := 0
	for _, rec := range snap.Peers {
		if rec.NodeID == "" || rec.NodeID == r.localNodeID {
			continue
		}
		if _, exists := r.peers[rec.NodeID]; exists {
			continue
		}
		stored := rec
		stored.State = peer.StateSuspected
		stored.MissedHeartbeats = 0
		r.peers[rec.NodeID] = &stored
		loaded++
	}
	return loaded, nil
}
