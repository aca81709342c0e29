// Package identity manages the durable node identity: a UUID generated once
// at first boot, a best-effort capability manifest, and a derived persona
// label. The identity file is write-once; restarts never regenerate it.
package identity

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const identityFile = "identity.json"

// Identity is the durable identity of this node.
type Identity struct {
	NodeID       string    `json:"node_id"`
	Hostname     string    `json:"hostname"`
	Persona      string    `json:"persona"`
	Capabilities []string  `json:"capabilities"`
	CreatedAt    time.Time `json:"created_at"`
}

// ShortID returns the first eight characters of the node id, used in logs.
func (id Identity) ShortID() string {
	if len(id.NodeID) > 8 {
		return id.NodeID[:8]
	}
	return id.NodeID
}

// LoadOrCreate returns the persisted identity from dir if present, otherwise
// generates a new one and persists it atomically. Capability detection is
// best-effort and never fatal: on failure the capability set is empty.
func LoadOrCreate(dir string) (Identity, error) {
	path := filepath.Join(dir, identityFile)

	data, err := os.ReadFile(path)
	if err == nil {
		var id Identity
		if jsonErr := json.Unmarshal(data, &id); jsonErr == nil && id.NodeID != "" {
			return id, nil
		}
		// Unreadable identity files are replaced rather than fatal; the node
		// id is what matters and a corrupt file no longer holds one.
		log.Printf("identity: %s is corrupt, generating a new identity", path)
	} else if !os.IsNotExist(err) {
		return Identity{}, fmt.Errorf("failed to read identity: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	nodeID := uuid.NewString()
	id := Identity{
		NodeID:       nodeID,
		Hostname:     hostname,
		Persona:      PersonaFor(nodeID),
		Capabilities: DetectCapabilities(),
		CreatedAt:    time.Now(),
	}

	if err := save(path, id); err != nil {
		return Identity{}, err
	}
	log.Printf("identity: created node %s (%s)", id.ShortID(), id.Persona)
	return id, nil
}

func save(path string, id Identity) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create identity dir: %w", err)
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode identity: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write identity: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace identity: %w", err)
	}
	return nil
}
