package store

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Tier is a storage class with its own mutation and retention rules.
type Tier string

const (
	// TierActive holds current working memories; both the local agent and
	// the sync protocol write here.
	TierActive Tier = "active"
	// TierArchive holds memories aged out of the active tier. Append-mostly;
	// files keep their hash and timestamp across the move.
	TierArchive Tier = "archive"
)

// MemoryFile is the metadata for one synced memory file. Path is the logical
// relative path and stays stable when a file moves between tiers; the
// physical location is derived from Tier and LastModified.
type MemoryFile struct {
	Path         string    `json:"path"`
	Hash         string    `json:"hash"` // sha256 of content bytes
	Origin       string    `json:"origin"`
	LastModified time.Time `json:"last_modified"`
	Tier         Tier      `json:"tier"`
	Size         int64     `json:"size"`
}

// Age returns how long ago the file was last modified.
func (m MemoryFile) Age(now time.Time) time.Duration {
	return now.Sub(m.LastModified)
}

// ManifestEntry is the per-path fingerprint exchanged during sync.
type ManifestEntry struct {
	Hash         string    `json:"hash"`
	LastModified time.Time `json:"last_modified"`
	Origin       string    `json:"origin"`
	Tier         Tier      `json:"tier"`
}

// Manifest maps logical paths to fingerprints. Computed on demand, never
// persisted; diffing two manifests decides what to transfer without moving
// content.
type Manifest map[string]ManifestEntry

// HashBytes returns the canonical content hash: hex sha256 of the raw bytes.
// Equal hash implies equal content regardless of origin.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Newer reports whether version a beats version b under last-write-wins:
// the later LastModified wins, ties go to the lexicographically smaller
// origin node id. Deliberately lossy; the losing content is discarded.
func Newer(aModified time.Time, aOrigin string, bModified time.Time, bOrigin string) bool {
	if aModified.After(bModified) {
		return true
	}
	if bModified.After(aModified) {
		return false
	}
	return aOrigin < bOrigin
}

// Warm is the synced file tier: the content-addressed path -> (bytes, hash,
// timestamp) abstraction the sync protocol diffs and replicates.
type Warm interface {
	// Put writes a local edit into the active tier, stamping this node as
	// origin and now as the modification time. Writing identical bytes is a
	// no-op returning the existing metadata.
	Put(path string, content []byte) (MemoryFile, error)

	// Apply writes a replicated file with metadata from a remote node.
	// The write is gated by last-write-wins against the local version and
	// is rejected (accepted=false, no error) if the local version wins.
	Apply(mf MemoryFile, content []byte) (accepted bool, err error)

	// Get returns the metadata and content for a path.
	Get(path string) (MemoryFile, []byte, error)

	// Stat returns the metadata for a path without reading content.
	Stat(path string) (MemoryFile, bool)

	// List returns metadata for all files, newest first.
	List() []MemoryFile

	// Manifest snapshots the current path -> fingerprint map.
	Manifest() Manifest

	// Diff compares the local manifest against a remote one and returns the
	// paths to pull (remote wins or local absent) and push (local wins or
	// remote absent). Paths with equal hashes on both sides are skipped.
	Diff(remote Manifest) (pulls []string, pushes []string)
}

// HotKind is the type of a hot-tier structured record.
type HotKind string

const (
	HotGoal    HotKind = "goal"
	HotJournal HotKind = "journal"
	HotTask    HotKind = "task"
)

// HotRecord is a local-only structured entry: immediate working state owned
// entirely by the local agent, never synced.
type HotRecord struct {
	ID        string    `json:"id"`
	Kind      HotKind   `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Hot is the local-only structured tier.
type Hot interface {
	Create(kind HotKind, title, body string) (HotRecord, error)
	Get(id string) (HotRecord, error)
	Update(id string, title, body, status string) (HotRecord, error)
	Delete(id string) error
	List(kind HotKind) ([]HotRecord, error)
	Close() error
}
