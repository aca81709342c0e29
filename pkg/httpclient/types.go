package httpclient

import (
	"time"

	"github.com/brainmesh/brainmesh-go/pkg/peer"
	"github.com/brainmesh/brainmesh-go/pkg/store"
)

// Config holds client configuration.
type Config struct {
	// Timeout is the default per-request timeout; callers usually override
	// it per call with a context deadline (heartbeat 2s, gossip 5s,
	// sync-per-file 10s).
	Timeout time.Duration

	// ServerURL is the base URL of a node's HTTP API, used by the CLI and
	// the local-API methods (e.g. "http://localhost:7777"). Peer methods
	// take addresses directly and ignore it.
	ServerURL string

	// ClientID identifies this client when authenticating to the local API.
	ClientID string
}

// SetDefaults sets reasonable default values for the config.
func (c *Config) SetDefaults() {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
}

// HeartbeatResponse is the /heartbeat reply: proof of life plus identity.
type HeartbeatResponse struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

// GossipRequest carries the sender's identity and peer list.
type GossipRequest struct {
	Sender peer.Record   `json:"sender"`
	Peers  []peer.Record `json:"peers"`
}

// GossipResponse carries the receiver's identity and peer list.
type GossipResponse struct {
	Node  peer.Record   `json:"node"`
	Peers []peer.Record `json:"peers"`
}

// ManifestResponse is the /sync/manifest reply.
type ManifestResponse struct {
	NodeID   string         `json:"node_id"`
	Manifest store.Manifest `json:"manifest"`
}

// FilePayload is one memory file on the wire: metadata plus raw content
// (base64 in JSON). The hash travels with the bytes so the receiver can
// detect transfer corruption before writing anything.
type FilePayload struct {
	Path         string     `json:"path"`
	Hash         string     `json:"hash"`
	Origin       string     `json:"origin"`
	LastModified time.Time  `json:"last_modified"`
	Tier         store.Tier `json:"tier"`
	Content      []byte     `json:"content"`
}

// Meta returns the payload's metadata as a MemoryFile.
func (f FilePayload) Meta() store.MemoryFile {
	return store.MemoryFile{
		Path:         f.Path,
		Hash:         f.Hash,
		Origin:       f.Origin,
		LastModified: f.LastModified,
		Tier:         f.Tier,
		Size:         int64(len(f.Content)),
	}
}

// PayloadFor builds the wire form of a local file.
func PayloadFor(mf store.MemoryFile, content []byte) FilePayload {
	return FilePayload{
		Path:         mf.Path,
		Hash:         mf.Hash,
		Origin:       mf.Origin,
		LastModified: mf.LastModified,
		Tier:         mf.Tier,
		Content:      content,
	}
}

// PullRequest asks a peer for the content of specific paths.
type PullRequest struct {
	Paths []string `json:"paths"`
}

// PullResponse returns the requested files. Paths the peer no longer holds
// are silently absent.
type PullResponse struct {
	Files []FilePayload `json:"files"`
}

// PushRequest offers files to a peer.
type PushRequest struct {
	Files []FilePayload `json:"files"`
}

// PushResult is the per-path verdict for a pushed file.
type PushResult struct {
	Path     string `json:"path"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"` // "stored", "local newer", "corrupt"
}

// PushResponse returns one result per pushed file.
type PushResponse struct {
	Results []PushResult `json:"results"`
}

// AuthResponse is the local-API login reply.
type AuthResponse struct {
	Token     string    `json:"token"`
	ClientID  string    `json:"client_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// StatusResponse is the /status reply.
type StatusResponse struct {
	NodeID       string         `json:"node_id"`
	Hostname     string         `json:"hostname"`
	Persona      string         `json:"persona"`
	Capabilities []string       `json:"capabilities"`
	Address      string         `json:"address"`
	UptimeSec    float64        `json:"uptime_sec"`
	Peers        map[string]int `json:"peers"` // state -> count
	ActiveFiles  int            `json:"active_files"`
	ArchiveFiles int            `json:"archive_files"`
	TotalBytes   int64          `json:"total_bytes"`
}

// PeersResponse is the /peers reply.
type PeersResponse struct {
	Peers []peer.Record `json:"peers"`
}

// MemoryInfo is one synced file plus its age in seconds.
type MemoryInfo struct {
	store.MemoryFile
	AgeSec float64 `json:"age_sec"`
}

// MemoriesResponse lists the synced memory files with their age.
type MemoriesResponse struct {
	Files []MemoryInfo `json:"files"`
}

// HotRequest creates or updates a hot record.
type HotRequest struct {
	Kind   store.HotKind `json:"kind,omitempty"`
	Title  string        `json:"title,omitempty"`
	Body   string        `json:"body,omitempty"`
	Status string        `json:"status,omitempty"`
}

// HotListResponse lists hot records.
type HotListResponse struct {
	Records []store.HotRecord `json:"records"`
}

// ExternalizeResponse reports where an externalized record landed.
type ExternalizeResponse struct {
	File store.MemoryFile `json:"file"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
