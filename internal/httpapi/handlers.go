package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/brainmesh/brainmesh-go/internal/identity"
	internalstore "github.com/brainmesh/brainmesh-go/internal/store"
	"github.com/brainmesh/brainmesh-go/pkg/httpclient"
	"github.com/brainmesh/brainmesh-go/pkg/peer"
	"github.com/brainmesh/brainmesh-go/pkg/store"
)

// Node is what the handlers need from the running node. Implemented by
// internal/meshnode; narrowed to an interface so tests can serve the API
// against a lightweight fixture.
type Node interface {
	Identity() identity.Identity
	Address() string
	StartTime() time.Time
	Registry() peer.Registry
	Warm() store.Warm
	Hot() store.Hot
	Externalize(ctx context.Context, id string) (store.MemoryFile, error)
}

// Handlers contains the HTTP endpoint handlers.
type Handlers struct {
	node    Node
	jwtAuth *JWTAuth
}

// NewHandlers creates the endpoint handlers.
func NewHandlers(node Node, jwtAuth *JWTAuth) *Handlers {
	return &Handlers{
		node:    node,
		jwtAuth: jwtAuth,
	}
}

// Peer endpoints. These form the wire contract between nodes; the request
// and response shapes live in pkg/httpclient so both sides share them.

// Heartbeat handles GET /heartbeat: proof of life plus our identity, so a
// prober can detect an address now occupied by a different node.
func (h *Handlers) Heartbeat(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, httpclient.HeartbeatResponse{
		NodeID:    h.node.Identity().NodeID,
		Timestamp: time.Now().UTC(),
	}, http.StatusOK)
}

// Gossip handles POST /gossip: merge the sender's peer list, reply with ours.
// The sender itself counts as direct contact; its peer list is membership
// hearsay and never moves liveness state.
func (h *Handlers) Gossip(w http.ResponseWriter, r *http.Request) {
	var req httpclient.GossipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	registry := h.node.Registry()
	if req.Sender.NodeID != "" {
		registry.Upsert(req.Sender)
	}
	registry.Merge(req.Peers)

	h.writeJSON(w, httpclient.GossipResponse{
		Node:  h.selfRecord(),
		Peers: registry.List(),
	}, http.StatusOK)
}

// SyncManifest handles GET /sync/manifest.
func (h *Handlers) SyncManifest(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, httpclient.ManifestResponse{
		NodeID:   h.node.Identity().NodeID,
		Manifest: h.node.Warm().Manifest(),
	}, http.StatusOK)
}

// SyncPull handles POST /sync/pull: return content for the requested paths.
// Paths we no longer hold are omitted rather than erroring, since the
// requester's view of our manifest may be stale.
func (h *Handlers) SyncPull(w http.ResponseWriter, r *http.Request) {
	var req httpclient.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	files := make([]httpclient.FilePayload, 0, len(req.Paths))
	for _, path := range req.Paths {
		mf, content, err := h.node.Warm().Get(path)
		if err != nil {
			continue
		}
		files = append(files, httpclient.PayloadFor(mf, content))
	}
	h.writeJSON(w, httpclient.PullResponse{Files: files}, http.StatusOK)
}

// SyncPush handles POST /sync/push: accept offered files, verdict per path.
// Each file is hash-verified and then gated by last-write-wins; a rejection
// is a normal outcome, not an error.
func (h *Handlers) SyncPush(w http.ResponseWriter, r *http.Request) {
	var req httpclient.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	results := make([]httpclient.PushResult, 0, len(req.Files))
	for _, f := range req.Files {
		results = append(results, h.applyPushed(f))
	}
	h.writeJSON(w, httpclient.PushResponse{Results: results}, http.StatusOK)
}

func (h *Handlers) applyPushed(f httpclient.FilePayload) httpclient.PushResult {
	if store.HashBytes(f.Content) != f.Hash {
		return httpclient.PushResult{Path: f.Path, Accepted: false, Reason: "corrupt"}
	}
	accepted, err := h.node.Warm().Apply(f.Meta(), f.Content)
	if err != nil {
		if errors.Is(err, internalstore.ErrInvalidPath) {
			return httpclient.PushResult{Path: f.Path, Accepted: false, Reason: "invalid path"}
		}
		return httpclient.PushResult{Path: f.Path, Accepted: false, Reason: err.Error()}
	}
	if !accepted {
		return httpclient.PushResult{Path: f.Path, Accepted: false, Reason: "local newer"}
	}
	return httpclient.PushResult{Path: f.Path, Accepted: true, Reason: "stored"}
}

// Observability endpoints.

// Status handles GET /status.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	id := h.node.Identity()

	peersByState := map[string]int{}
	for _, p := range h.node.Registry().List() {
		peersByState[string(p.State)]++
	}

	var active, archive int
	var totalBytes int64
	for _, mf := range h.node.Warm().List() {
		switch mf.Tier {
		case store.TierActive:
			active++
		case store.TierArchive:
			archive++
		}
		totalBytes += mf.Size
	}

	h.writeJSON(w, httpclient.StatusResponse{
		NodeID:       id.NodeID,
		Hostname:     id.Hostname,
		Persona:      id.Persona,
		Capabilities: id.Capabilities,
		Address:      h.node.Address(),
		UptimeSec:    time.Since(h.node.StartTime()).Seconds(),
		Peers:        peersByState,
		ActiveFiles:  active,
		ArchiveFiles: archive,
		TotalBytes:   totalBytes,
	}, http.StatusOK)
}

// Peers handles GET /peers.
func (h *Handlers) Peers(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, httpclient.PeersResponse{Peers: h.node.Registry().List()}, http.StatusOK)
}

// Local client API (auth required except login).

// Login handles POST /api/v1/auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		ClientID string `json:"client_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ClientID == "" {
		h.writeError(w, "client_id is required", http.StatusBadRequest)
		return
	}

	token, expiresAt, err := h.jwtAuth.GenerateToken(req.ClientID)
	if err != nil {
		h.writeError(w, "Failed to generate token: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, httpclient.AuthResponse{
		Token:     token,
		ClientID:  req.ClientID,
		ExpiresAt: expiresAt,
	}, http.StatusOK)
}

// Memories handles GET /api/v1/memories.
func (h *Handlers) Memories(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	files := h.node.Warm().List()
	out := make([]httpclient.MemoryInfo, 0, len(files))
	for _, mf := range files {
		out = append(out, httpclient.MemoryInfo{
			MemoryFile: mf,
			AgeSec:     mf.Age(now).Seconds(),
		})
	}
	h.writeJSON(w, httpclient.MemoriesResponse{Files: out}, http.StatusOK)
}

// CreateHot handles POST /api/v1/hot.
func (h *Handlers) CreateHot(w http.ResponseWriter, r *http.Request) {
	var req httpclient.HotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}
	if !validHotKind(req.Kind) {
		h.writeError(w, "kind must be goal, journal, or task", http.StatusBadRequest)
		return
	}
	if req.Title == "" {
		h.writeError(w, "title is required", http.StatusBadRequest)
		return
	}

	rec, err := h.node.Hot().Create(req.Kind, req.Title, req.Body)
	if err != nil {
		h.writeError(w, "Failed to create record: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, rec, http.StatusCreated)
}

// ListHot handles GET /api/v1/hot?kind=.
func (h *Handlers) ListHot(w http.ResponseWriter, r *http.Request) {
	kind := store.HotKind(r.URL.Query().Get("kind"))
	if kind != "" && !validHotKind(kind) {
		h.writeError(w, "kind must be goal, journal, or task", http.StatusBadRequest)
		return
	}

	records, err := h.node.Hot().List(kind)
	if err != nil {
		h.writeError(w, "Failed to list records: "+err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, httpclient.HotListResponse{Records: records}, http.StatusOK)
}

// GetHot handles GET /api/v1/hot/{id}.
func (h *Handlers) GetHot(w http.ResponseWriter, r *http.Request) {
	rec, err := h.node.Hot().Get(GetRecordID(r))
	if err != nil {
		h.hotError(w, err)
		return
	}
	h.writeJSON(w, rec, http.StatusOK)
}

// UpdateHot handles PUT /api/v1/hot/{id}.
func (h *Handlers) UpdateHot(w http.ResponseWriter, r *http.Request) {
	var req httpclient.HotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	rec, err := h.node.Hot().Update(GetRecordID(r), req.Title, req.Body, req.Status)
	if err != nil {
		h.hotError(w, err)
		return
	}
	h.writeJSON(w, rec, http.StatusOK)
}

// DeleteHot handles DELETE /api/v1/hot/{id}.
func (h *Handlers) DeleteHot(w http.ResponseWriter, r *http.Request) {
	if err := h.node.Hot().Delete(GetRecordID(r)); err != nil {
		h.hotError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExternalizeHot handles POST /api/v1/hot/{id}/externalize: render the
// record as markdown into the active tier, where sync picks it up.
func (h *Handlers) ExternalizeHot(w http.ResponseWriter, r *http.Request) {
	mf, err := h.node.Externalize(r.Context(), GetRecordID(r))
	if err != nil {
		h.hotError(w, err)
		return
	}
	h.writeJSON(w, httpclient.ExternalizeResponse{File: mf}, http.StatusOK)
}

func (h *Handlers) hotError(w http.ResponseWriter, err error) {
	if errors.Is(err, internalstore.ErrHotNotFound) {
		h.writeError(w, "Record not found", http.StatusNotFound)
		return
	}
	h.writeError(w, err.Error(), http.StatusInternalServerError)
}

func validHotKind(kind store.HotKind) bool {
	switch kind {
	case store.HotGoal, store.HotJournal, store.HotTask:
		return true
	}
	return false
}

func (h *Handlers) selfRecord() peer.Record {
	id := h.node.Identity()
	return peer.Record{
		NodeID:       id.NodeID,
		Address:      h.node.Address(),
		Hostname:     id.Hostname,
		Persona:      id.Persona,
		Capabilities: id.Capabilities,
		State:        peer.StateAlive,
		LastSeen:     time.Now().UTC(),
	}
}

// writeError writes an error response as JSON.
func (h *Handlers) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorResp := httpclient.ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	}
	if err := json.NewEncoder(w).Encode(errorResp); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response.
func (h *Handlers) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
