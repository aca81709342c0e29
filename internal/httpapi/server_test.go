package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brainmesh/brainmesh-go/internal/identity"
	internalpeer "github.com/brainmesh/brainmesh-go/internal/peer"
	internalstore "github.com/brainmesh/brainmesh-go/internal/store"
	"github.com/brainmesh/brainmesh-go/pkg/httpclient"
	"github.com/brainmesh/brainmesh-go/pkg/peer"
	"github.com/brainmesh/brainmesh-go/pkg/store"
)

// testNode is a minimal Node implementation backed by real stores.
type testNode struct {
	id       identity.Identity
	registry *internalpeer.InMemoryRegistry
	warm     *internalstore.FileStore
	hot      *internalstore.BadgerHot
	start    time.Time
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()
	warm, err := internalstore.NewFileStore(t.TempDir(), "test-node-id")
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	hot, err := internalstore.NewBadgerHotInMemory()
	if err != nil {
		t.Fatalf("NewBadgerHotInMemory failed: %v", err)
	}
	t.Cleanup(func() { hot.Close() })
	return &testNode{
		id: identity.Identity{
			NodeID:   "test-node-id",
			Hostname: "testhost",
			Persona:  "Amber-Scribe",
		},
		registry: internalpeer.NewInMemoryRegistry("test-node-id", 3),
		warm:     warm,
		hot:      hot,
		start:    time.Now(),
	}
}

func (n *testNode) Identity() identity.Identity { return n.id }
func (n *testNode) Address() string             { return "127.0.0.1:7777" }
func (n *testNode) StartTime() time.Time        { return n.start }
func (n *testNode) Registry() peer.Registry     { return n.registry }
func (n *testNode) Warm() store.Warm            { return n.warm }
func (n *testNode) Hot() store.Hot              { return n.hot }

func (n *testNode) Externalize(ctx context.Context, id string) (store.MemoryFile, error) {
	rec, err := n.hot.Get(id)
	if err != nil {
		return store.MemoryFile{}, err
	}
	return n.warm.Put(internalstore.ExternalPath(rec), internalstore.RenderMarkdown(rec))
}

func newTestServer(t *testing.T, node Node, config Config) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewServer(node, config).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body interface{}, out interface{}) int {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response failed: %v", err)
		}
	}
	return resp.StatusCode
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response failed: %v", err)
		}
	}
	return resp.StatusCode
}

func TestHeartbeatEndpoint(t *testing.T) {
	srv := newTestServer(t, newTestNode(t), Config{})

	var resp httpclient.HeartbeatResponse
	if code := getJSON(t, srv.URL+"/heartbeat", &resp); code != http.StatusOK {
		t.Fatalf("heartbeat status %d", code)
	}
	if resp.NodeID != "test-node-id" {
		t.Errorf("node id %q", resp.NodeID)
	}
	if resp.Timestamp.IsZero() {
		t.Error("timestamp missing")
	}
}

func TestHeartbeatRejectsPost(t *testing.T) {
	srv := newTestServer(t, newTestNode(t), Config{})
	if code := postJSON(t, srv.URL+"/heartbeat", nil, nil); code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", code)
	}
}

func TestGossipEndpoint(t *testing.T) {
	node := newTestNode(t)
	node.registry.Upsert(peer.Record{NodeID: "existing", Address: "10.0.0.9:7777"})
	srv := newTestServer(t, node, Config{})

	req := httpclient.GossipRequest{
		Sender: peer.Record{NodeID: "sender", Address: "10.0.0.1:7777"},
		Peers: []peer.Record{
			{NodeID: "hearsay", Address: "10.0.0.2:7777", LastSeen: time.Now()},
		},
	}
	var resp httpclient.GossipResponse
	if code := postJSON(t, srv.URL+"/gossip", req, &resp); code != http.StatusOK {
		t.Fatalf("gossip status %d", code)
	}

	if resp.Node.NodeID != "test-node-id" {
		t.Errorf("response node %q", resp.Node.NodeID)
	}
	if len(resp.Peers) != 3 {
		t.Errorf("expected 3 peers in response, got %d", len(resp.Peers))
	}
	if _, ok := node.registry.Get("sender"); !ok {
		t.Error("sender not registered")
	}
	if _, ok := node.registry.Get("hearsay"); !ok {
		t.Error("gossiped peer not merged")
	}
}

func TestSyncManifestEndpoint(t *testing.T) {
	node := newTestNode(t)
	node.warm.Put("notes.md", []byte("content"))
	srv := newTestServer(t, node, Config{})

	var resp httpclient.ManifestResponse
	if code := getJSON(t, srv.URL+"/sync/manifest", &resp); code != http.StatusOK {
		t.Fatalf("manifest status %d", code)
	}
	entry, ok := resp.Manifest["notes.md"]
	if !ok {
		t.Fatal("manifest missing notes.md")
	}
	if entry.Hash != store.HashBytes([]byte("content")) {
		t.Errorf("manifest hash mismatch")
	}
}

func TestSyncPullEndpoint(t *testing.T) {
	node := newTestNode(t)
	node.warm.Put("have.md", []byte("here"))
	srv := newTestServer(t, node, Config{})

	var resp httpclient.PullResponse
	code := postJSON(t, srv.URL+"/sync/pull", httpclient.PullRequest{Paths: []string{"have.md", "missing.md"}}, &resp)
	if code != http.StatusOK {
		t.Fatalf("pull status %d", code)
	}
	if len(resp.Files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(resp.Files))
	}
	if string(resp.Files[0].Content) != "here" {
		t.Errorf("content %q", resp.Files[0].Content)
	}
}

func TestSyncPushEndpoint(t *testing.T) {
	node := newTestNode(t)
	node.warm.Put("existing.md", []byte("local wins"))
	srv := newTestServer(t, node, Config{})

	fresh := []byte("new file")
	stale := []byte("remote loses")
	corrupt := []byte("bytes that do not match")
	req := httpclient.PushRequest{Files: []httpclient.FilePayload{
		{
			Path: "new.md", Hash: store.HashBytes(fresh), Origin: "other",
			LastModified: time.Now(), Content: fresh,
		},
		{
			Path: "existing.md", Hash: store.HashBytes(stale), Origin: "other",
			LastModified: time.Now().Add(-time.Hour), Content: stale,
		},
		{
			Path: "bad.md", Hash: store.HashBytes([]byte("declared")), Origin: "other",
			LastModified: time.Now(), Content: corrupt,
		},
	}}

	var resp httpclient.PushResponse
	if code := postJSON(t, srv.URL+"/sync/push", req, &resp); code != http.StatusOK {
		t.Fatalf("push status %d", code)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}

	verdicts := map[string]httpclient.PushResult{}
	for _, r := range resp.Results {
		verdicts[r.Path] = r
	}
	if !verdicts["new.md"].Accepted {
		t.Error("new file rejected")
	}
	if verdicts["existing.md"].Accepted || verdicts["existing.md"].Reason != "local newer" {
		t.Errorf("stale push verdict: %+v", verdicts["existing.md"])
	}
	if verdicts["bad.md"].Accepted || verdicts["bad.md"].Reason != "corrupt" {
		t.Errorf("corrupt push verdict: %+v", verdicts["bad.md"])
	}

	if _, content, _ := node.warm.Get("existing.md"); string(content) != "local wins" {
		t.Errorf("losing push overwrote local content")
	}
	if _, ok := node.warm.Stat("bad.md"); ok {
		t.Error("corrupt push was stored")
	}
}

func TestStatusEndpoint(t *testing.T) {
	node := newTestNode(t)
	node.warm.Put("a.md", []byte("x"))
	node.registry.Upsert(peer.Record{NodeID: "p1", Address: "10.0.0.1:7777"})
	srv := newTestServer(t, node, Config{})

	var resp httpclient.StatusResponse
	if code := getJSON(t, srv.URL+"/status", &resp); code != http.StatusOK {
		t.Fatalf("status status %d", code)
	}
	if resp.NodeID != "test-node-id" || resp.Persona != "Amber-Scribe" {
		t.Errorf("identity fields wrong: %+v", resp)
	}
	if resp.Peers["alive"] != 1 {
		t.Errorf("expected 1 alive peer, got %v", resp.Peers)
	}
	if resp.ActiveFiles != 1 {
		t.Errorf("expected 1 active file, got %d", resp.ActiveFiles)
	}
}

func TestLocalAPIRequiresAuth(t *testing.T) {
	srv := newTestServer(t, newTestNode(t), Config{SecretKey: "test-secret"})

	if code := getJSON(t, srv.URL+"/api/v1/memories", nil); code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated request got %d, want 401", code)
	}

	// Login, then retry with the token.
	var auth httpclient.AuthResponse
	if code := postJSON(t, srv.URL+"/api/v1/auth/login", map[string]string{"client_id": "test"}, &auth); code != http.StatusOK {
		t.Fatalf("login status %d", code)
	}
	if auth.Token == "" {
		t.Fatal("login returned no token")
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/memories", nil)
	req.Header.Set("Authorization", "Bearer "+auth.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("authed request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("authed request got %d", resp.StatusCode)
	}
}

func TestLocalAPIRejectsBadToken(t *testing.T) {
	srv := newTestServer(t, newTestNode(t), Config{SecretKey: "test-secret"})

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/memories", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token got %d, want 401", resp.StatusCode)
	}
}

func TestHotLifecycleOverAPI(t *testing.T) {
	node := newTestNode(t)
	srv := newTestServer(t, node, Config{NoAuth: true})

	// Create.
	var rec store.HotRecord
	code := postJSON(t, srv.URL+"/api/v1/hot", httpclient.HotRequest{
		Kind: store.HotTask, Title: "Fix fence", Body: "North corner.",
	}, &rec)
	if code != http.StatusCreated {
		t.Fatalf("create status %d", code)
	}

	// List.
	var list httpclient.HotListResponse
	if code := getJSON(t, srv.URL+"/api/v1/hot?kind=task", &list); code != http.StatusOK {
		t.Fatalf("list status %d", code)
	}
	if len(list.Records) != 1 || list.Records[0].ID != rec.ID {
		t.Fatalf("list mismatch: %+v", list.Records)
	}

	// Externalize.
	var ext httpclient.ExternalizeResponse
	code = postJSON(t, fmt.Sprintf("%s/api/v1/hot/%s/externalize", srv.URL, rec.ID), nil, &ext)
	if code != http.StatusOK {
		t.Fatalf("externalize status %d", code)
	}
	if _, ok := node.warm.Stat(ext.File.Path); !ok {
		t.Fatalf("externalized file %s not in warm store", ext.File.Path)
	}

	// Unknown record is a 404.
	code = postJSON(t, srv.URL+"/api/v1/hot/nope/externalize", nil, nil)
	if code != http.StatusNotFound {
		t.Fatalf("externalize of unknown record got %d", code)
	}
}

func TestCreateHotValidatesKind(t *testing.T) {
	srv := newTestServer(t, newTestNode(t), Config{NoAuth: true})
	code := postJSON(t, srv.URL+"/api/v1/hot", httpclient.HotRequest{Kind: "grudge", Title: "x"}, nil)
	if code != http.StatusBadRequest {
		t.Fatalf("invalid kind got %d, want 400", code)
	}
}
