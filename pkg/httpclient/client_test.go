package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brainmesh/brainmesh-go/pkg/store"
)

func TestNewForServer(t *testing.T) {
	t.Run("valid_config", func(t *testing.T) {
		client, err := NewForServer(Config{
			ServerURL: "http://localhost:7777",
			ClientID:  "test-client",
		})
		require.NoError(t, err)
		assert.NotNil(t, client)
		assert.Equal(t, 30*time.Second, client.config.Timeout)
	})

	t.Run("missing_server_url", func(t *testing.T) {
		client, err := NewForServer(Config{ClientID: "test-client"})
		assert.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "ServerURL is required")
	})

	t.Run("invalid_server_url", func(t *testing.T) {
		client, err := NewForServer(Config{ServerURL: "://invalid-url"})
		assert.Error(t, err)
		assert.Nil(t, client)
		assert.Contains(t, err.Error(), "invalid ServerURL")
	})
}

func TestClientAuthenticate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var authReq map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&authReq))
		assert.Equal(t, "test-client", authReq["client_id"])

		json.NewEncoder(w).Encode(AuthResponse{
			Token:     "test-token",
			ClientID:  "test-client",
			ExpiresAt: time.Now().Add(24 * time.Hour),
		})
	}))
	defer server.Close()

	client, err := NewForServer(Config{ServerURL: server.URL, ClientID: "test-client"})
	require.NoError(t, err)

	err = client.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-token", client.token)
}

func TestClientMemoriesSendsBearerToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(MemoriesResponse{Files: []MemoryInfo{{
			MemoryFile: store.MemoryFile{Path: "notes.md", Tier: store.TierActive},
			AgeSec:     5,
		}}})
	}))
	defer server.Close()

	client, err := NewForServer(Config{ServerURL: server.URL, ClientID: "test-client"})
	require.NoError(t, err)
	client.SetToken("test-token")

	files, err := client.Memories(context.Background())
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "notes.md", files[0].Path)
}

func TestPeerMethods(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(HeartbeatResponse{NodeID: "n1", Timestamp: time.Now()})
	})
	mux.HandleFunc("/sync/manifest", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ManifestResponse{NodeID: "n1", Manifest: store.Manifest{
			"a.md": {Hash: "abc", Origin: "n1"},
		}})
	})
	mux.HandleFunc("/sync/pull", func(w http.ResponseWriter, r *http.Request) {
		var req PullRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"a.md"}, req.Paths)
		json.NewEncoder(w).Encode(PullResponse{Files: []FilePayload{
			{Path: "a.md", Content: []byte("payload")},
		}})
	})
	server := httptest.NewServer(mux)
	defer server.Close()
	address := strings.TrimPrefix(server.URL, "http://")

	client := New(Config{})
	ctx := context.Background()

	hb, err := client.Heartbeat(ctx, address)
	require.NoError(t, err)
	assert.Equal(t, "n1", hb.NodeID)

	manifest, err := client.Manifest(ctx, address)
	require.NoError(t, err)
	assert.Contains(t, manifest, "a.md")

	files, err := client.Pull(ctx, address, []string{"a.md"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, []byte("payload"), files[0].Content)
}

func TestErrorResponseDecoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ErrorResponse{
			Error:   "Not Found",
			Message: "no such record",
			Code:    404,
		})
	}))
	defer server.Close()

	client, err := NewForServer(Config{ServerURL: server.URL})
	require.NoError(t, err)

	_, err = client.Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such record")
	assert.Contains(t, err.Error(), "404")
}

func TestFilePayloadRoundTrip(t *testing.T) {
	content := []byte("round trip")
	mf := store.MemoryFile{
		Path:         "a.md",
		Hash:         store.HashBytes(content),
		Origin:       "n1",
		LastModified: time.Now(),
		Tier:         store.TierArchive,
		Size:         int64(len(content)),
	}

	payload := PayloadFor(mf, content)
	got := payload.Meta()
	assert.Equal(t, mf.Path, got.Path)
	assert.Equal(t, mf.Hash, got.Hash)
	assert.Equal(t, mf.Tier, got.Tier)
	assert.Equal(t, mf.Size, got.Size)
}
