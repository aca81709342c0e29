// Package httpclient is the HTTP client for talking to mesh nodes: the peer
// methods used by the heartbeat, gossip, and sync tasks, and the local-API
// methods used by the CLI.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/brainmesh/brainmesh-go/pkg/peer"
	"github.com/brainmesh/brainmesh-go/pkg/store"
)

// Client is a mesh HTTP client. It is safe for concurrent use; the zero
// per-call timeout discipline is the caller's: pass a context with the
// deadline the operation allows.
type Client struct {
	config     Config
	httpClient *http.Client
	token      string
	baseURL    *url.URL
}

// New creates a client for peer-to-peer calls. No base URL is required;
// peer methods address nodes directly by host:port.
func New(config Config) *Client {
	config.SetDefaults()
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// NewForServer creates a client bound to one node's API, for the CLI and
// other local consumers.
func NewForServer(config Config) (*Client, error) {
	config.SetDefaults()
	if config.ServerURL == "" {
		return nil, fmt.Errorf("ServerURL is required")
	}
	baseURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ServerURL: %w", err)
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		baseURL:    baseURL,
	}, nil
}

// SetToken installs a previously issued JWT for local-API calls.
func (c *Client) SetToken(token string) { c.token = token }

// Peer transport methods. Every failure is returned to the caller, which
// records it as a missed heartbeat or a skipped file; nothing here is fatal.

// Heartbeat probes a peer for liveness.
func (c *Client) Heartbeat(ctx context.Context, address string) (HeartbeatResponse, error) {
	var resp HeartbeatResponse
	err := c.doPeer(ctx, http.MethodGet, address, "/heartbeat", nil, &resp)
	return resp, err
}

// Gossip exchanges peer lists with a peer: ours goes in the request body,
// theirs comes back in the response.
func (c *Client) Gossip(ctx context.Context, address string, req GossipRequest) (GossipResponse, error) {
	var resp GossipResponse
	err := c.doPeer(ctx, http.MethodPost, address, "/gossip", req, &resp)
	return resp, err
}

// Manifest fetches a peer's sync manifest.
func (c *Client) Manifest(ctx context.Context, address string) (store.Manifest, error) {
	var resp ManifestResponse
	if err := c.doPeer(ctx, http.MethodGet, address, "/sync/manifest", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Manifest == nil {
		resp.Manifest = store.Manifest{}
	}
	return resp.Manifest, nil
}

// Pull fetches file content for the given paths from a peer.
func (c *Client) Pull(ctx context.Context, address string, paths []string) ([]FilePayload, error) {
	var resp PullResponse
	err := c.doPeer(ctx, http.MethodPost, address, "/sync/pull", PullRequest{Paths: paths}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// Push offers files to a peer; the peer answers accept/reject per path.
func (c *Client) Push(ctx context.Context, address string, files []FilePayload) ([]PushResult, error) {
	var resp PushResponse
	err := c.doPeer(ctx, http.MethodPost, address, "/sync/push", PushRequest{Files: files}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Local API methods (CLI surface).

// Authenticate logs in to the node's local API and stores the token.
func (c *Client) Authenticate(ctx context.Context) error {
	authReq := map[string]string{"client_id": c.config.ClientID}
	var authResp AuthResponse
	if err := c.doServer(ctx, http.MethodPost, "/api/v1/auth/login", authReq, &authResp, false); err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	c.token = authResp.Token
	return nil
}

// Status returns the node's status summary.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.doServer(ctx, http.MethodGet, "/status", nil, &resp, false)
	return resp, err
}

// Peers returns the node's peer table.
func (c *Client) Peers(ctx context.Context) ([]peer.Record, error) {
	var resp PeersResponse
	if err := c.doServer(ctx, http.MethodGet, "/peers", nil, &resp, false); err != nil {
		return nil, err
	}
	return resp.Peers, nil
}

// Memories lists the node's synced memory files.
func (c *Client) Memories(ctx context.Context) ([]MemoryInfo, error) {
	var resp MemoriesResponse
	if err := c.doServer(ctx, http.MethodGet, "/api/v1/memories", nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Files, nil
}

// CreateHot creates a hot-tier record.
func (c *Client) CreateHot(ctx context.Context, kind store.HotKind, title, body string) (store.HotRecord, error) {
	var rec store.HotRecord
	req := HotRequest{Kind: kind, Title: title, Body: body}
	err := c.doServer(ctx, http.MethodPost, "/api/v1/hot", req, &rec, true)
	return rec, err
}

// ListHot lists hot-tier records of one kind ("" for all).
func (c *Client) ListHot(ctx context.Context, kind store.HotKind) ([]store.HotRecord, error) {
	path := "/api/v1/hot"
	if kind != "" {
		path += "?kind=" + url.QueryEscape(string(kind))
	}
	var resp HotListResponse
	if err := c.doServer(ctx, http.MethodGet, path, nil, &resp, true); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// UpdateHot updates a hot record; empty fields are left unchanged.
func (c *Client) UpdateHot(ctx context.Context, id, title, body, status string) (store.HotRecord, error) {
	var rec store.HotRecord
	req := HotRequest{Title: title, Body: body, Status: status}
	err := c.doServer(ctx, http.MethodPut, "/api/v1/hot/"+url.PathEscape(id), req, &rec, true)
	return rec, err
}

// DeleteHot removes a hot record.
func (c *Client) DeleteHot(ctx context.Context, id string) error {
	return c.doServer(ctx, http.MethodDelete, "/api/v1/hot/"+url.PathEscape(id), nil, nil, true)
}

// Externalize turns a hot record into a synced memory file.
func (c *Client) Externalize(ctx context.Context, id string) (store.MemoryFile, error) {
	var resp ExternalizeResponse
	err := c.doServer(ctx, http.MethodPost, "/api/v1/hot/"+url.PathEscape(id)+"/externalize", nil, &resp, true)
	return resp.File, err
}

// doPeer performs one request against a peer address (host:port).
func (c *Client) doPeer(ctx context.Context, method, address, path string, body, out interface{}) error {
	return c.do(ctx, method, "http://"+address+path, body, out, false)
}

// doServer performs one request against the configured server URL.
func (c *Client) doServer(ctx context.Context, method, path string, body, out interface{}, auth bool) error {
	if c.baseURL == nil {
		return fmt.Errorf("client has no ServerURL configured")
	}
	ref, err := url.Parse(path)
	if err != nil {
		return fmt.Errorf("invalid request path: %w", err)
	}
	return c.do(ctx, method, c.baseURL.ResolveReference(ref).String(), body, out, auth)
}

func (c *Client) do(ctx context.Context, method, fullURL string, body, out interface{}, auth bool) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth && c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&errResp); decodeErr == nil && errResp.Message != "" {
			return fmt.Errorf("%s %s: %s (HTTP %d)", method, fullURL, errResp.Message, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: HTTP %d", method, fullURL, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
