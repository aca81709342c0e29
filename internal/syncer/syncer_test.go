package syncer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	internalpeer "github.com/brainmesh/brainmesh-go/internal/peer"
	internalstore "github.com/brainmesh/brainmesh-go/internal/store"
	"github.com/brainmesh/brainmesh-go/pkg/httpclient"
	"github.com/brainmesh/brainmesh-go/pkg/peer"
)

// fakePeer serves the sync endpoints of a remote node straight off a
// FileStore, counting requests.
type fakePeer struct {
	nodeID   string
	warm     *internalstore.FileStore
	requests atomic.Int64

	// corruptPulls flips one byte of every pulled payload without fixing
	// the hash, simulating transfer corruption.
	corruptPulls bool
}

func newFakePeer(t *testing.T, nodeID string) (*fakePeer, string) {
	t.Helper()
	warm, err := internalstore.NewFileStore(t.TempDir(), nodeID)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	fp := &fakePeer{nodeID: nodeID, warm: warm}

	mux := http.NewServeMux()
	mux.HandleFunc("/sync/manifest", func(w http.ResponseWriter, r *http.Request) {
		fp.requests.Add(1)
		json.NewEncoder(w).Encode(httpclient.ManifestResponse{NodeID: nodeID, Manifest: warm.Manifest()})
	})
	mux.HandleFunc("/sync/pull", func(w http.ResponseWriter, r *http.Request) {
		fp.requests.Add(1)
		var req httpclient.PullRequest
		json.NewDecoder(r.Body).Decode(&req)
		var files []httpclient.FilePayload
		for _, p := range req.Paths {
			mf, content, err := warm.Get(p)
			if err != nil {
				continue
			}
			payload := httpclient.PayloadFor(mf, content)
			if fp.corruptPulls && len(payload.Content) > 0 {
				payload.Content[0] ^= 0xff
			}
			files = append(files, payload)
		}
		json.NewEncoder(w).Encode(httpclient.PullResponse{Files: files})
	})
	mux.HandleFunc("/sync/push", func(w http.ResponseWriter, r *http.Request) {
		fp.requests.Add(1)
		var req httpclient.PushRequest
		json.NewDecoder(r.Body).Decode(&req)
		var results []httpclient.PushResult
		for _, f := range req.Files {
			accepted, err := warm.Apply(f.Meta(), f.Content)
			if err != nil {
				results = append(results, httpclient.PushResult{Path: f.Path, Accepted: false, Reason: err.Error()})
				continue
			}
			results = append(results, httpclient.PushResult{Path: f.Path, Accepted: accepted})
		}
		json.NewEncoder(w).Encode(httpclient.PushResponse{Results: results})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fp, strings.TrimPrefix(srv.URL, "http://")
}

func newTestSyncer(t *testing.T, localID, peerID, peerAddr string) (*Syncer, *internalstore.FileStore, *internalpeer.InMemoryRegistry) {
	t.Helper()
	warm, err := internalstore.NewFileStore(t.TempDir(), localID)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	registry := internalpeer.NewInMemoryRegistry(localID, 3)
	registry.Upsert(peer.Record{NodeID: peerID, Address: peerAddr})
	s := NewSyncer(Config{
		Interval:    time.Minute,
		FileTimeout: 2 * time.Second,
		BatchLimit:  64,
	}, registry, warm, httpclient.New(httpclient.Config{}))
	return s, warm, registry
}

func TestSyncConvergesBothDirections(t *testing.T) {
	fp, addr := newFakePeer(t, "remote")
	s, local, _ := newTestSyncer(t, "local-node", "remote", addr)

	local.Put("ours.md", []byte("written locally"))
	fp.warm.Put("theirs.md", []byte("written remotely"))

	s.Cycle(context.Background())

	if _, content, err := local.Get("theirs.md"); err != nil || string(content) != "written remotely" {
		t.Fatalf("pull did not converge: %v %q", err, content)
	}
	if _, content, err := fp.warm.Get("ours.md"); err != nil || string(content) != "written locally" {
		t.Fatalf("push did not converge: %v %q", err, content)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	fp, addr := newFakePeer(t, "remote")
	s, local, _ := newTestSyncer(t, "local-node", "remote", addr)

	local.Put("a.md", []byte("a"))
	fp.warm.Put("b.md", []byte("b"))
	s.Cycle(context.Background())

	// A second cycle should cost exactly one manifest request: stores are
	// identical, so the diff is empty and no file moves.
	before := fp.requests.Load()
	s.Cycle(context.Background())
	if got := fp.requests.Load() - before; got != 1 {
		t.Fatalf("idle cycle made %d requests, want 1 (manifest only)", got)
	}
}

func TestSyncResolvesConflictByLastWrite(t *testing.T) {
	fp, addr := newFakePeer(t, "remote")
	s, local, _ := newTestSyncer(t, "local-node", "remote", addr)

	local.Put("shared.md", []byte("older local version"))
	time.Sleep(10 * time.Millisecond)
	fp.warm.Put("shared.md", []byte("newer remote version"))

	s.Cycle(context.Background())

	if _, content, _ := local.Get("shared.md"); string(content) != "newer remote version" {
		t.Fatalf("local kept the losing version: %q", content)
	}
	if _, content, _ := fp.warm.Get("shared.md"); string(content) != "newer remote version" {
		t.Fatalf("remote lost the winning version: %q", content)
	}
}

func TestSyncRejectsCorruptTransfer(t *testing.T) {
	fp, addr := newFakePeer(t, "remote")
	fp.corruptPulls = true
	s, local, _ := newTestSyncer(t, "local-node", "remote", addr)

	fp.warm.Put("poisoned.md", []byte("clean content"))
	s.Cycle(context.Background())

	if _, ok := local.Stat("poisoned.md"); ok {
		t.Fatal("corrupt transfer was applied")
	}

	// Once the corruption clears, the next cycle retries and succeeds.
	fp.corruptPulls = false
	s.Cycle(context.Background())
	if _, content, err := local.Get("poisoned.md"); err != nil || string(content) != "clean content" {
		t.Fatalf("retry after corruption failed: %v %q", err, content)
	}
}

func TestSyncSkipsUnreachablePeer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()

	s, local, registry := newTestSyncer(t, "local-node", "remote", addr)
	local.Put("a.md", []byte("a"))

	// Must not block or error the cycle; liveness is the monitor's job.
	s.Cycle(context.Background())
	rec, _ := registry.Get("remote")
	if rec.State == peer.StateDead {
		t.Fatal("syncer should not move liveness state")
	}
}

func TestRequestSyncTriggersImmediateSync(t *testing.T) {
	fp, addr := newFakePeer(t, "remote")
	s, local, _ := newTestSyncer(t, "local-node", "remote", addr)
	fp.warm.Put("urgent.md", []byte("recovered data"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.RequestSync("remote")
	deadline := time.After(2 * time.Second)
	for {
		if _, _, err := local.Get("urgent.md"); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("requested sync never happened")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestBatchLimitCapsTransfers(t *testing.T) {
	fp, addr := newFakePeer(t, "remote")
	s, local, _ := newTestSyncer(t, "local-node", "remote", addr)
	s.config.BatchLimit = 2

	for _, name := range []string{"a.md", "b.md", "c.md", "d.md"} {
		fp.warm.Put(name, []byte(name))
	}
	s.Cycle(context.Background())

	if got := len(local.List()); got != 2 {
		t.Fatalf("first cycle pulled %d files, want 2", got)
	}

	// The rest arrives on the following cycles.
	s.Cycle(context.Background())
	if got := len(local.List()); got != 4 {
		t.Fatalf("second cycle left store at %d files, want 4", got)
	}
}
