package meshnode

import (
	"context"
	"testing"
	"time"
)

func testNodeConfig(t *testing.T, seeds ...string) Config {
	t.Helper()
	return Config{
		DataDir:           t.TempDir(),
		Listen:            "127.0.0.1:0",
		Seeds:             seeds,
		NoAuth:            true,
		HeartbeatInterval: Duration(100 * time.Millisecond),
		HeartbeatTimeout:  Duration(50 * time.Millisecond),
		GossipInterval:    Duration(100 * time.Millisecond),
		GossipTimeout:     Duration(500 * time.Millisecond),
		SyncInterval:      Duration(150 * time.Millisecond),
		SyncFileTimeout:   Duration(time.Second),
	}
}

func startNode(t *testing.T, config Config) *Node {
	t.Helper()
	node, err := NewNode(config)
	if err != nil {
		t.Fatalf("NewNode failed: %v", err)
	}
	if err := node.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		node.Stop(ctx)
	})
	return node
}

func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTwoNodesDiscoverEachOther(t *testing.T) {
	a := startNode(t, testNodeConfig(t))
	b := startNode(t, testNodeConfig(t, a.ListenAddr()))

	waitFor(t, 5*time.Second, "mutual discovery", func() bool {
		_, aKnowsB := a.Registry().Get(b.Identity().NodeID)
		_, bKnowsA := b.Registry().Get(a.Identity().NodeID)
		return aKnowsB && bKnowsA
	})
}

func TestMemoryPropagatesAcrossMesh(t *testing.T) {
	a := startNode(t, testNodeConfig(t))
	b := startNode(t, testNodeConfig(t, a.ListenAddr()))

	if _, err := a.Warm().Put("notes.md", []byte("# Shared\n\nWritten on A.\n")); err != nil {
		t.Fatalf("Put on A failed: %v", err)
	}

	waitFor(t, 10*time.Second, "notes.md on B", func() bool {
		_, content, err := b.Warm().Get("notes.md")
		return err == nil && string(content) == "# Shared\n\nWritten on A.\n"
	})

	// The replica keeps A as origin.
	mf, _ := b.Warm().Stat("notes.md")
	if mf.Origin != a.Identity().NodeID {
		t.Errorf("replicated file origin %q, want %q", mf.Origin, a.Identity().NodeID)
	}
}

func TestConflictConvergesToLatestWrite(t *testing.T) {
	a := startNode(t, testNodeConfig(t))
	b := startNode(t, testNodeConfig(t, a.ListenAddr()))

	if _, err := a.Warm().Put("shared.md", []byte("version from A")); err != nil {
		t.Fatalf("Put on A failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := b.Warm().Put("shared.md", []byte("version from B")); err != nil {
		t.Fatalf("Put on B failed: %v", err)
	}

	// B wrote later, so both sides must settle on B's version.
	waitFor(t, 10*time.Second, "conflict convergence", func() bool {
		_, aContent, errA := a.Warm().Get("shared.md")
		_, bContent, errB := b.Warm().Get("shared.md")
		return errA == nil && errB == nil &&
			string(aContent) == "version from B" && string(bContent) == "version from B"
	})
}

func TestExternalizedRecordReplicates(t *testing.T) {
	a := startNode(t, testNodeConfig(t))
	b := startNode(t, testNodeConfig(t, a.ListenAddr()))

	rec, err := a.Hot().Create("task", "Calibrate the telescope", "Before Friday.")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	mf, err := a.Externalize(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Externalize failed: %v", err)
	}

	waitFor(t, 10*time.Second, "externalized file on B", func() bool {
		_, ok := b.Warm().Stat(mf.Path)
		return ok
	})

	// Hot records themselves never replicate.
	if records, _ := b.Hot().List(""); len(records) != 0 {
		t.Errorf("hot records leaked to peer: %d", len(records))
	}
}

func TestStopIsIdempotent(t *testing.T) {
	node := startNode(t, testNodeConfig(t))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := node.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := node.Stop(ctx); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
}
