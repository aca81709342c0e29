// Package store implements the tiered memory store: the synced warm/cold
// file tiers backed by the filesystem with a JSON metadata index, and the
// local-only hot tier backed by Badger.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/brainmesh/brainmesh-go/pkg/store"
)

var (
	// ErrNotFound is returned when a path has no memory file.
	ErrNotFound = errors.New("memory file not found")
	// ErrInvalidPath is returned for empty, absolute, or traversal paths.
	ErrInvalidPath = errors.New("invalid memory path")
	// ErrHashMismatch is returned when content does not match its declared
	// hash; the file is rejected, never written.
	ErrHashMismatch = errors.New("content does not match declared hash")
)

const (
	indexFile  = "index.json"
	activeDir  = "active"
	archiveDir = "archive"
)

// FileStore implements store.Warm on top of a directory tree:
//
//	<root>/index.json           per-path metadata
//	<root>/active/<path>        active tier content
//	<root>/archive/YYYY-MM/...  archive tier content, partitioned by month
//
// Content writes are write-temp-then-rename so readers observe old or new
// bytes, never partial content. One mutex serializes all index and file
// mutations; a local write and an in-flight sync pull cannot interleave.
type FileStore struct {
	mu     sync.RWMutex
	root   string
	nodeID string
	index  map[string]store.MemoryFile
	now    func() time.Time
}

// NewFileStore opens (or initializes) the store rooted at root. The node id
// is stamped as origin on local writes.
func NewFileStore(root, nodeID string) (*FileStore, error) {
	for _, dir := range []string{root, filepath.Join(root, activeDir), filepath.Join(root, archiveDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store dir %s: %w", dir, err)
		}
	}

	fs := &FileStore{
		root:   root,
		nodeID: nodeID,
		index:  make(map[string]store.MemoryFile),
		now:    time.Now,
	}
	if err := fs.loadIndex(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (fs *FileStore) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(fs.root, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read store index: %w", err)
	}
	if err := json.Unmarshal(data, &fs.index); err != nil {
		return fmt.Errorf("failed to decode store index: %w", err)
	}
	log.Printf("store: loaded %d memory file(s)", len(fs.index))
	return nil
}

// saveIndexLocked persists the index atomically. Callers hold fs.mu.
func (fs *FileStore) saveIndexLocked() error {
	data, err := json.MarshalIndent(fs.index, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store index: %w", err)
	}
	dst := filepath.Join(fs.root, indexFile)
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write store index: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("failed to replace store index: %w", err)
	}
	return nil
}

// cleanPath validates and normalizes a logical path. Logical paths always
// use forward slashes and must stay inside the store.
func cleanPath(p string) (string, error) {
	if p == "" || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(p)
	if cleaned == "." || path.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrInvalidPath
	}
	return cleaned, nil
}

// physPath returns the on-disk location for a memory file's metadata.
func (fs *FileStore) physPath(mf store.MemoryFile) string {
	rel := filepath.FromSlash(mf.Path)
	if mf.Tier == store.TierArchive {
		return filepath.Join(fs.root, archiveDir, mf.LastModified.UTC().Format("2006-01"), rel)
	}
	return filepath.Join(fs.root, activeDir, rel)
}

// writeContent writes bytes atomically at dst.
func writeContent(dst string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create content dir: %w", err)
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("failed to replace content: %w", err)
	}
	return nil
}

// Put writes a local edit into the active tier. Identical bytes are a no-op.
// Editing an archived file revives it into the active tier.
func (fs *FileStore) Put(p string, content []byte) (store.MemoryFile, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return store.MemoryFile{}, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	hash := store.HashBytes(content)
	existing, exists := fs.index[cleaned]
	if exists && existing.Hash == hash {
		return existing, nil
	}

	mf := store.MemoryFile{
		Path:         cleaned,
		Hash:         hash,
		Origin:       fs.nodeID,
		LastModified: fs.now(),
		Tier:         store.TierActive,
		Size:         int64(len(content)),
	}
	if err := writeContent(fs.physPath(mf), content); err != nil {
		return store.MemoryFile{}, err
	}
	if exists {
		fs.removeStaleLocked(existing, mf)
	}
	fs.index[cleaned] = mf
	if err := fs.saveIndexLocked(); err != nil {
		return store.MemoryFile{}, err
	}
	return mf, nil
}

// Apply writes a replicated file. The incoming version must carry a hash
// matching its content (corruption is rejected before any write) and must
// win last-write-wins against the local version, otherwise it is dropped.
func (fs *FileStore) Apply(mf store.MemoryFile, content []byte) (bool, error) {
	cleaned, err := cleanPath(mf.Path)
	if err != nil {
		return false, err
	}
	mf.Path = cleaned
	if store.HashBytes(content) != mf.Hash {
		return false, ErrHashMismatch
	}
	if mf.Tier != store.TierArchive {
		mf.Tier = store.TierActive
	}
	if mf.Origin == "" {
		mf.Origin = fs.nodeID
	}
	mf.Size = int64(len(content))

	fs.mu.Lock()
	defer fs.mu.Unlock()

	existing, exists := fs.index[cleaned]
	if exists {
		if existing.Hash == mf.Hash {
			return false, nil
		}
		if !store.Newer(mf.LastModified, mf.Origin, existing.LastModified, existing.Origin) {
			return false, nil
		}
	}

	if err := writeContent(fs.physPath(mf), content); err != nil {
		return false, err
	}
	if exists {
		fs.removeStaleLocked(existing, mf)
	}
	fs.index[cleaned] = mf
	if err := fs.saveIndexLocked(); err != nil {
		return false, err
	}
	return true, nil
}

// removeStaleLocked deletes the previous physical file when a new version
// landed at a different location (tier move or month change).
func (fs *FileStore) removeStaleLocked(prev, next store.MemoryFile) {
	prevPath := fs.physPath(prev)
	if prevPath != fs.physPath(next) {
		if err := os.Remove(prevPath); err != nil && !os.IsNotExist(err) {
			log.Printf("store: failed to remove stale copy of %s: %v", prev.Path, err)
		}
	}
}

// Get returns metadata and content for a path.
func (fs *FileStore) Get(p string) (store.MemoryFile, []byte, error) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return store.MemoryFile{}, nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	mf, ok := fs.index[cleaned]
	if !ok {
		return store.MemoryFile{}, nil, ErrNotFound
	}
	content, err := os.ReadFile(fs.physPath(mf))
	if err != nil {
		return store.MemoryFile{}, nil, fmt.Errorf("failed to read %s: %w", cleaned, err)
	}
	return mf, content, nil
}

// Stat returns metadata for a path.
func (fs *FileStore) Stat(p string) (store.MemoryFile, bool) {
	cleaned, err := cleanPath(p)
	if err != nil {
		return store.MemoryFile{}, false
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	mf, ok := fs.index[cleaned]
	return mf, ok
}

// List returns all files, newest first.
func (fs *FileStore) List() []store.MemoryFile {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]store.MemoryFile, 0, len(fs.index))
	for _, mf := range fs.index {
		out = append(out, mf)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	return out
}

// Delete removes a path locally. Deletions do not replicate; a peer that
// still holds the file will push it back on a later cycle.
func (fs *FileStore) Delete(p string) error {
	cleaned, err := cleanPath(p)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	mf, ok := fs.index[cleaned]
	if !ok {
		return ErrNotFound
	}
	if err := os.Remove(fs.physPath(mf)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", cleaned, err)
	}
	delete(fs.index, cleaned)
	return fs.saveIndexLocked()
}

// Manifest snapshots the current fingerprint map.
func (fs *FileStore) Manifest() store.Manifest {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	m := make(store.Manifest, len(fs.index))
	for p, mf := range fs.index {
		m[p] = store.ManifestEntry{
			Hash:         mf.Hash,
			LastModified: mf.LastModified,
			Origin:       mf.Origin,
			Tier:         mf.Tier,
		}
	}
	return m
}

// Diff compares the local index against a remote manifest. Equal hashes mean
// equal content, so those paths are skipped no matter the timestamps. This is
// also how a file archived on one side avoids re-transfer.
func (fs *FileStore) Diff(remote store.Manifest) (pulls []string, pushes []string) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	for p, theirs := range remote {
		ours, ok := fs.index[p]
		if !ok {
			pulls = append(pulls, p)
			continue
		}
		if ours.Hash == theirs.Hash {
			continue
		}
		if store.Newer(theirs.LastModified, theirs.Origin, ours.LastModified, ours.Origin) {
			pulls = append(pulls, p)
		}
	}

	for p, ours := range fs.index {
		theirs, ok := remote[p]
		if !ok {
			pushes = append(pushes, p)
			continue
		}
		if ours.Hash == theirs.Hash {
			continue
		}
		if store.Newer(ours.LastModified, ours.Origin, theirs.LastModified, theirs.Origin) {
			pushes = append(pushes, p)
		}
	}

	sort.Strings(pulls)
	sort.Strings(pushes)
	return pulls, pushes
}

// TierStats summarizes the store for status reporting.
type TierStats struct {
	ActiveFiles  int   `json:"active_files"`
	ArchiveFiles int   `json:"archive_files"`
	TotalBytes   int64 `json:"total_bytes"`
}

// Stats returns per-tier counts and total size.
func (fs *FileStore) Stats() TierStats {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	var s TierStats
	for _, mf := range fs.index {
		if mf.Tier == store.TierArchive {
			s.ArchiveFiles++
		} else {
			s.ActiveFiles++
		}
		s.TotalBytes += mf.Size
	}
	return s
}

// Verify interface compliance at compile time.
var _ store.Warm = (*FileStore)(nil)
