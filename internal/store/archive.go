package store

import (
	"bytes"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/brainmesh/brainmesh-go/pkg/store"
)

// Archive moves active files whose last modification is older than threshold
// into the archive tier, partitioned by the month of their last modification.
// The move preserves hash and timestamp: a rename plus a metadata update, so
// peers recognize the file as unchanged content. Returns how many moved.
func (fs *FileStore) Archive(threshold time.Duration) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	now := fs.now()
	moved := 0
	for p, mf := range fs.index {
		if mf.Tier != store.TierActive || now.Sub(mf.LastModified) < threshold {
			continue
		}
		src := fs.physPath(mf)
		next := mf
		next.Tier = store.TierArchive
		dst := fs.physPath(next)

		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			log.Printf("store: archive of %s skipped: %v", p, err)
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			log.Printf("store: archive of %s skipped: %v", p, err)
			continue
		}
		fs.index[p] = next
		moved++
	}

	if moved == 0 {
		return 0, nil
	}
	if err := fs.saveIndexLocked(); err != nil {
		return moved, err
	}
	log.Printf("store: archived %d memory file(s)", moved)
	return moved, nil
}

// Consolidate writes a digest of the archive files last modified during the
// given month as an ordinary active memory file (summaries/YYYY-MM.md). The
// digest is itself synced like any other file. Returns the number of files
// summarized; zero means no digest was written.
func (fs *FileStore) Consolidate(month time.Time) (int, error) {
	label := month.UTC().Format("2006-01")
	summaryPath := "summaries/" + label + ".md"

	fs.mu.RLock()
	var files []store.MemoryFile
	for _, mf := range fs.index {
		if mf.Tier != store.TierArchive {
			continue
		}
		if mf.LastModified.UTC().Format("2006-01") != label {
			continue
		}
		if mf.Path == summaryPath {
			continue
		}
		files = append(files, mf)
	}
	fs.mu.RUnlock()

	if len(files) == 0 {
		return 0, nil
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].LastModified.Before(files[j].LastModified)
	})

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "# Memory digest %s\n\n", label)
	fmt.Fprintf(&buf, "%d archived memories.\n\n", len(files))
	for _, mf := range files {
		line := fs.firstLine(mf)
		fmt.Fprintf(&buf, "- `%s` (%s): %s\n", mf.Path, mf.LastModified.UTC().Format("2006-01-02"), line)
	}

	if _, err := fs.Put(summaryPath, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("failed to write digest %s: %w", summaryPath, err)
	}
	return len(files), nil
}

// firstLine returns the first non-empty, non-heading line of a file, used as
// its one-line summary in digests. Unreadable files summarize to "".
func (fs *FileStore) firstLine(mf store.MemoryFile) string {
	_, content, err := fs.Get(mf.Path)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if len(line) > 120 {
			line = line[:120] + "..."
		}
		return line
	}
	return ""
}
