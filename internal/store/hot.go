package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/brainmesh/brainmesh-go/pkg/store"
)

// ErrHotNotFound is returned when no hot record exists for an id.
var ErrHotNotFound = errors.New("hot record not found")

// BadgerHot implements store.Hot on Badger. Hot records are the local-only
// working state (goals, journal entries, tasks); nothing in this store is
// ever synced to peers.
type BadgerHot struct {
	db  *badger.DB
	now func() time.Time
}

// NewBadgerHot opens the hot tier at dir.
func NewBadgerHot(dir string) (*BadgerHot, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open hot store: %w", err)
	}
	return &BadgerHot{db: db, now: time.Now}, nil
}

// NewBadgerHotInMemory opens an ephemeral hot tier, used by tests and the
// embedding example.
func NewBadgerHotInMemory() (*BadgerHot, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open hot store: %w", err)
	}
	return &BadgerHot{db: db, now: time.Now}, nil
}

// hotKey builds the record key. The id is globally unique, so the kind
// prefix exists only to make List a prefix scan.
func hotKey(kind store.HotKind, id string) []byte {
	return []byte(fmt.Sprintf("hot/%s/%s", kind, id))
}

// Create inserts a new record with a fresh id.
func (h *BadgerHot) Create(kind store.HotKind, title, body string) (store.HotRecord, error) {
	now := h.now()
	rec := store.HotRecord{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     title,
		Body:      body,
		Status:    "open",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.write(rec); err != nil {
		return store.HotRecord{}, err
	}
	return rec, nil
}

func (h *BadgerHot) write(rec store.HotRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode hot record: %w", err)
	}
	err = h.db.Update(func(txn *badger.Txn) error {
		return txn.Set(hotKey(rec.Kind, rec.ID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store hot record: %w", err)
	}
	return nil
}

// Get returns the record with the given id, whatever its kind.
func (h *BadgerHot) Get(id string) (store.HotRecord, error) {
	rec, err := h.find(id)
	if err != nil {
		return store.HotRecord{}, err
	}
	return rec, nil
}

func (h *BadgerHot) find(id string) (store.HotRecord, error) {
	for _, kind := range []store.HotKind{store.HotGoal, store.HotJournal, store.HotTask} {
		var rec store.HotRecord
		err := h.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(hotKey(kind, id))
			if err != nil {
				return err
			}
			return item.Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
		})
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return store.HotRecord{}, fmt.Errorf("failed to read hot record: %w", err)
		}
	}
	return store.HotRecord{}, ErrHotNotFound
}

// Update replaces title, body, and status of an existing record. Empty
// arguments leave the corresponding field unchanged.
func (h *BadgerHot) Update(id string, title, body, status string) (store.HotRecord, error) {
	rec, err := h.find(id)
	if err != nil {
		return store.HotRecord{}, err
	}
	if title != "" {
		rec.Title = title
	}
	if body != "" {
		rec.Body = body
	}
	if status != "" {
		rec.Status = status
	}
	rec.UpdatedAt = h.now()
	if err := h.write(rec); err != nil {
		return store.HotRecord{}, err
	}
	return rec, nil
}

// Delete removes a record.
func (h *BadgerHot) Delete(id string) error {
	rec, err := h.find(id)
	if err != nil {
		return err
	}
	err = h.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(hotKey(rec.Kind, rec.ID))
	})
	if err != nil {
		return fmt.Errorf("failed to delete hot record: %w", err)
	}
	return nil
}

// List returns records of one kind, or all records when kind is empty,
// most recently updated first.
func (h *BadgerHot) List(kind store.HotKind) ([]store.HotRecord, error) {
	prefix := []byte("hot/")
	if kind != "" {
		prefix = []byte(fmt.Sprintf("hot/%s/", kind))
	}

	var out []store.HotRecord
	err := h.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec store.HotRecord
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list hot records: %w", err)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// Close flushes and closes the underlying database.
func (h *BadgerHot) Close() error {
	return h.db.Close()
}

// Verify interface compliance at compile time.
var _ store.Hot = (*BadgerHot)(nil)
