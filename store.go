package compcache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"
)

// CacheDir is the reserved directory, at the project root, owned by the cache.
const CacheDir = ".tach"

// storeName names the computation cache store beneath CacheDir.
const storeName = "computation-cache"

// StoreDir returns the directory holding the computation cache of the
// project at projectRoot.
func StoreDir(projectRoot string) string {
	return filepath.Join(projectRoot, CacheDir, storeName)
}

// Backend selects the on-disk format of the store.
type Backend string

const (
	// BackendFile keeps one JSON record per fingerprint.
	BackendFile Backend = "file"
	// BackendBolt keeps all records in a single bbolt database.
	BackendBolt Backend = "bolt"
)

// ParseBackend parses a backend name. The empty string selects BackendFile.
func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case "", BackendFile:
		return BackendFile, nil
	case BackendBolt:
		return BackendBolt, nil
	default:
		return "", fmt.Errorf("unknown store backend %q", s)
	}
}

// Item is the outcome of one item of a cached computation.
type Item struct {
	Status  uint8  `json:"status"`
	Message string `json:"message"`
}

// Entry is the cached result of a computation: per-item outcomes in order
// plus an overall status.
type Entry struct {
	Items  []Item `json:"items"`
	Status uint8  `json:"status"`
}

// Store is a persistent fingerprint to Entry mapping.
// Implementations must tolerate concurrent handles on the same directory,
// including handles in other processes.
type Store interface {
	// Get returns the entry for fp, or nil if there is none.
	Get(fp Fingerprint) (*Entry, error)

	// Set replaces the entry for fp and returns the previous one, or nil.
	Set(fp Fingerprint, entry Entry) (*Entry, error)

	// Stats reports the number of entries and their size on disk.
	Stats() (StoreStats, error)

	// Close releases the handle.
	Close() error
}

// StoreStats describes the contents of a store.
type StoreStats struct {
	Entries   int   // Number of stored entries
	TotalSize int64 // Bytes on disk
}

// record is the persisted form of an Entry.
type record struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	Items       []Item      `json:"items"`
	Status      uint8       `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"` // First write for this fingerprint
	UpdatedAt   time.Time   `json:"updatedAt"` // Last write
}

func (r *record) entry() *Entry {
	return &Entry{Items: r.Items, Status: r.Status}
}

// newRecord builds the record replacing prev (which may be nil).
func newRecord(fp Fingerprint, entry Entry, prev *record, now time.Time) *record {
	items := make([]Item, len(entry.Items))
	copy(items, entry.Items)

	r := &record{
		Fingerprint: fp,
		Items:       items,
		Status:      entry.Status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if prev != nil && !prev.CreatedAt.IsZero() {
		r.CreatedAt = prev.CreatedAt
	}
	return r
}

// validateEntry rejects entries that would not read back unchanged.
func validateEntry(entry Entry) error {
	for i, item := range entry.Items {
		if !utf8.ValidString(item.Message) {
			return fmt.Errorf("item %d: %w", i, ErrInvalidMessage)
		}
	}
	return nil
}

func encodeRecord(r *record) ([]byte, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return data, nil
}

func decodeRecord(fp Fingerprint, data []byte) (*record, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptRecord, err)
	}
	if r.Fingerprint != fp {
		return nil, fmt.Errorf("%w: holds fingerprint %q", ErrCorruptRecord, r.Fingerprint)
	}
	return &r, nil
}
