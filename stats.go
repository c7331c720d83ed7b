package compcache

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Stats describes the computation cache of one project.
type Stats struct {
	Backend   Backend `json:"backend"`
	Dir       string  `json:"dir"`
	Entries   int     `json:"entries"`   // Number of stored entries
	TotalSize int64   `json:"totalSize"` // Bytes on disk
}

// Stats returns statistics about the computation cache of the project at
// projectRoot. A project without a store reports zero entries, and no store
// is created for it.
func (c *Cache) Stats(projectRoot string) (stats Stats, err error) {
	stats = Stats{Backend: c.backend, Dir: StoreDir(projectRoot)}

	exists, err := c.storeExists(projectRoot)
	if err != nil {
		return Stats{}, storeIOError("stats", "", err)
	}
	if !exists {
		return stats, nil
	}

	store, err := c.openStore(projectRoot)
	if err != nil {
		return Stats{}, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			stats, err = Stats{}, storeIOError("close", "", cerr)
		}
	}()

	storeStats, err := store.Stats()
	if err != nil {
		return Stats{}, err
	}
	stats.Entries = storeStats.Entries
	stats.TotalSize = storeStats.TotalSize
	return stats, nil
}

// storeExists reports whether the project at projectRoot has a store of the
// configured backend.
func (c *Cache) storeExists(projectRoot string) (bool, error) {
	dir := StoreDir(projectRoot)
	if c.backend == BackendBolt {
		return afero.Exists(c.storeFs(), filepath.Join(dir, boltFileName))
	}
	return afero.DirExists(c.storeFs(), dir)
}

// Clear removes the computation cache of the project at projectRoot.
// Entries are otherwise never deleted; this is the manual way to reclaim
// space.
func (c *Cache) Clear(projectRoot string) error {
	dir := StoreDir(projectRoot)
	if err := c.storeFs().RemoveAll(dir); err != nil {
		return storeIOError("clear", "", fmt.Errorf("failed to remove %s: %w", dir, err))
	}
	c.log().Info("cleared computation cache", "dir", dir)
	return nil
}
