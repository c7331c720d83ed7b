package compcache

import (
	"hash"
	"log/slog"
	"os"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// Default values for a Cache.
const (
	DefaultSourceExt   = ".py"
	DefaultLockTimeout = 5 * time.Second
)

// Cache computes fingerprints and reads and writes computation results.
// It holds no store handle between calls: every Check and Update opens the
// project's store and closes it before returning. A Cache is safe for
// concurrent use.
type Cache struct {
	fs          afero.Fs
	hashFunc    HashFunc
	nowFunc     NowFunc
	envLookup   EnvLookup
	logger      *slog.Logger
	backend     Backend
	lockTimeout time.Duration
	sourceExt   string
}

// HashFunc defines a function that creates a new 64-bit hash instance.
type HashFunc func() hash.Hash64

// NowFunc defines a function that returns the current time.
type NowFunc func() time.Time

// EnvLookup resolves an environment variable, like os.LookupEnv.
type EnvLookup func(name string) (string, bool)

// Option defines a function that configures a Cache.
type Option func(*Cache)

// New creates a Cache. By default it reads the OS filesystem and process
// environment and stores results with BackendFile.
func New(options ...Option) *Cache {
	cache := &Cache{
		fs:          afero.NewOsFs(),
		nowFunc:     time.Now,
		hashFunc:    defaultHashFunc,
		envLookup:   os.LookupEnv,
		backend:     BackendFile,
		lockTimeout: DefaultLockTimeout,
		sourceExt:   DefaultSourceExt,
	}

	for _, option := range options {
		option(cache)
	}

	return cache
}

// Check returns the entry stored for fp in the project at projectRoot.
// It returns nil, nil on a miss. Errors are StoreInit or StoreIO.
func (c *Cache) Check(projectRoot string, fp Fingerprint) (entry *Entry, err error) {
	if !fp.Valid() {
		return nil, storeIOError("check", fp, ErrInvalidFingerprint)
	}

	store, err := c.openStore(projectRoot)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			entry, err = nil, storeIOError("close", fp, cerr)
		}
	}()

	entry, err = store.Get(fp)
	if err != nil {
		return nil, err
	}
	c.log().Debug("checked computation cache", "fingerprint", fp, "hit", entry != nil)
	return entry, nil
}

// Update stores entry for fp in the project at projectRoot, replacing any
// previous entry, and returns the previous entry or nil.
// Errors are StoreInit or StoreIO.
func (c *Cache) Update(projectRoot string, fp Fingerprint, entry Entry) (prev *Entry, err error) {
	if !fp.Valid() {
		return nil, storeIOError("update", fp, ErrInvalidFingerprint)
	}

	store, err := c.openStore(projectRoot)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			prev, err = nil, storeIOError("close", fp, cerr)
		}
	}()

	prev, err = store.Set(fp, entry)
	if err != nil {
		return nil, err
	}
	c.log().Debug("updated computation cache", "fingerprint", fp, "replaced", prev != nil)
	return prev, nil
}

// openStore opens the store of the project at projectRoot. The caller must
// close it.
func (c *Cache) openStore(projectRoot string) (Store, error) {
	dir := StoreDir(projectRoot)
	switch c.backend {
	case BackendBolt:
		return openBoltStore(dir, c.lockTimeout, c.nowFunc)
	default:
		return openFileStore(c.fs, dir, c.nowFunc)
	}
}

// storeFs returns the filesystem holding the store.
func (c *Cache) storeFs() afero.Fs {
	if c.backend == BackendBolt {
		return afero.NewOsFs()
	}
	return c.fs
}

// newHash creates a new hash instance.
func (c *Cache) newHash() hash.Hash64 {
	return c.hashFunc()
}

// log returns the configured logger, falling back to slog.Default().
func (c *Cache) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.Default()
}

// defaultHashFunc returns the default hash function (xxHash64).
func defaultHashFunc() hash.Hash64 {
	return xxhash.New()
}
