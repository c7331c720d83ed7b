package compcache

import (
	"log/slog"
	"time"

	"github.com/spf13/afero"
)

// WithFs sets the filesystem used to read inputs and, for BackendFile, to
// hold the store. This is primarily useful for testing with in-memory
// filesystems.
//
// Example:
//
//	cache := compcache.New(compcache.WithFs(afero.NewMemMapFs()))
func WithFs(fs afero.Fs) Option {
	return func(c *Cache) {
		c.fs = fs
	}
}

// WithHashFunc sets the 64-bit hash used for fingerprints.
// The default is xxHash64.
//
// Note: Changing the hash function changes every fingerprint, so existing
// cache entries are never hit again.
func WithHashFunc(hashFunc HashFunc) Option {
	return func(c *Cache) {
		c.hashFunc = hashFunc
	}
}

// WithNowFunc sets a custom time function for record timestamps.
// This is primarily useful for testing with deterministic timestamps.
func WithNowFunc(nowFunc NowFunc) Option {
	return func(c *Cache) {
		c.nowFunc = nowFunc
	}
}

// WithEnvLookup sets how environment dependencies are resolved.
// The default is os.LookupEnv.
func WithEnvLookup(lookup EnvLookup) Option {
	return func(c *Cache) {
		c.envLookup = lookup
	}
}

// WithEnvMap resolves environment dependencies from a fixed map.
func WithEnvMap(env map[string]string) Option {
	return WithEnvLookup(func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	})
}

// WithLogger sets the logger for diagnostics. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithBackend selects the store format.
//
// BackendBolt always uses the OS filesystem, regardless of WithFs.
func WithBackend(backend Backend) Option {
	return func(c *Cache) {
		c.backend = backend
	}
}

// WithLockTimeout sets how long BackendBolt waits for another process to
// release the database before failing with a StoreInit error.
func WithLockTimeout(timeout time.Duration) Option {
	return func(c *Cache) {
		c.lockTimeout = timeout
	}
}

// WithSourceExt sets the extension of source files, including the dot.
// The default is ".py".
func WithSourceExt(ext string) Option {
	return func(c *Cache) {
		c.sourceExt = ext
	}
}
