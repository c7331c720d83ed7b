package compcache

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the environment configuration of a Cache.
type Config struct {
	Backend     string        `env:"COMPCACHE_BACKEND"      envDefault:"file"`
	LockTimeout time.Duration `env:"COMPCACHE_LOCK_TIMEOUT" envDefault:"5s"`
	SourceExt   string        `env:"COMPCACHE_SOURCE_EXT"   envDefault:".py"`
	LogLevel    string        `env:"COMPCACHE_LOG_LEVEL"    envDefault:"info"`
}

// LoadConfig reads Config from the process environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// LoadConfigFrom reads Config from environ instead of the process environment.
func LoadConfigFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Level returns the configured log level.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// Options converts the configuration into Cache options.
func (c Config) Options() ([]Option, error) {
	backend, err := ParseBackend(c.Backend)
	if err != nil {
		return nil, err
	}
	if c.LockTimeout <= 0 {
		return nil, fmt.Errorf("lock timeout must be positive, got %s", c.LockTimeout)
	}
	if c.SourceExt == "" || c.SourceExt[0] != '.' {
		return nil, fmt.Errorf("source extension must start with a dot, got %q", c.SourceExt)
	}
	return []Option{
		WithBackend(backend),
		WithLockTimeout(c.LockTimeout),
		WithSourceExt(c.SourceExt),
	}, nil
}
