package config

import (
	"fmt"
	"strings"
	"time"
)

// CacheBackend selects the analysis cache implementation.
type CacheBackend string

const (
	// CacheMemory keeps cached responses in process memory.
	CacheMemory CacheBackend = "memory"
	// CacheRedis keeps cached responses in Redis, shared across instances.
	CacheRedis CacheBackend = "redis"
)

// Valid returns true if the CacheBackend is a known value.
func (b CacheBackend) Valid() bool {
	return b == CacheMemory || b == CacheRedis
}

// UnmarshalText implements encoding.TextUnmarshaler so the backend parses
// directly from the environment.
func (b *CacheBackend) UnmarshalText(text []byte) error {
	v := CacheBackend(strings.ToLower(strings.TrimSpace(string(text))))
	if !v.Valid() {
		return fmt.Errorf("invalid cache backend: %q (expected memory or redis)", string(text))
	}
	*b = v
	return nil
}

// CacheConfig contains the analysis cache configuration.
type CacheConfig struct {
	// Enabled toggles response caching for single-record analysis.
	Enabled bool `env:"CACHE_ENABLED" envDefault:"true"`

	// Backend selects where cached responses live.
	Backend CacheBackend `env:"CACHE_BACKEND" envDefault:"memory"`

	// RedisAddr is the host:port of the Redis server for the redis backend.
	RedisAddr string `env:"CACHE_REDIS_ADDR" envDefault:"localhost:6379"`

	// RedisPassword authenticates against Redis. Optional.
	RedisPassword string `env:"CACHE_REDIS_PASSWORD"`

	// RedisDB is the Redis logical database number.
	RedisDB int `env:"CACHE_REDIS_DB" envDefault:"0"`

	// TTL is how long a cached response stays valid.
	TTL time.Duration `env:"CACHE_TTL" envDefault:"1h"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if !c.Backend.Valid() {
		c.Backend = CacheMemory
	}
	if c.TTL <= 0 {
		c.TTL = time.Hour
	}
	if c.RedisDB < 0 {
		c.RedisDB = 0
	}
}
