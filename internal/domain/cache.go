package domain

import (
	"context"
	"time"
)

// Cache stores vendor-history aggregates on the diagnostic read path.
// Misses are cheap (the store scan is the fallback) so every method is
// best-effort.
type Cache interface {
	// Get retrieves a value. Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// GetVendorHistory retrieves a cached vendor aggregate.
	GetVendorHistory(ctx context.Context, vendor string) (*VendorHistory, error)

	// SetVendorHistory caches a vendor aggregate.
	SetVendorHistory(ctx context.Context, vendor string, h *VendorHistory, ttl time.Duration) error

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}
