// Package cache provides the byte cache used by the thumbnail fetcher.
//
// The cache stores raw HTTP response bodies keyed by source URL so that
// re-running an export does not re-download every representative image.
// Three backends are provided:
//   - FileCache: directory-backed, for CLI usage (default)
//   - RedisCache: shared cache for repeated runs on build machines
//   - NullCache: disables caching (tests, --refresh)
package cache

import (
	"context"
	"time"
)

// Cache is the interface implemented by all cache backends.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get retrieves a value. The second return reports whether the key was
	// found and unexpired. A miss is not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores a value with the given TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes a value. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// DefaultTTL is the expiry applied to cached thumbnail downloads.
// Source images rarely change; a week keeps re-runs cheap without
// pinning dead URLs forever.
const DefaultTTL = 7 * 24 * time.Hour

// ImageKey generates a cache key for a processed thumbnail, keyed by
// source URL and the longest-edge size it was scaled to.
func ImageKey(url string, maxSize int) string {
	return hashKey("img", url, maxSize)
}

// HTTPKey generates a cache key for a raw HTTP response body.
func HTTPKey(namespace, url string) string {
	return hashKey("http:"+namespace, url)
}
