// Package flagstore persists the visitor flags that outlive a single page
// load. Every entry carries its own expiry.
package flagstore

import (
	"context"
	"time"
)

// Backend is a key/value store with per-key expiry. Get returns "" and a nil
// error for a missing or expired key.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
