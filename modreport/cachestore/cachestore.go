// Component for caching small string values with a fixed TTL and explicit purging.
//
// Includes an interface and implementations using redis and in-process
// memory. The engine owns one instance per concern (reporter accuracy,
// per-room max scores, moderator snoozes), each with its own TTL; explicit
// purges supersede the TTL.
package cachestore

import (
	"context"
)

type Cache interface {
	// Get returns the cached value and whether it was present. A cached
	// empty string is a hit, which lets callers cache "known absent".
	Get(ctx context.Context, name, key string) (string, bool, error)
	Set(ctx context.Context, name, key, val string) error
	Purge(ctx context.Context, name, key string) error
}
