package engine

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Presence answers whether a user is currently connected. Supplied by the
// realtime layer; the listing layer uses it to rank urgency.
type Presence interface {
	IsOnline(ctx context.Context, userID string) (bool, error)
}

// MemPresence is an in-memory Presence for tests.
type MemPresence struct {
	mu     sync.RWMutex
	online map[string]bool
}

var _ Presence = (*MemPresence)(nil)

func NewMemPresence() *MemPresence {
	return &MemPresence{online: make(map[string]bool)}
}

func (p *MemPresence) SetOnline(userID string, online bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = online
}

func (p *MemPresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.online[userID], nil
}

var redisPresencePrefix = "online/"

// RedisPresence probes the presence keys the realtime layer maintains with
// its own TTL.
type RedisPresence struct {
	Client *redis.Client
}

var _ Presence = (*RedisPresence)(nil)

func NewRedisPresence(redisURL string) (*RedisPresence, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	return &RedisPresence{Client: rdb}, nil
}

func (p *RedisPresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := p.Client.Exists(ctx, redisPresencePrefix+userID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
