package engine

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Topic for downstream consumers interested in fresh cheat evidence.
const TopicCheatReport = "report.cheat"

type CheatReportEvent struct {
	ReportID  string  `json:"reportId"`
	SuspectID string  `json:"suspectId"`
	Score     float64 `json:"score"`
}

// EventBus is the outbound pub/sub contract. Publishing is fire-and-forget
// from the engine's perspective; delivery guarantees belong to the bus.
type EventBus interface {
	Publish(ctx context.Context, topic string, event any) error
}

// MemBus records published events in memory, for tests and embedding.
type MemBus struct {
	mu     sync.Mutex
	events map[string][]any
}

var _ EventBus = (*MemBus)(nil)

func NewMemBus() *MemBus {
	return &MemBus{events: make(map[string][]any)}
}

func (b *MemBus) Publish(ctx context.Context, topic string, event any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[topic] = append(b.events[topic], event)
	return nil
}

// Published returns the events seen on a topic, oldest first.
func (b *MemBus) Published(topic string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]any, len(b.events[topic]))
	copy(out, b.events[topic])
	return out
}

// RedisBus publishes JSON-encoded events over redis pub/sub.
type RedisBus struct {
	Client *redis.Client
}

var _ EventBus = (*RedisBus)(nil)

func NewRedisBus(redisURL string) (*RedisBus, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	// check redis connection
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		return nil, err
	}
	return &RedisBus{Client: rdb}, nil
}

func (b *RedisBus) Publish(ctx context.Context, topic string, event any) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return b.Client.Publish(ctx, topic, raw).Err()
}
