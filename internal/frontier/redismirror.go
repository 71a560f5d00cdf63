package frontier

import (
	"context"
	"fmt"

	redis "github.com/redis/go-redis/v9"
)

// Mirror receives a write-through copy of every Frontier admission and
// failure decision. It exists purely for external visibility into
// frontier state (an operator inspecting a running crawl from outside
// the process); the in-memory Frontier remains the only state PopBatch
// and RestartCycle ever read from.
type Mirror interface {
	Push(key string) error
	MarkFailed(key string) error
}

// RedisMirror mirrors Frontier admissions into a Redis set so an
// operator can inspect queue membership (SMEMBERS darksearch:frontier:queued)
// without attaching to the crawler process. Enabled by setting
// FRONTIER_BACKEND=redis; the in-memory Frontier is always the
// authoritative queue regardless of whether a Mirror is attached.
type RedisMirror struct {
	client    *redis.Client
	queuedKey string
	failedKey string
}

// NewRedisMirror dials addr lazily (go-redis connects on first command)
// and returns a Mirror writing to the given key prefix's :queued and
// :failed sets.
func NewRedisMirror(addr, keyPrefix string) *RedisMirror {
	if keyPrefix == "" {
		keyPrefix = "darksearch:frontier"
	}
	return &RedisMirror{
		client:    redis.NewClient(&redis.Options{Addr: addr}),
		queuedKey: fmt.Sprintf("%s:queued", keyPrefix),
		failedKey: fmt.Sprintf("%s:failed", keyPrefix),
	}
}

func (m *RedisMirror) Push(key string) error {
	return m.client.SAdd(context.Background(), m.queuedKey, key).Err()
}

func (m *RedisMirror) MarkFailed(key string) error {
	ctx := context.Background()
	pipe := m.client.TxPipeline()
	pipe.SRem(ctx, m.queuedKey, key)
	pipe.SAdd(ctx, m.failedKey, key)
	_, err := pipe.Exec(ctx)
	return err
}

func (m *RedisMirror) Close() error {
	return m.client.Close()
}
