package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"github.com/tbourn/cbo-bro-backend/internal/llm"
)

// DefaultHistoryEntries bounds the per-identity context window.
const DefaultHistoryEntries = 20

// HistoryStore keeps the recent exchanges sent as context to the LLM.
// Implementations must be safe for concurrent use.
type HistoryStore interface {
	// Get returns a copy of the history for key, oldest first.
	Get(ctx context.Context, key string) ([]llm.Message, error)
	// Append adds msgs and trims the history to the most recent entries.
	Append(ctx context.Context, key string, msgs ...llm.Message) error
}

// MemoryHistory is the in-process HistoryStore. Entries expire after TTL of
// inactivity.
type MemoryHistory struct {
	MaxEntries int

	entries *cache.Cache
	ttl     time.Duration
	locks   stripedLocks
}

// NewMemoryHistory builds a MemoryHistory. maxEntries <= 0 uses
// DefaultHistoryEntries; ttl <= 0 keeps entries forever.
func NewMemoryHistory(maxEntries int, ttl time.Duration) *MemoryHistory {
	if maxEntries <= 0 {
		maxEntries = DefaultHistoryEntries
	}
	exp := ttl
	if exp <= 0 {
		exp = cache.NoExpiration
	}
	return &MemoryHistory{
		MaxEntries: maxEntries,
		entries:    cache.New(exp, 10*time.Minute),
		ttl:        exp,
	}
}

func (h *MemoryHistory) Get(_ context.Context, key string) ([]llm.Message, error) {
	v, ok := h.entries.Get(key)
	if !ok {
		return nil, nil
	}
	cur := v.([]llm.Message)
	out := make([]llm.Message, len(cur))
	copy(out, cur)
	return out, nil
}

func (h *MemoryHistory) Append(_ context.Context, key string, msgs ...llm.Message) error {
	mu := h.locks.For(key)
	mu.Lock()
	defer mu.Unlock()

	var cur []llm.Message
	if v, ok := h.entries.Get(key); ok {
		cur = v.([]llm.Message)
	}
	next := make([]llm.Message, 0, len(cur)+len(msgs))
	next = append(next, cur...)
	next = append(next, msgs...)
	if len(next) > h.MaxEntries {
		next = next[len(next)-h.MaxEntries:]
	}
	h.entries.Set(key, next, h.ttl)
	return nil
}

// RedisHistory shares history between replicas through a Redis list per key.
type RedisHistory struct {
	Client     *redis.Client
	MaxEntries int
	TTL        time.Duration
	Prefix     string
}

// NewRedisHistory wraps client. maxEntries <= 0 uses DefaultHistoryEntries.
func NewRedisHistory(client *redis.Client, maxEntries int, ttl time.Duration) *RedisHistory {
	if maxEntries <= 0 {
		maxEntries = DefaultHistoryEntries
	}
	return &RedisHistory{Client: client, MaxEntries: maxEntries, TTL: ttl, Prefix: "cbobro:history:"}
}

func (h *RedisHistory) Get(ctx context.Context, key string) ([]llm.Message, error) {
	raw, err := h.Client.LRange(ctx, h.Prefix+key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("history get: %w", err)
	}
	out := make([]llm.Message, 0, len(raw))
	for _, s := range raw {
		var m llm.Message
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return nil, fmt.Errorf("history decode: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (h *RedisHistory) Append(ctx context.Context, key string, msgs ...llm.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	vals := make([]any, 0, len(msgs))
	for _, m := range msgs {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		vals = append(vals, string(b))
	}

	k := h.Prefix + key
	_, err := h.Client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.RPush(ctx, k, vals...)
		p.LTrim(ctx, k, int64(-h.MaxEntries), -1)
		if h.TTL > 0 {
			p.Expire(ctx, k, h.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("history append: %w", err)
	}
	return nil
}
