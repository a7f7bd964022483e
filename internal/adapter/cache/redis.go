package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/codeancestry/codeancestry/internal/domain"
	"github.com/redis/go-redis/v9"
)

// AnswerCache stores finished answers in Redis for a short TTL. A nil
// *AnswerCache is valid and disables caching, mirroring the optional-Redis
// setup: the pipeline must never depend on the cache being there.
type AnswerCache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and returns an answer cache. An empty URL or a failed
// connection returns nil (caching disabled) rather than an error.
func New(redisURL string, ttl time.Duration) *AnswerCache {
	if redisURL == "" {
		slog.Warn("no Redis URL configured; answer caching disabled")
		return nil
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		slog.Error("invalid Redis URL; answer caching disabled", "error", err)
		return nil
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Redis unreachable; answer caching disabled", "error", err)
		return nil
	}

	slog.Info("Redis connection established")
	return &AnswerCache{client: client, ttl: ttl}
}

// Key derives the cache key for a query. Answers are keyed by everything
// that affects the result.
func Key(repoID, question string, topK int, model string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", repoID, question, topK, model)))
	return "rag:answer:" + hex.EncodeToString(sum[:])
}

// GetAnswer returns a cached answer, if any. Cache errors are treated as misses.
func (c *AnswerCache) GetAnswer(ctx context.Context, key string) (*domain.Answer, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("answer cache read failed", "error", err)
		}
		return nil, false
	}

	var a domain.Answer
	if err := json.Unmarshal(data, &a); err != nil {
		slog.Warn("answer cache decode failed", "error", err)
		return nil, false
	}
	return &a, true
}

// SetAnswer stores an answer. Failures are logged and ignored.
func (c *AnswerCache) SetAnswer(ctx context.Context, key string, a *domain.Answer) {
	if c == nil {
		return
	}

	data, err := json.Marshal(a)
	if err != nil {
		slog.Warn("answer cache encode failed", "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("answer cache write failed", "error", err)
	}
}

// Client exposes the underlying Redis client (used by the rate limiter).
// Nil when caching is disabled.
func (c *AnswerCache) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.client
}
