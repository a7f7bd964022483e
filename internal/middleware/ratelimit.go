package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig controls the per-IP fixed-window limiter.
type RateLimitConfig struct {
	PerMinute int
	Redis     *redis.Client // nil falls back to an in-process limiter
}

// RateLimitMiddleware enforces a per-IP request budget per minute. When a
// Redis client is available the counters are shared across instances;
// otherwise each instance counts on its own.
func RateLimitMiddleware(cfg RateLimitConfig) fiber.Handler {
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 60
	}
	local := newLocalCounter()

	return func(c fiber.Ctx) error {
		ip := c.IP()
		window := time.Now().Unix() / 60

		var count int64
		if cfg.Redis != nil {
			key := fmt.Sprintf("rag:ratelimit:%s:%d", ip, window)
			n, err := incrWithExpire(c.Context(), cfg.Redis, key, time.Minute)
			if err != nil {
				slog.Warn("rate limit counter unavailable, allowing request", "error", err)
				return c.Next()
			}
			count = n
		} else {
			count = local.incr(ip, window)
		}

		if count > int64(cfg.PerMinute) {
			c.Set("Retry-After", "60")
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "rate limit exceeded",
			})
		}
		return c.Next()
	}
}

func incrWithExpire(ctx context.Context, client *redis.Client, key string, ttl time.Duration) (int64, error) {
	pipe := client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// localCounter is the single-instance fallback. Old windows are dropped
// lazily on each increment.
type localCounter struct {
	mu     sync.Mutex
	window int64
	counts map[string]int64
}

func newLocalCounter() *localCounter {
	return &localCounter{counts: make(map[string]int64)}
}

func (l *localCounter) incr(ip string, window int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if window != l.window {
		l.window = window
		l.counts = make(map[string]int64)
	}
	l.counts[ip]++
	return l.counts[ip]
}
