package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/toolscheap/toolscheap/internal/apperror"
)

// RedisRateLimiter is a sliding-window limiter backed by a Redis sorted set
// per key. It fails open when Redis is unreachable.
type RedisRateLimiter struct {
	client *redis.Client
	rate   int
	window time.Duration
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, rate int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		rate:   rate,
		window: window,
		prefix: "ratelimit:",
	}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) bool {
	if rl.client == nil {
		return true
	}

	now := time.Now().UnixNano()
	windowStart := now - int64(rl.window)
	redisKey := rl.prefix + key

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart))
	pipe.ZAdd(ctx, redisKey, redis.Z{Score: float64(now), Member: now})
	countCmd := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, rl.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return true
	}
	return countCmd.Val() <= int64(rl.rate)
}

// MemoryRateLimiter is a token-bucket fallback for when no Redis is
// configured. Buckets are evicted in the background so the map stays small.
type MemoryRateLimiter struct {
	rate    int
	burst   int
	buckets map[string]*bucket
	mu      sync.Mutex
	done    chan struct{}
}

type bucket struct {
	tokens    int
	lastReset time.Time
}

func NewMemoryRateLimiter(rate, burst int) *MemoryRateLimiter {
	rl := &MemoryRateLimiter{
		rate:    rate,
		burst:   burst,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

func (rl *MemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

func (rl *MemoryRateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for key, b := range rl.buckets {
		if b.lastReset.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

func (rl *MemoryRateLimiter) Stop() {
	close(rl.done)
}

func (rl *MemoryRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.burst <= 0 {
		return false
	}

	now := time.Now()
	b, exists := rl.buckets[key]
	if !exists {
		rl.buckets[key] = &bucket{tokens: rl.burst - 1, lastReset: now}
		return true
	}

	elapsed := now.Sub(b.lastReset)
	b.tokens += int(elapsed.Seconds()) * rl.rate
	if b.tokens > rl.burst {
		b.tokens = rl.burst
	}
	b.lastReset = now

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// RateLimiter prefers Redis and falls back to the in-memory bucket when
// Redis is absent or down.
type RateLimiter struct {
	redis    *RedisRateLimiter
	inMemory *MemoryRateLimiter
}

func NewRateLimiter(redisClient *redis.Client, rate, burst int) *RateLimiter {
	var redisRL *RedisRateLimiter
	if redisClient != nil {
		redisRL = NewRedisRateLimiter(redisClient, rate, time.Second)
	}
	return &RateLimiter{
		redis:    redisRL,
		inMemory: NewMemoryRateLimiter(rate, burst),
	}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	if rl.redis != nil && rl.redis.client != nil {
		if err := rl.redis.client.Ping(ctx).Err(); err == nil {
			return rl.redis.Allow(ctx, key)
		}
	}
	return rl.inMemory.Allow(key)
}

func (rl *RateLimiter) Stop() {
	rl.inMemory.Stop()
}

// RateLimit keys by user when authenticated and by remote address otherwise.
func RateLimit(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := r.RemoteAddr
			if userID, ok := GetUserID(r.Context()); ok {
				key = userID.String()
			}

			if !limiter.Allow(r.Context(), key) {
				apperror.WriteJSON(w, r, apperror.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
