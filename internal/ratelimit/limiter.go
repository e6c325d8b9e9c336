// Package ratelimit implements fixed-window admission control keyed by
// client identity.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-tts-gateway/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// bucket holds one key's window. Each bucket carries its own lock so
// concurrent calls for different keys never serialize each other.
type bucket struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// Limiter is an in-memory fixed-window rate limiter. The decision is pure
// and never errors; metrics are advisory only.
type Limiter struct {
	cfg     config.RateLimitConfig
	log     *slog.Logger
	clock   func() time.Time
	mu      sync.Mutex
	buckets map[string]*bucket

	rejected metric.Int64Counter
}

func New(cfg config.RateLimitConfig, log *slog.Logger) *Limiter {
	l := &Limiter{
		cfg:     cfg,
		log:     log.With(slog.String("component", "rate-limiter")),
		clock:   time.Now,
		buckets: make(map[string]*bucket),
	}

	meter := otel.Meter("github.com/loqalabs/loqa-tts-gateway/ratelimit")
	if counter, err := meter.Int64Counter("tts_rate_limit_rejections_total",
		metric.WithDescription("Total requests rejected by the fixed-window rate limiter.")); err == nil {
		l.rejected = counter
	} else {
		l.log.Warn("failed to initialize rate limit metrics", slog.String("error", err.Error()))
	}

	return l
}

// Allow reports whether a request from key is admitted. The window resets
// lazily on first access after it has fully elapsed; a rejection never
// increments the count.
func (l *Limiter) Allow(key string) bool {
	now := l.clock()
	b := l.getBucket(key, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	window := time.Duration(l.cfg.WindowSeconds) * time.Second
	if now.Sub(b.windowStart) >= window {
		b.windowStart = now
		b.count = 0
	}

	if b.count >= l.cfg.MaxRequestsPerWindow {
		l.log.Warn("rate limit exceeded",
			slog.String("key", key),
			slog.Int("count", b.count))
		if l.rejected != nil {
			l.rejected.Add(context.Background(), 1)
		}
		return false
	}

	b.count++
	return true
}

func (l *Limiter) getBucket(key string, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{windowStart: now}
		l.buckets[key] = b
	}
	return b
}
