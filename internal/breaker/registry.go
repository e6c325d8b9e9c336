// Package breaker tracks per-provider circuit state so a misbehaving
// backend turns into fast rejections instead of repeated slow failures.
package breaker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-tts-gateway/internal/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// State names a circuit position.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// entry holds one key's circuit. Each entry carries its own lock so
// unrelated keys never contend.
type entry struct {
	mu       sync.Mutex
	failures int
	openedAt time.Time
	state    State
}

// Registry tracks circuit state per key (provider id). Entries are created
// lazily on first access and live for the process lifetime.
type Registry struct {
	cfg     config.BreakerConfig
	log     *slog.Logger
	clock   func() time.Time
	mu      sync.Mutex
	entries map[string]*entry

	trips metric.Int64Counter
}

func NewRegistry(cfg config.BreakerConfig, log *slog.Logger) *Registry {
	r := &Registry{
		cfg:     cfg,
		log:     log.With(slog.String("component", "circuit-breaker")),
		clock:   time.Now,
		entries: make(map[string]*entry),
	}

	meter := otel.Meter("github.com/loqalabs/loqa-tts-gateway/breaker")
	if counter, err := meter.Int64Counter("tts_circuit_breaker_trips_total",
		metric.WithDescription("Total circuit breaker transitions to the open state.")); err == nil {
		r.trips = counter
	} else {
		r.log.Warn("failed to initialize breaker metrics", slog.String("error", err.Error()))
	}

	return r
}

// AllowRequest reports whether a call should be attempted for key. While
// open it rejects until the reset timeout has elapsed, then moves to
// half-open and admits a trial request.
func (r *Registry) AllowRequest(key string) bool {
	e := r.getEntry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateOpen {
		return true
	}

	reset := time.Duration(r.cfg.ResetTimeoutSeconds) * time.Second
	if r.clock().Sub(e.openedAt) >= reset {
		e.state = StateHalfOpen
		r.log.Warn("circuit breaker half-open", slog.String("key", key))
		return true
	}
	r.log.Warn("circuit breaker open, rejecting request", slog.String("key", key))
	return false
}

// RecordSuccess resets the circuit to closed regardless of prior state.
func (r *Registry) RecordSuccess(key string) {
	e := r.getEntry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.failures > 0 || e.state != StateClosed {
		r.log.Info("circuit breaker reset",
			slog.String("key", key),
			slog.String("state", string(e.state)),
			slog.Int("failures", e.failures))
	}
	e.failures = 0
	e.state = StateClosed
	e.openedAt = time.Time{}
}

// RecordFailure counts a failed call and opens the circuit once the
// threshold is reached. A failure while half-open re-opens with a fresh
// opened-at time since the count is still at threshold.
func (r *Registry) RecordFailure(key string) {
	e := r.getEntry(key)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.failures++
	r.log.Warn("circuit breaker failure",
		slog.String("key", key),
		slog.Int("failures", e.failures))

	if e.failures >= r.cfg.FailureThreshold {
		wasOpen := e.state == StateOpen
		e.state = StateOpen
		e.openedAt = r.clock()
		if !wasOpen {
			if r.trips != nil {
				r.trips.Add(context.Background(), 1, metric.WithAttributes(attribute.String("provider", key)))
			}
			r.log.Error("circuit breaker open",
				slog.String("key", key),
				slog.Int("failures", e.failures))
		}
	}
}

// Snapshot returns the current state for key, for observability endpoints.
func (r *Registry) Snapshot(key string) (State, int) {
	e := r.getEntry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.failures
}

func (r *Registry) getEntry(key string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		e = &entry{state: StateClosed}
		r.entries[key] = e
	}
	return e
}
