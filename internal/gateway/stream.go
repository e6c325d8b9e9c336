package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-tts-gateway/internal/provider"
)

// openStreamFunc opens one fresh backend stream attempt.
type openStreamFunc func(ctx context.Context) (<-chan provider.AudioChunk, <-chan error)

// retryStreamer drives a backend stream with a per-chunk timeout and a
// bounded number of attempts. Once a chunk has been delivered the current
// attempt is committed: any later error propagates immediately, because
// re-emitting audio a client already received is worse than failing.
type retryStreamer struct {
	timeout     time.Duration
	maxAttempts int
	log         *slog.Logger
}

// run opens up to maxAttempts streams and forwards every chunk to emit as
// soon as it arrives. Retries happen only for attempts that produced no
// output. emit errors abort the stream immediately and are never retried.
func (r *retryStreamer) run(ctx context.Context, open openStreamFunc, emit func(provider.AudioChunk) error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		hadOutput, err := r.runAttempt(ctx, open, emit)
		if err == nil {
			return nil
		}
		if emitErr, ok := err.(*emitError); ok {
			// Delivery-side failure; the chunk may already have reached
			// the client, so never retry.
			return emitErr.inner
		}
		if hadOutput {
			// The duplication-avoidance rule dominates retry policy.
			return err
		}
		lastErr = err
		if attempt < r.maxAttempts {
			r.log.Warn("provider stream attempt failed, retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		}
	}
	return lastErr
}

// emitError wraps an error from the emit callback so run can distinguish
// delivery failures (never retried) from backend failures (retryable while
// no output was produced).
type emitError struct {
	inner error
}

func (e *emitError) Error() string { return e.inner.Error() }

func (r *retryStreamer) runAttempt(ctx context.Context, open openStreamFunc, emit func(provider.AudioChunk) error) (bool, error) {
	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, errs := open(attemptCtx)
	hadOutput := false

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	for chunks != nil || errs != nil {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(r.timeout)

		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if err := emit(chunk); err != nil {
				return hadOutput, &emitError{inner: err}
			}
			hadOutput = true
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return hadOutput, err
			}
		case <-timer.C:
			return hadOutput, fmt.Errorf("%w after %s", ErrChunkTimeout, r.timeout)
		case <-ctx.Done():
			return hadOutput, ctx.Err()
		}
	}
	return hadOutput, nil
}
