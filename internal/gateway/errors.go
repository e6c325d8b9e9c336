package gateway

import "errors"

var (
	// ErrSessionNotFound reports a stream request for an unknown session id.
	ErrSessionNotFound = errors.New("session not found")

	// ErrBackendUnavailable reports a circuit-open rejection; the backend
	// was never contacted.
	ErrBackendUnavailable = errors.New("provider temporarily unavailable")

	// ErrQueueFull reports that the admission queue is at capacity. The
	// caller may retry later; this is an overload signal, not a validation
	// failure.
	ErrQueueFull = errors.New("session queue full")

	// ErrRateLimited reports a fixed-window rate limit rejection.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrEmptyText reports a create request whose text is empty after
	// trimming.
	ErrEmptyText = errors.New("text must not be empty")

	// ErrChunkTimeout reports that the backend produced no chunk within
	// the configured per-chunk timeout.
	ErrChunkTimeout = errors.New("timed out waiting for audio chunk")
)
