package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/loqalabs/loqa-tts-gateway/internal/config"
	"github.com/loqalabs/loqa-tts-gateway/internal/provider"
	"github.com/loqalabs/loqa-tts-gateway/internal/session"
)

func TestStreamRetriesWhenNoOutputProduced(t *testing.T) {
	backend := &scriptedBackend{scripts: []streamScript{
		{err: errors.New("transient backend error")},
		{chunks: []provider.AudioChunk{pcmChunk([]byte{7, 0, 8, 0})}},
	}}
	cfg := config.StreamConfig{ChunkTimeoutSeconds: 2, MaxAttempts: 2}
	env := newTestEnv(t, backend, cfg, defaultBreakerCfg())
	sess := createTestSession(t, env)

	tp := &memTransport{}
	if err := env.svc.StreamSession(context.Background(), sess.ID, tp); err != nil {
		t.Fatalf("expected retry to recover the stream, got %v", err)
	}

	if backend.Calls() != 2 {
		t.Fatalf("expected 2 attempts, got %d", backend.Calls())
	}
	seqs, _, _, _ := tp.snapshot()
	if len(seqs) != 1 || seqs[0] != 1 {
		t.Fatalf("expected exactly one chunk with seq 1, got %v", seqs)
	}

	got, _ := env.svc.GetSession(sess.ID)
	if got.Status != session.StatusCompleted {
		t.Fatalf("expected completed status, got %q", got.Status)
	}
}

func TestStreamNeverRetriesAfterOutput(t *testing.T) {
	backend := &scriptedBackend{scripts: []streamScript{{
		chunks: []provider.AudioChunk{pcmChunk([]byte{1, 0})},
		err:    errors.New("backend died mid-stream"),
	}}}
	cfg := config.StreamConfig{ChunkTimeoutSeconds: 2, MaxAttempts: 3}
	env := newTestEnv(t, backend, cfg, defaultBreakerCfg())
	sess := createTestSession(t, env)

	tp := &memTransport{}
	err := env.svc.StreamSession(context.Background(), sess.ID, tp)
	if err == nil {
		t.Fatal("expected mid-stream failure to propagate")
	}

	if backend.Calls() != 1 {
		t.Fatalf("a stream that produced output must not be retried, got %d attempts", backend.Calls())
	}
	seqs, _, _, _ := tp.snapshot()
	if len(seqs) != 1 {
		t.Fatalf("expected exactly one chunk, got %d", len(seqs))
	}

	got, _ := env.svc.GetSession(sess.ID)
	if got.Status != session.StatusFailed {
		t.Fatalf("expected failed status, got %q", got.Status)
	}
}

func TestStreamNeverRetriesDeliveryFailures(t *testing.T) {
	backend := &scriptedBackend{scripts: []streamScript{{
		chunks: []provider.AudioChunk{pcmChunk([]byte{1, 0})},
	}}}
	cfg := config.StreamConfig{ChunkTimeoutSeconds: 2, MaxAttempts: 3}
	env := newTestEnv(t, backend, cfg, defaultBreakerCfg())
	sess := createTestSession(t, env)

	sendFailure := errors.New("socket write failed")
	tp := &memTransport{audioFail: sendFailure}
	err := env.svc.StreamSession(context.Background(), sess.ID, tp)
	if !errors.Is(err, sendFailure) {
		t.Fatalf("expected delivery failure to propagate, got %v", err)
	}
	if backend.Calls() != 1 {
		t.Fatalf("delivery failures must not be retried, got %d attempts", backend.Calls())
	}
}

func TestStreamChunkTimeout(t *testing.T) {
	backend := &scriptedBackend{scripts: []streamScript{{hang: true}}}
	cfg := config.StreamConfig{ChunkTimeoutSeconds: 0.05, MaxAttempts: 2}
	env := newTestEnv(t, backend, cfg, defaultBreakerCfg())
	sess := createTestSession(t, env)

	err := env.svc.StreamSession(context.Background(), sess.ID, &memTransport{})
	if !errors.Is(err, ErrChunkTimeout) {
		t.Fatalf("expected ErrChunkTimeout, got %v", err)
	}
	if backend.Calls() != 2 {
		t.Fatalf("a silent stream should be retried up to the attempt limit, got %d attempts", backend.Calls())
	}

	got, _ := env.svc.GetSession(sess.ID)
	if got.Status != session.StatusFailed {
		t.Fatalf("expected failed status, got %q", got.Status)
	}
}

func TestStreamContextCancellation(t *testing.T) {
	backend := &scriptedBackend{scripts: []streamScript{{hang: true}}}
	cfg := config.StreamConfig{ChunkTimeoutSeconds: 30, MaxAttempts: 1}
	env := newTestEnv(t, backend, cfg, defaultBreakerCfg())
	sess := createTestSession(t, env)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := env.svc.StreamSession(ctx, sess.ID, &memTransport{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
