package gateway

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tts-gateway/internal/provider"
)

func newTestQueue(t *testing.T, env *testEnv) *Queue {
	t.Helper()
	q := NewQueue(env.svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(q.Close)
	return q
}

func TestQueueSubmitFailsFastWhenFull(t *testing.T) {
	env := newTestEnv(t, &scriptedBackend{scripts: []streamScript{{}}}, defaultStreamCfg(), defaultBreakerCfg())
	q := newTestQueue(t, env)
	q.Configure(context.Background(), 1, 0)

	if _, err := q.Submit(context.Background(), "s1", &memTransport{}); err != nil {
		t.Fatalf("first submit should succeed: %v", err)
	}
	if _, err := q.Submit(context.Background(), "s2", &memTransport{}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestQueueConfigureIsIdempotent(t *testing.T) {
	env := newTestEnv(t, &scriptedBackend{scripts: []streamScript{{}}}, defaultStreamCfg(), defaultBreakerCfg())
	q := newTestQueue(t, env)
	q.Configure(context.Background(), 1, 0)
	q.Configure(context.Background(), 100, 8)

	if _, err := q.Submit(context.Background(), "s1", &memTransport{}); err != nil {
		t.Fatalf("first submit should succeed: %v", err)
	}
	if _, err := q.Submit(context.Background(), "s2", &memTransport{}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("reconfiguration must not resize a running queue, got %v", err)
	}
}

func TestQueueSubmitBeforeConfigure(t *testing.T) {
	env := newTestEnv(t, &scriptedBackend{scripts: []streamScript{{}}}, defaultStreamCfg(), defaultBreakerCfg())
	q := newTestQueue(t, env)

	if _, err := q.Submit(context.Background(), "s1", &memTransport{}); err == nil {
		t.Fatal("expected error submitting to an unconfigured queue")
	}
}

func TestQueueWorkerStreamsAndSendsEndOfStream(t *testing.T) {
	backend := &scriptedBackend{scripts: []streamScript{{
		chunks: []provider.AudioChunk{
			pcmChunk([]byte{1, 0}),
			pcmChunk([]byte{2, 0}),
			pcmChunk([]byte{3, 0}),
		},
	}}}
	env := newTestEnv(t, backend, defaultStreamCfg(), defaultBreakerCfg())
	sess := createTestSession(t, env)

	q := newTestQueue(t, env)
	q.Configure(context.Background(), 4, 1)

	tp := &memTransport{}
	item, err := q.Submit(context.Background(), sess.ID, tp)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case err := <-item.Done():
		if err != nil {
			t.Fatalf("stream failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker to finish")
	}

	seqs, eos, errCodes, _ := tp.snapshot()
	if len(seqs) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(seqs))
	}
	for i, seq := range seqs {
		if seq != i+1 {
			t.Fatalf("expected strictly increasing seq starting at 1, got %v", seqs)
		}
	}
	if eos != 1 {
		t.Fatalf("expected exactly one end-of-stream frame, got %d", eos)
	}
	if len(errCodes) != 0 {
		t.Fatalf("expected no error frames, got %v", errCodes)
	}
}

func TestQueueWorkerReportsTerminalError(t *testing.T) {
	backend := &scriptedBackend{scripts: []streamScript{{err: errors.New("backend exploded")}}}
	env := newTestEnv(t, backend, defaultStreamCfg(), defaultBreakerCfg())
	sess := createTestSession(t, env)

	q := newTestQueue(t, env)
	q.Configure(context.Background(), 4, 1)

	tp := &memTransport{}
	item, err := q.Submit(context.Background(), sess.ID, tp)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case err := <-item.Done():
		if err == nil {
			t.Fatal("expected stream error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for worker to finish")
	}

	_, eos, errCodes, closed := tp.snapshot()
	if eos != 0 {
		t.Fatal("failed stream must not send end-of-stream")
	}
	if len(errCodes) != 1 || errCodes[0] != 500 {
		t.Fatalf("expected one 500 error frame, got %v", errCodes)
	}
	if !closed {
		t.Fatal("transport should be closed after a terminal error")
	}
}

func TestDispatchInlineWhenUnconfigured(t *testing.T) {
	backend := &scriptedBackend{scripts: []streamScript{{
		chunks: []provider.AudioChunk{pcmChunk([]byte{1, 0})},
	}}}
	env := newTestEnv(t, backend, defaultStreamCfg(), defaultBreakerCfg())
	sess := createTestSession(t, env)

	q := newTestQueue(t, env)

	tp := &memTransport{}
	done, err := q.Dispatch(context.Background(), sess.ID, tp)
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("inline stream failed: %v", err)
	}

	seqs, eos, _, _ := tp.snapshot()
	if len(seqs) != 1 || eos != 1 {
		t.Fatalf("expected one chunk and one end-of-stream, got %d chunks and %d eos", len(seqs), eos)
	}
}

func TestQueueZeroWorkersAcceptsWithoutDraining(t *testing.T) {
	backend := &scriptedBackend{scripts: []streamScript{{
		chunks: []provider.AudioChunk{pcmChunk([]byte{1, 0})},
	}}}
	env := newTestEnv(t, backend, defaultStreamCfg(), defaultBreakerCfg())
	sess := createTestSession(t, env)

	q := newTestQueue(t, env)
	q.Configure(context.Background(), 4, 0)

	tp := &memTransport{}
	item, err := q.Submit(context.Background(), sess.ID, tp)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	select {
	case err := <-item.Done():
		t.Fatalf("nothing should drain a zero-worker queue, got %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	seqs, _, _, _ := tp.snapshot()
	if len(seqs) != 0 {
		t.Fatalf("expected no chunks, got %d", len(seqs))
	}
}
