package session

import (
	"testing"
	"time"

	"github.com/loqalabs/loqa-tts-gateway/internal/audio"
)

func newSession(id string) Session {
	return Session{
		ID:           id,
		Provider:     "mock_tone",
		Voice:        "en-US-mock-1",
		Text:         "Hello",
		TargetFormat: audio.FormatPCM16,
		SampleRate:   16000,
		CreatedAt:    time.Now().UTC(),
		Status:       StatusPending,
	}
}

func TestSaveAndGet(t *testing.T) {
	store := NewStore()
	store.Save(newSession("s1"))

	got, ok := store.Get("s1")
	if !ok {
		t.Fatal("expected session found")
	}
	if got.Status != StatusPending {
		t.Fatalf("expected pending, got %q", got.Status)
	}
	if _, ok := store.Get("missing"); ok {
		t.Fatal("expected missing session not found")
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	store := NewStore()
	store.Save(newSession("s1"))

	store.UpdateStatus("s1", StatusStreaming)
	if got, _ := store.Get("s1"); got.Status != StatusStreaming {
		t.Fatalf("expected streaming, got %q", got.Status)
	}

	store.UpdateStatus("s1", StatusCompleted)
	if got, _ := store.Get("s1"); got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}
}

func TestTerminalStatusIsSticky(t *testing.T) {
	store := NewStore()
	store.Save(newSession("s1"))
	store.UpdateStatus("s1", StatusStreaming)
	store.UpdateStatus("s1", StatusFailed)

	store.UpdateStatus("s1", StatusStreaming)
	if got, _ := store.Get("s1"); got.Status != StatusFailed {
		t.Fatalf("terminal status must not regress, got %q", got.Status)
	}
}

func TestNeverBackToPending(t *testing.T) {
	store := NewStore()
	store.Save(newSession("s1"))
	store.UpdateStatus("s1", StatusStreaming)

	store.UpdateStatus("s1", StatusPending)
	if got, _ := store.Get("s1"); got.Status != StatusStreaming {
		t.Fatalf("session must never return to pending, got %q", got.Status)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := NewStore()
	store.Save(newSession("s1"))

	got, _ := store.Get("s1")
	got.Status = StatusFailed

	fresh, _ := store.Get("s1")
	if fresh.Status != StatusPending {
		t.Fatalf("mutating a returned session must not affect the store")
	}
}
