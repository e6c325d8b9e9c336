package provider

import (
	"context"

	"github.com/loqalabs/loqa-tts-gateway/internal/audio"
)

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	SessionID string
	Text      string
	VoiceID   string
	Language  string
}

// AudioChunk contains raw audio produced by a backend. The gateway
// re-encodes it into the requested target format before delivery.
type AudioChunk struct {
	Data       []byte
	SampleRate int
	Channels   int
	Format     audio.Format
}

// Voice describes a single voice exposed by a backend.
type Voice struct {
	ID         string
	Name       string
	Language   string
	SampleRate int
	BaseFormat audio.Format
}

// Backend is the contract for synthesis providers that stream audio.
// StreamSynthesize returns a chunk channel and an error channel; both are
// closed when the stream ends. A clean end is a closed chunk channel with
// no error delivered.
type Backend interface {
	ID() string
	ListVoices(ctx context.Context) ([]Voice, error)
	StreamSynthesize(ctx context.Context, req SynthRequest) (<-chan AudioChunk, <-chan error)
}
