package provider

import (
	"context"
	"errors"
	"math"

	"github.com/loqalabs/loqa-tts-gateway/internal/audio"
)

// mockTone encodes input text as a sequence of per-character tones. It is
// the development backend: deterministic, dependency-free, and it streams
// small PCM16 chunks the same way a real synthesis backend would.
type mockTone struct {
	sampleRate int
	voices     []Voice
}

const (
	mockToneBaseFreq = 220.0
	mockToneGain     = 0.2
	mockToneCharSec  = 0.08
	mockToneGapSec   = 0.02
	mockToneChunkSec = 0.1
)

func NewMockTone(sampleRate int) Backend {
	return &mockTone{
		sampleRate: sampleRate,
		voices: []Voice{
			{
				ID:         "en-US-mock-1",
				Name:       "Mock Tone Voice",
				Language:   "en-US",
				SampleRate: sampleRate,
				BaseFormat: audio.FormatPCM16,
			},
		},
	}
}

func (m *mockTone) ID() string { return "mock_tone" }

func (m *mockTone) ListVoices(_ context.Context) ([]Voice, error) {
	return append([]Voice(nil), m.voices...), nil
}

func (m *mockTone) StreamSynthesize(ctx context.Context, req SynthRequest) (<-chan AudioChunk, <-chan error) {
	chunks := make(chan AudioChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)

		if req.Text == "" {
			errs <- errors.New("text must not be empty")
			return
		}

		var samples []float64
		for _, ch := range req.Text {
			semitone := float64(int(ch)%24 - 12)
			freq := mockToneBaseFreq * math.Pow(2, semitone/12.0)
			samples = append(samples, audio.Tone(freq, mockToneCharSec, m.sampleRate, mockToneGain)...)
			samples = append(samples, audio.Silence(mockToneGapSec, m.sampleRate)...)
		}
		pcm := audio.PCM16FromFloats(samples)

		// ~100ms of 16-bit mono audio per chunk.
		chunkSize := int(float64(m.sampleRate*2) * mockToneChunkSec)
		if chunkSize <= 0 {
			chunkSize = 1024
		}

		for offset := 0; offset < len(pcm); offset += chunkSize {
			end := offset + chunkSize
			if end > len(pcm) {
				end = len(pcm)
			}
			chunk := AudioChunk{
				Data:       pcm[offset:end],
				SampleRate: m.sampleRate,
				Channels:   1,
				Format:     audio.FormatPCM16,
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()
	return chunks, errs
}
