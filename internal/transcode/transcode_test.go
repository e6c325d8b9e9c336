package transcode

import (
	"bytes"
	"errors"
	"testing"

	"github.com/loqalabs/loqa-tts-gateway/internal/audio"
	"github.com/loqalabs/loqa-tts-gateway/internal/provider"
)

func pcmChunk(data []byte, rate int) provider.AudioChunk {
	return provider.AudioChunk{
		Data:       data,
		SampleRate: rate,
		Channels:   1,
		Format:     audio.FormatPCM16,
	}
}

func TestPCM16Passthrough(t *testing.T) {
	svc := NewService()
	data := []byte{0x01, 0x02, 0x03, 0x04}

	out, err := svc.Transcode(pcmChunk(data, 16000), audio.FormatPCM16, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(out, data) {
		t.Fatalf("expected pass-through bytes, got %v", out)
	}
}

func TestSampleRateMismatchRejected(t *testing.T) {
	svc := NewService()
	_, err := svc.Transcode(pcmChunk([]byte{0, 0}, 22050), audio.FormatPCM16, 16000)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestUnknownTargetRejected(t *testing.T) {
	svc := NewService()
	_, err := svc.Transcode(pcmChunk([]byte{0, 0}, 16000), audio.FormatOpus, 16000)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestWAVWrapPrependsHeader(t *testing.T) {
	svc := NewService()
	data := make([]byte, 320)

	out, err := svc.Transcode(pcmChunk(data, 16000), audio.FormatWAV, 16000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 44+len(data) {
		t.Fatalf("expected 44-byte header plus data, got %d bytes", len(out))
	}
	if string(out[0:4]) != "RIFF" {
		t.Fatalf("expected RIFF header, got %q", out[0:4])
	}
}

func TestMulawHalvesPayload(t *testing.T) {
	svc := NewService()
	data := []byte{0x00, 0x00, 0xFF, 0x7F, 0x00, 0x80}

	out, err := svc.Transcode(pcmChunk(data, 8000), audio.FormatMULaw, 8000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 mu-law bytes, got %d", len(out))
	}
	// Silence encodes to 0xFF in mu-law.
	if out[0] != 0xFF {
		t.Fatalf("expected 0xFF for zero sample, got %#x", out[0])
	}
}
