package audio

import (
	"encoding/binary"
	"testing"
)

func TestPCM16FromFloatsClamps(t *testing.T) {
	pcm := PCM16FromFloats([]float64{0, 1.5, -1.5})
	if len(pcm) != 6 {
		t.Fatalf("expected 6 bytes, got %d", len(pcm))
	}
	if v := int16(binary.LittleEndian.Uint16(pcm[0:2])); v != 0 {
		t.Fatalf("expected 0, got %d", v)
	}
	if v := int16(binary.LittleEndian.Uint16(pcm[2:4])); v != 32767 {
		t.Fatalf("expected clamp to 32767, got %d", v)
	}
	if v := int16(binary.LittleEndian.Uint16(pcm[4:6])); v != -32767 {
		t.Fatalf("expected clamp to -32767, got %d", v)
	}
}

func TestWAVHeaderLayout(t *testing.T) {
	h := WAVHeader(16000, 16000, 1, 16)
	if len(h) != 44 {
		t.Fatalf("expected 44-byte header, got %d", len(h))
	}
	if string(h[0:4]) != "RIFF" || string(h[8:12]) != "WAVE" {
		t.Fatalf("bad RIFF/WAVE magic: %q %q", h[0:4], h[8:12])
	}
	if rate := binary.LittleEndian.Uint32(h[24:28]); rate != 16000 {
		t.Fatalf("expected sample rate 16000, got %d", rate)
	}
	if dataSize := binary.LittleEndian.Uint32(h[40:44]); dataSize != 32000 {
		t.Fatalf("expected data size 32000, got %d", dataSize)
	}
}

func TestToneAndSilenceLengths(t *testing.T) {
	if n := len(Tone(440, 0.1, 16000, 0.2)); n != 1600 {
		t.Fatalf("expected 1600 samples, got %d", n)
	}
	if n := len(Silence(0.02, 16000)); n != 320 {
		t.Fatalf("expected 320 samples, got %d", n)
	}
}
