// Package transcode converts provider audio chunks into the format a
// session asked for.
package transcode

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/loqalabs/loqa-tts-gateway/internal/audio"
	"github.com/loqalabs/loqa-tts-gateway/internal/provider"
)

// ErrUnsupportedFormat identifies a format/rate combination the service
// cannot produce.
var ErrUnsupportedFormat = errors.New("unsupported transcode target")

// Transcoder converts a provider chunk into target format bytes.
type Transcoder interface {
	Transcode(chunk provider.AudioChunk, targetFormat audio.Format, sampleRate int) ([]byte, error)
}

// Service routes chunks to the transcoder registered for the target format.
type Service struct {
	transcoders map[audio.Format]Transcoder
}

func NewService() *Service {
	return &Service{
		transcoders: map[audio.Format]Transcoder{
			audio.FormatPCM16: pcm16Passthrough{},
			audio.FormatWAV:   wavWrapper{},
			audio.FormatMULaw: mulawEncoder{},
		},
	}
}

func (s *Service) Transcode(chunk provider.AudioChunk, targetFormat audio.Format, sampleRate int) ([]byte, error) {
	t, ok := s.transcoders[targetFormat]
	if !ok {
		return nil, fmt.Errorf("%w: format %q", ErrUnsupportedFormat, targetFormat)
	}
	return t.Transcode(chunk, targetFormat, sampleRate)
}

func requirePCM16Input(chunk provider.AudioChunk, sampleRate int) error {
	if chunk.Format != audio.FormatPCM16 {
		return fmt.Errorf("%w: input format %q, expected pcm16", ErrUnsupportedFormat, chunk.Format)
	}
	if chunk.SampleRate != sampleRate {
		// Resampling is future work; mismatches are explicit errors.
		return fmt.Errorf("%w: sample rate %d does not match requested %d",
			ErrUnsupportedFormat, chunk.SampleRate, sampleRate)
	}
	return nil
}

// pcm16Passthrough returns PCM16 bytes unchanged when rates match.
type pcm16Passthrough struct{}

func (pcm16Passthrough) Transcode(chunk provider.AudioChunk, _ audio.Format, sampleRate int) ([]byte, error) {
	if err := requirePCM16Input(chunk, sampleRate); err != nil {
		return nil, err
	}
	return chunk.Data, nil
}

// wavWrapper prepends a RIFF header to each PCM16 chunk so every delivered
// message is independently playable.
type wavWrapper struct{}

func (wavWrapper) Transcode(chunk provider.AudioChunk, _ audio.Format, sampleRate int) ([]byte, error) {
	if err := requirePCM16Input(chunk, sampleRate); err != nil {
		return nil, err
	}
	header := audio.WAVHeader(len(chunk.Data)/2, sampleRate, chunk.Channels, 16)
	out := make([]byte, 0, len(header)+len(chunk.Data))
	out = append(out, header...)
	return append(out, chunk.Data...), nil
}

// mulawEncoder compresses PCM16 samples to G.711 mu-law.
type mulawEncoder struct{}

const mulawBias = 0x84

func (mulawEncoder) Transcode(chunk provider.AudioChunk, _ audio.Format, sampleRate int) ([]byte, error) {
	if err := requirePCM16Input(chunk, sampleRate); err != nil {
		return nil, err
	}
	if len(chunk.Data)%2 != 0 {
		return nil, fmt.Errorf("%w: odd pcm16 payload length %d", ErrUnsupportedFormat, len(chunk.Data))
	}
	out := make([]byte, len(chunk.Data)/2)
	for i := range out {
		sample := int16(binary.LittleEndian.Uint16(chunk.Data[i*2:]))
		out[i] = mulawFromPCM16(sample)
	}
	return out, nil
}

func mulawFromPCM16(sample int16) byte {
	sign := byte(0)
	value := int(sample)
	if value < 0 {
		value = -value
		sign = 0x80
	}
	value += mulawBias
	if value > 0x7FFF {
		value = 0x7FFF
	}

	exponent := 7
	for mask := 0x4000; exponent > 0 && value&mask == 0; mask >>= 1 {
		exponent--
	}
	mantissa := (value >> (exponent + 3)) & 0x0F
	return ^(sign | byte(exponent<<4) | byte(mantissa))
}
