// Package audio provides small PCM helpers shared by the mock tone
// provider and the transcoders.
package audio

import (
	"encoding/binary"
	"math"
)

// PCM16FromFloats clamps [-1.0, 1.0] samples and converts them to
// 16-bit little-endian PCM.
func PCM16FromFloats(samples []float64) []byte {
	out := make([]byte, 0, len(samples)*2)
	var buf [2]byte
	for _, s := range samples {
		v := math.Max(-1.0, math.Min(1.0, s))
		iv := int16(math.Round(v * 32767.0))
		binary.LittleEndian.PutUint16(buf[:], uint16(iv))
		out = append(out, buf[0], buf[1])
	}
	return out
}

// WAVHeader builds a canonical 44-byte RIFF/WAVE header for PCM data.
func WAVHeader(numSamples, sampleRate, numChannels, bitsPerSample int) []byte {
	byteRate := sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8
	dataSize := numSamples * blockAlign
	riffSize := 36 + dataSize

	h := make([]byte, 0, 44)
	h = append(h, []byte("RIFF")...)
	h = binary.LittleEndian.AppendUint32(h, uint32(riffSize))
	h = append(h, []byte("WAVE")...)
	h = append(h, []byte("fmt ")...)
	h = binary.LittleEndian.AppendUint32(h, 16) // PCM subchunk size
	h = binary.LittleEndian.AppendUint16(h, 1)  // PCM format
	h = binary.LittleEndian.AppendUint16(h, uint16(numChannels))
	h = binary.LittleEndian.AppendUint32(h, uint32(sampleRate))
	h = binary.LittleEndian.AppendUint32(h, uint32(byteRate))
	h = binary.LittleEndian.AppendUint16(h, uint16(blockAlign))
	h = binary.LittleEndian.AppendUint16(h, uint16(bitsPerSample))
	h = append(h, []byte("data")...)
	h = binary.LittleEndian.AppendUint32(h, uint32(dataSize))
	return h
}

// Tone generates sine samples at the given frequency and gain.
func Tone(frequency float64, durationSec float64, sampleRate int, gain float64) []float64 {
	n := int(durationSec * float64(sampleRate))
	twoPiF := 2.0 * math.Pi * frequency
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Sin(twoPiF*(float64(i)/float64(sampleRate))) * gain
	}
	return out
}

// Silence generates zero samples.
func Silence(durationSec float64, sampleRate int) []float64 {
	n := int(durationSec * float64(sampleRate))
	return make([]float64, n)
}
