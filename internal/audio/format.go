package audio

// Format identifies an audio encoding carried through the gateway.
type Format string

const (
	FormatPCM16 Format = "pcm16"
	FormatMULaw Format = "mulaw"
	FormatOpus  Format = "opus"
	FormatMP3   Format = "mp3"
	FormatWAV   Format = "wav"
)

// ValidFormat reports whether f names a known encoding.
func ValidFormat(f Format) bool {
	switch f {
	case FormatPCM16, FormatMULaw, FormatOpus, FormatMP3, FormatWAV:
		return true
	}
	return false
}
