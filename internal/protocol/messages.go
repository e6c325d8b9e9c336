package protocol

import "time"

// StreamRequest asks the gateway to start delivering audio for a session.
type StreamRequest struct {
	SessionID string    `json:"session_id"`
	ReplyTo   string    `json:"reply_to,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AudioChunkMessage carries one transcoded audio chunk to a client.
// Data is base64-encoded by encoding/json.
type AudioChunkMessage struct {
	Type string `json:"type"` // always "audio"
	Seq  int    `json:"seq"`
	Data []byte `json:"data"`
}

// EndOfStreamMessage marks the end of a session's audio.
type EndOfStreamMessage struct {
	Type string `json:"type"` // always "eos"
}

// ErrorMessage reports a terminal stream error to a client.
type ErrorMessage struct {
	Type    string `json:"type"` // always "error"
	Code    int    `json:"code"`
	Message string `json:"message"`
}

const (
	MessageTypeAudio       = "audio"
	MessageTypeEndOfStream = "eos"
	MessageTypeError       = "error"
)

const (
	// SubjectStreamStart receives StreamRequest messages.
	SubjectStreamStart = "tts.session.start"
	// SubjectAudioPrefix is the per-session delivery subject prefix;
	// chunks for session S are published on "tts.audio.S".
	SubjectAudioPrefix = "tts.audio"
)

// AudioSubject returns the delivery subject for a session.
func AudioSubject(sessionID string) string {
	return SubjectAudioPrefix + "." + sessionID
}
