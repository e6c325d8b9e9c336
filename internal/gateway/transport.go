package gateway

import (
	"encoding/json"
	"errors"

	"github.com/loqalabs/loqa-tts-gateway/internal/protocol"
	"github.com/nats-io/nats.go"
)

// ErrDisconnected reports that the client side of a transport went away.
// It is a normal termination condition, not a failure.
var ErrDisconnected = errors.New("transport disconnected")

// Transport delivers framed messages for one session to a client.
type Transport interface {
	SendAudio(seq int, data []byte) error
	SendEndOfStream() error
	SendError(code int, message string) error
	Close(code int, reason string) error
}

// natsTransport publishes session messages on the bus. A closed or
// draining connection surfaces as ErrDisconnected.
type natsTransport struct {
	conn    *nats.Conn
	subject string
}

// NewNATSTransport returns a Transport that publishes to the session's
// audio subject.
func NewNATSTransport(conn *nats.Conn, sessionID string) Transport {
	return &natsTransport{conn: conn, subject: protocol.AudioSubject(sessionID)}
}

func (t *natsTransport) publish(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := t.conn.Publish(t.subject, data); err != nil {
		if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrConnectionDraining) {
			return ErrDisconnected
		}
		return err
	}
	return nil
}

func (t *natsTransport) SendAudio(seq int, data []byte) error {
	return t.publish(protocol.AudioChunkMessage{Type: protocol.MessageTypeAudio, Seq: seq, Data: data})
}

func (t *natsTransport) SendEndOfStream() error {
	return t.publish(protocol.EndOfStreamMessage{Type: protocol.MessageTypeEndOfStream})
}

func (t *natsTransport) SendError(code int, message string) error {
	return t.publish(protocol.ErrorMessage{Type: protocol.MessageTypeError, Code: code, Message: message})
}

func (t *natsTransport) Close(_ int, _ string) error {
	// NATS subjects have no per-session connection to tear down; the
	// error/eos message is the terminal frame.
	return nil
}
