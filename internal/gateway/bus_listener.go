package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/loqalabs/loqa-tts-gateway/internal/bus"
	"github.com/loqalabs/loqa-tts-gateway/internal/protocol"
	"github.com/nats-io/nats.go"
)

// BusListener subscribes to stream-start requests on the message bus and
// feeds them into the admission queue.
type BusListener struct {
	client *bus.Client
	queue  *Queue
	log    *slog.Logger

	sub *nats.Subscription
}

func NewBusListener(client *bus.Client, queue *Queue, log *slog.Logger) *BusListener {
	return &BusListener{
		client: client,
		queue:  queue,
		log:    log.With(slog.String("component", "bus_listener")),
	}
}

// Start subscribes to the stream-start subject. Handlers run on NATS
// callback goroutines; the actual streaming happens on queue workers so a
// slow stream never stalls the subscription.
func (l *BusListener) Start(ctx context.Context) error {
	sub, err := l.client.Conn().Subscribe(protocol.SubjectStreamStart, func(msg *nats.Msg) {
		l.handleStart(ctx, msg)
	})
	if err != nil {
		return err
	}
	l.sub = sub
	l.log.Info("listening for stream requests", slog.String("subject", protocol.SubjectStreamStart))
	return nil
}

func (l *BusListener) handleStart(ctx context.Context, msg *nats.Msg) {
	var req protocol.StreamRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		l.log.Warn("discarding malformed stream request", slogError(err))
		return
	}
	if req.SessionID == "" {
		l.log.Warn("discarding stream request without session id")
		return
	}

	tp := NewNATSTransport(l.client.Conn(), req.SessionID)
	if _, err := l.queue.Dispatch(ctx, req.SessionID, tp); err != nil {
		if errors.Is(err, ErrQueueFull) {
			if sendErr := tp.SendError(429, ErrQueueFull.Error()); sendErr != nil {
				l.log.Warn("failed to report queue rejection",
					slog.String("session_id", req.SessionID),
					slogError(sendErr))
			}
			return
		}
		l.log.Error("failed to submit stream request",
			slog.String("session_id", req.SessionID),
			slogError(err))
	}
}

// Stop drains the subscription.
func (l *BusListener) Stop() {
	if l.sub != nil {
		if err := l.sub.Drain(); err != nil {
			l.log.Warn("failed to drain subscription", slogError(err))
		}
	}
}
