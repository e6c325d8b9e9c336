// Package gateway implements the admission and resilience core of the
// synthesis gateway: session lifecycle, circuit-gated provider streaming
// with bounded retry, and the bounded worker queue that drives delivery.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/loqa-tts-gateway/internal/audio"
	"github.com/loqalabs/loqa-tts-gateway/internal/breaker"
	"github.com/loqalabs/loqa-tts-gateway/internal/config"
	"github.com/loqalabs/loqa-tts-gateway/internal/eventstore"
	"github.com/loqalabs/loqa-tts-gateway/internal/provider"
	"github.com/loqalabs/loqa-tts-gateway/internal/session"
	"github.com/loqalabs/loqa-tts-gateway/internal/transcode"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CreateSessionRequest carries the client-visible parameters for a new
// synthesis session.
type CreateSessionRequest struct {
	Provider     string
	Voice        string
	Text         string
	Language     string
	TargetFormat audio.Format
	SampleRate   int
}

// Service orchestrates session lifecycle and provider streaming.
type Service struct {
	cfg        config.StreamConfig
	providers  *provider.Registry
	sessions   *session.Store
	transcoder *transcode.Service
	breakers   *breaker.Registry
	events     *eventstore.Store
	log        *slog.Logger
	clock      func() time.Time

	sessionEvents    metric.Int64Counter
	providerFailures metric.Int64Counter
	activeStreams    metric.Int64UpDownCounter
	streamChunks     metric.Int64Counter
	streamBytes      metric.Int64Counter
}

func NewService(
	cfg config.StreamConfig,
	providers *provider.Registry,
	sessions *session.Store,
	transcoder *transcode.Service,
	breakers *breaker.Registry,
	events *eventstore.Store,
	log *slog.Logger,
) *Service {
	s := &Service{
		cfg:        cfg,
		providers:  providers,
		sessions:   sessions,
		transcoder: transcoder,
		breakers:   breakers,
		events:     events,
		log:        log.With(slog.String("component", "gateway")),
		clock:      time.Now,
	}
	s.initMetrics()
	return s
}

func (s *Service) initMetrics() {
	meter := otel.Meter("github.com/loqalabs/loqa-tts-gateway/gateway")
	var err error
	if s.sessionEvents, err = meter.Int64Counter("tts_sessions_total",
		metric.WithDescription("Total session lifecycle events by provider and status.")); err != nil {
		s.log.Warn("failed to initialize session metrics", slogError(err))
	}
	if s.providerFailures, err = meter.Int64Counter("tts_provider_failures_total",
		metric.WithDescription("Total provider failures observed during streaming.")); err != nil {
		s.log.Warn("failed to initialize failure metrics", slogError(err))
	}
	if s.activeStreams, err = meter.Int64UpDownCounter("tts_active_streams",
		metric.WithDescription("Current number of active synthesis streams.")); err != nil {
		s.log.Warn("failed to initialize stream gauge", slogError(err))
	}
	if s.streamChunks, err = meter.Int64Counter("tts_stream_chunks_total",
		metric.WithDescription("Total audio chunks delivered.")); err != nil {
		s.log.Warn("failed to initialize chunk metrics", slogError(err))
	}
	if s.streamBytes, err = meter.Int64Counter("tts_stream_bytes_total",
		metric.WithDescription("Total audio bytes delivered.")); err != nil {
		s.log.Warn("failed to initialize byte metrics", slogError(err))
	}
}

// CreateSession validates the request shape, persists a pending session and
// returns it. Provider existence is checked against the registry; deeper
// voice/language validation belongs to the provider itself.
func (s *Service) CreateSession(ctx context.Context, req CreateSessionRequest) (session.Session, error) {
	if strings.TrimSpace(req.Text) == "" {
		return session.Session{}, ErrEmptyText
	}
	if _, err := s.providers.Get(req.Provider); err != nil {
		return session.Session{}, err
	}
	if !audio.ValidFormat(req.TargetFormat) {
		return session.Session{}, fmt.Errorf("unknown target format %q", req.TargetFormat)
	}

	sess := session.Session{
		ID:           uuid.NewString(),
		Provider:     req.Provider,
		Voice:        req.Voice,
		Text:         req.Text,
		Language:     req.Language,
		TargetFormat: req.TargetFormat,
		SampleRate:   req.SampleRate,
		CreatedAt:    s.clock().UTC(),
		Status:       session.StatusPending,
	}
	s.sessions.Save(sess)

	s.countSession(ctx, sess.Provider, "created")
	s.appendEvent(ctx, sess, eventstore.EventSessionCreated)

	s.log.Info("session created",
		slog.String("session_id", sess.ID),
		slog.String("provider", sess.Provider),
		slog.String("voice", sess.Voice))
	return sess, nil
}

// GetSession returns the current session record.
func (s *Service) GetSession(id string) (session.Session, error) {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return session.Session{}, fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}
	return sess, nil
}

// StreamSession drives one session's audio from the provider through the
// transcoder to the transport. It returns nil on natural completion,
// ErrDisconnected when the client went away mid-stream, and the underlying
// error otherwise. The circuit breaker is consulted before the provider is
// contacted and updated from the stream outcome.
func (s *Service) StreamSession(ctx context.Context, id string, tp Transport) error {
	sess, ok := s.sessions.Get(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, id)
	}

	backend, err := s.providers.Get(sess.Provider)
	if err != nil {
		return err
	}

	if !s.breakers.AllowRequest(sess.Provider) {
		// Rejected without contacting the backend; session status and
		// circuit state are left untouched.
		return fmt.Errorf("%w: %q", ErrBackendUnavailable, sess.Provider)
	}

	s.sessions.UpdateStatus(id, session.StatusStreaming)
	s.appendEvent(ctx, sess, eventstore.EventStreamingStarted)
	if s.activeStreams != nil {
		s.activeStreams.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", sess.Provider)))
	}
	defer func() {
		if s.activeStreams != nil {
			s.activeStreams.Add(ctx, -1, metric.WithAttributes(attribute.String("provider", sess.Provider)))
		}
	}()

	streamer := &retryStreamer{
		timeout:     time.Duration(s.cfg.ChunkTimeoutSeconds * float64(time.Second)),
		maxAttempts: s.cfg.MaxAttempts,
		log:         s.log.With(slog.String("session_id", id)),
	}

	open := func(attemptCtx context.Context) (<-chan provider.AudioChunk, <-chan error) {
		return backend.StreamSynthesize(attemptCtx, provider.SynthRequest{
			SessionID: sess.ID,
			Text:      sess.Text,
			VoiceID:   sess.Voice,
			Language:  sess.Language,
		})
	}

	seq := 0
	emit := func(chunk provider.AudioChunk) error {
		encoded, err := s.transcoder.Transcode(chunk, sess.TargetFormat, sess.SampleRate)
		if err != nil {
			return err
		}
		seq++
		if err := tp.SendAudio(seq, encoded); err != nil {
			return err
		}
		s.countChunk(ctx, sess, len(encoded))
		return nil
	}

	err = streamer.run(ctx, open, emit)
	switch {
	case err == nil:
		s.breakers.RecordSuccess(sess.Provider)
		s.sessions.UpdateStatus(id, session.StatusCompleted)
		s.countSession(ctx, sess.Provider, "completed")
		s.appendEvent(ctx, sess, eventstore.EventStreamingCompleted)
		s.log.Info("session completed",
			slog.String("session_id", id),
			slog.Int("chunks", seq))
		return nil

	case errors.Is(err, ErrDisconnected):
		// The client went away; stop pulling and end quietly with no
		// circuit-breaker penalty.
		s.sessions.UpdateStatus(id, session.StatusCompleted)
		s.appendEvent(ctx, sess, eventstore.EventClientDisconnected)
		s.log.Info("client disconnected mid-stream",
			slog.String("session_id", id),
			slog.Int("chunks", seq))
		return ErrDisconnected

	default:
		s.sessions.UpdateStatus(id, session.StatusFailed)
		s.breakers.RecordFailure(sess.Provider)
		if s.providerFailures != nil {
			s.providerFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", sess.Provider)))
		}
		s.countSession(ctx, sess.Provider, "failed")
		s.appendEvent(ctx, sess, eventstore.EventStreamingFailed)
		s.log.Error("session failed",
			slog.String("session_id", id),
			slogError(err))
		return err
	}
}

// ListVoices aggregates voices across providers.
func (s *Service) ListVoices(ctx context.Context) ([]provider.Voice, error) {
	return s.providers.ListAllVoices(ctx)
}

func (s *Service) countSession(ctx context.Context, providerID, status string) {
	if s.sessionEvents == nil {
		return
	}
	s.sessionEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", providerID),
		attribute.String("status", status)))
}

func (s *Service) countChunk(ctx context.Context, sess session.Session, numBytes int) {
	attrs := metric.WithAttributes(
		attribute.String("provider", sess.Provider),
		attribute.String("format", string(sess.TargetFormat)))
	if s.streamChunks != nil {
		s.streamChunks.Add(ctx, 1, attrs)
	}
	if s.streamBytes != nil {
		s.streamBytes.Add(ctx, int64(numBytes), attrs)
	}
}

func (s *Service) appendEvent(ctx context.Context, sess session.Session, eventType string) {
	if s.events == nil {
		return
	}
	if eventType == eventstore.EventSessionCreated {
		if err := s.events.AppendSession(ctx, sess.ID, sess.Provider); err != nil {
			s.log.Warn("failed to append session row", slogError(err))
			return
		}
	}
	evt := eventstore.Event{SessionID: sess.ID, Provider: sess.Provider, Type: eventType}
	if err := s.events.AppendEvent(ctx, evt); err != nil {
		s.log.Warn("failed to append session event", slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
