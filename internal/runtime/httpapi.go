package runtime

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/loqalabs/loqa-tts-gateway/internal/audio"
	"github.com/loqalabs/loqa-tts-gateway/internal/eventstore"
	"github.com/loqalabs/loqa-tts-gateway/internal/gateway"
	"github.com/loqalabs/loqa-tts-gateway/internal/protocol"
	"github.com/loqalabs/loqa-tts-gateway/internal/provider"
	"github.com/loqalabs/loqa-tts-gateway/internal/ratelimit"
)

// apiServer exposes the session-management REST surface. Audio itself flows
// over the bus; HTTP only creates and inspects sessions.
type apiServer struct {
	svc     *gateway.Service
	events  *eventstore.Store
	limiter *ratelimit.Limiter
	log     *slog.Logger
}

type createSessionBody struct {
	Provider   string `json:"provider"`
	Voice      string `json:"voice"`
	Text       string `json:"text"`
	Language   string `json:"language"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
}

type sessionResponse struct {
	SessionID     string    `json:"session_id"`
	Provider      string    `json:"provider"`
	Voice         string    `json:"voice,omitempty"`
	Language      string    `json:"language,omitempty"`
	Format        string    `json:"format"`
	SampleRate    int       `json:"sample_rate"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	StreamSubject string    `json:"stream_subject"`
}

func (a *apiServer) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/tts/sessions", a.handleCreateSession)
	mux.HandleFunc("GET /v1/tts/sessions/{id}", a.handleGetSession)
	mux.HandleFunc("GET /v1/tts/sessions/{id}/events", a.handleSessionEvents)
	mux.HandleFunc("GET /v1/voices", a.handleListVoices)
}

func (a *apiServer) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if !a.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, gateway.ErrRateLimited.Error())
		return
	}

	var body createSessionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Provider == "" {
		body.Provider = "mock_tone"
	}
	if body.Format == "" {
		body.Format = string(audio.FormatPCM16)
	}
	if body.SampleRate == 0 {
		body.SampleRate = 22050
	}

	sess, err := a.svc.CreateSession(r.Context(), gateway.CreateSessionRequest{
		Provider:     body.Provider,
		Voice:        body.Voice,
		Text:         body.Text,
		Language:     body.Language,
		TargetFormat: audio.Format(body.Format),
		SampleRate:   body.SampleRate,
	})
	if err != nil {
		switch {
		case errors.Is(err, gateway.ErrEmptyText):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, provider.ErrUnknownProvider):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:     sess.ID,
		Provider:      sess.Provider,
		Voice:         sess.Voice,
		Language:      sess.Language,
		Format:        string(sess.TargetFormat),
		SampleRate:    sess.SampleRate,
		Status:        string(sess.Status),
		CreatedAt:     sess.CreatedAt,
		StreamSubject: protocol.AudioSubject(sess.ID),
	})
}

func (a *apiServer) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := a.svc.GetSession(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:     sess.ID,
		Provider:      sess.Provider,
		Voice:         sess.Voice,
		Language:      sess.Language,
		Format:        string(sess.TargetFormat),
		SampleRate:    sess.SampleRate,
		Status:        string(sess.Status),
		CreatedAt:     sess.CreatedAt,
		StreamSubject: protocol.AudioSubject(sess.ID),
	})
}

func (a *apiServer) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.svc.GetSession(id); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	events, err := a.events.ListSessionEvents(r.Context(), id, 100)
	if err != nil {
		a.log.Error("failed to list session events", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	type eventResponse struct {
		Type      string    `json:"type"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]eventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, eventResponse{Type: e.Type, CreatedAt: e.CreatedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "events": out})
}

func (a *apiServer) handleListVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := a.svc.ListVoices(r.Context())
	if err != nil {
		a.log.Error("failed to list voices", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list voices")
		return
	}

	type voiceResponse struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Language   string `json:"language,omitempty"`
		SampleRate int    `json:"sample_rate,omitempty"`
	}
	out := make([]voiceResponse, 0, len(voices))
	for _, v := range voices {
		out = append(out, voiceResponse{ID: v.ID, Name: v.Name, Language: v.Language, SampleRate: v.SampleRate})
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": out})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
