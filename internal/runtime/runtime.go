// Package runtime wires the gateway together: telemetry, the message bus,
// the event store, providers, admission control, and the HTTP surface.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-tts-gateway/internal/breaker"
	"github.com/loqalabs/loqa-tts-gateway/internal/bus"
	"github.com/loqalabs/loqa-tts-gateway/internal/config"
	"github.com/loqalabs/loqa-tts-gateway/internal/eventstore"
	"github.com/loqalabs/loqa-tts-gateway/internal/gateway"
	"github.com/loqalabs/loqa-tts-gateway/internal/natsserver"
	"github.com/loqalabs/loqa-tts-gateway/internal/provider"
	"github.com/loqalabs/loqa-tts-gateway/internal/ratelimit"
	"github.com/loqalabs/loqa-tts-gateway/internal/session"
	"github.com/loqalabs/loqa-tts-gateway/internal/transcode"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger.With(slog.String("component", "natsserver")))
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	defer embedded.Shutdown()

	busClient, err := bus.Connect(ctx, r.cfg.Bus, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer busClient.Close()

	events, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("failed to open event store: %w", err)
	}
	defer events.Close()

	registry, err := r.buildProviders()
	if err != nil {
		return fmt.Errorf("failed to build providers: %w", err)
	}

	svc := gateway.NewService(
		r.cfg.Stream,
		registry,
		session.NewStore(),
		transcode.NewService(),
		breaker.NewRegistry(r.cfg.Breaker, r.logger),
		events,
		r.logger,
	)

	queue := gateway.NewQueue(svc, r.logger)
	queue.Configure(ctx, r.cfg.Queue.MaxSize, r.cfg.Queue.WorkerCount)
	defer queue.Close()

	listener := gateway.NewBusListener(busClient, queue, r.logger)
	if err := listener.Start(ctx); err != nil {
		return fmt.Errorf("failed to start bus listener: %w", err)
	}
	defer listener.Stop()

	api := &apiServer{
		svc:     svc,
		events:  events,
		limiter: ratelimit.New(r.cfg.RateLimit, r.logger),
		log:     r.logger.With(slog.String("component", "http")),
	}

	mux := http.NewServeMux()
	api.register(mux)
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metricHandler != nil {
		mux.Handle("/metrics", metricHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.Int("providers", len(registry.List())))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

func (r *Runtime) buildProviders() (*provider.Registry, error) {
	registry := provider.NewRegistry()

	if r.cfg.Providers.MockToneEnabled {
		registry.Register(provider.NewMockTone(r.cfg.Providers.MockToneSampleRate))
	}

	if cmd := r.cfg.Providers.ExecCommand; cmd != "" {
		backend, err := provider.NewExecBackend(cmd, r.cfg.Providers.ExecSampleRate, r.cfg.Providers.ExecChannels)
		if err != nil {
			return nil, err
		}
		registry.Register(backend)
	}

	if len(registry.List()) == 0 {
		return nil, fmt.Errorf("no synthesis providers configured")
	}
	return registry, nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
