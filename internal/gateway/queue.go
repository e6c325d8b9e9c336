package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// WorkItem is one admitted streaming job. The done channel delivers the
// terminal stream error (or nil) exactly once.
type WorkItem struct {
	SessionID string
	Transport Transport

	done chan error
}

// Done returns a channel that yields the stream outcome once.
func (w *WorkItem) Done() <-chan error { return w.done }

// Queue is a bounded FIFO admission queue drained by a fixed worker pool.
// Submit never blocks: when the buffer is full it fails fast so callers can
// surface backpressure to the client immediately.
type Queue struct {
	svc *Service
	log *slog.Logger

	mu      sync.Mutex
	items   chan *WorkItem
	workers int
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	depth     metric.Int64UpDownCounter
	busy      metric.Int64UpDownCounter
	rejected  metric.Int64Counter
	submitted metric.Int64Counter
}

func NewQueue(svc *Service, log *slog.Logger) *Queue {
	q := &Queue{
		svc: svc,
		log: log.With(slog.String("component", "queue")),
	}
	q.initMetrics()
	return q
}

func (q *Queue) initMetrics() {
	meter := otel.Meter("github.com/loqalabs/loqa-tts-gateway/gateway")
	var err error
	if q.depth, err = meter.Int64UpDownCounter("tts_session_queue_depth",
		metric.WithDescription("Number of sessions waiting in the admission queue.")); err != nil {
		q.log.Warn("failed to initialize queue depth metric", slogError(err))
	}
	if q.busy, err = meter.Int64UpDownCounter("tts_session_workers_busy",
		metric.WithDescription("Number of workers currently streaming a session.")); err != nil {
		q.log.Warn("failed to initialize worker metric", slogError(err))
	}
	if q.rejected, err = meter.Int64Counter("tts_session_queue_full_total",
		metric.WithDescription("Total submissions rejected because the queue was full.")); err != nil {
		q.log.Warn("failed to initialize rejection metric", slogError(err))
	}
	if q.submitted, err = meter.Int64Counter("tts_session_queue_submitted_total",
		metric.WithDescription("Total sessions admitted into the queue.")); err != nil {
		q.log.Warn("failed to initialize submission metric", slogError(err))
	}
}

// Configure sizes the queue buffer and starts the worker pool. Calling it
// again after the pool is running is a no-op. A worker count of zero leaves
// the queue accepting submissions that nothing drains, which is useful in
// tests that exercise backpressure.
func (q *Queue) Configure(ctx context.Context, maxSize, workerCount int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		q.log.Debug("queue already configured",
			slog.Int("max_size", cap(q.items)),
			slog.Int("workers", q.workers))
		return
	}

	q.items = make(chan *WorkItem, maxSize)
	q.workers = workerCount
	q.started = true

	workerCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	for i := 0; i < workerCount; i++ {
		q.wg.Add(1)
		go q.worker(workerCtx, i)
	}
	q.log.Info("session queue configured",
		slog.Int("max_size", maxSize),
		slog.Int("workers", workerCount))
}

// Submit enqueues a streaming job without blocking. It returns the accepted
// WorkItem, or ErrQueueFull when the buffer has no free slot.
func (q *Queue) Submit(ctx context.Context, sessionID string, tp Transport) (*WorkItem, error) {
	q.mu.Lock()
	items := q.items
	started := q.started
	q.mu.Unlock()
	if !started {
		return nil, errors.New("session queue not configured")
	}

	item := &WorkItem{SessionID: sessionID, Transport: tp, done: make(chan error, 1)}
	select {
	case items <- item:
		if q.depth != nil {
			q.depth.Add(ctx, 1)
		}
		if q.submitted != nil {
			q.submitted.Add(ctx, 1)
		}
		return item, nil
	default:
		if q.rejected != nil {
			q.rejected.Add(ctx, 1)
		}
		q.log.Warn("session queue full", slog.String("session_id", sessionID))
		return nil, ErrQueueFull
	}
}

// Dispatch runs a session through the queue when the pool is configured, or
// inline on the caller's goroutine when it is not. Either way the terminal
// transport frame is sent before Dispatch signals completion on the
// returned channel.
func (q *Queue) Dispatch(ctx context.Context, sessionID string, tp Transport) (<-chan error, error) {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()

	if !started {
		done := make(chan error, 1)
		err := q.process(ctx, sessionID, tp)
		done <- err
		return done, nil
	}

	item, err := q.Submit(ctx, sessionID, tp)
	if err != nil {
		return nil, err
	}
	return item.Done(), nil
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	log := q.log.With(slog.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		case item, ok := <-q.items:
			if !ok {
				return
			}
			if q.depth != nil {
				q.depth.Add(ctx, -1)
			}
			if q.busy != nil {
				q.busy.Add(ctx, 1)
			}
			log.Debug("worker picked up session", slog.String("session_id", item.SessionID))
			err := q.process(ctx, item.SessionID, item.Transport)
			if q.busy != nil {
				q.busy.Add(ctx, -1)
			}
			item.done <- err
		}
	}
}

// process drives one session end to end and delivers the terminal frame.
// Transport failures while reporting the outcome are logged and swallowed;
// the client is already gone or broken and there is nothing left to tell it.
func (q *Queue) process(ctx context.Context, sessionID string, tp Transport) error {
	err := q.svc.StreamSession(ctx, sessionID, tp)
	switch {
	case err == nil:
		if sendErr := tp.SendEndOfStream(); sendErr != nil && !errors.Is(sendErr, ErrDisconnected) {
			q.log.Warn("failed to send end of stream",
				slog.String("session_id", sessionID),
				slogError(sendErr))
		}
	case errors.Is(err, ErrDisconnected):
		// Nothing to send.
	default:
		code, msg := classifyStreamError(err)
		if sendErr := tp.SendError(code, msg); sendErr != nil && !errors.Is(sendErr, ErrDisconnected) {
			q.log.Warn("failed to send stream error",
				slog.String("session_id", sessionID),
				slogError(sendErr))
		}
		if closeErr := tp.Close(1011, msg); closeErr != nil && !errors.Is(closeErr, ErrDisconnected) {
			q.log.Warn("failed to close transport",
				slog.String("session_id", sessionID),
				slogError(closeErr))
		}
	}
	return err
}

// classifyStreamError maps internal stream failures onto client-facing
// status codes.
func classifyStreamError(err error) (int, string) {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return 404, ErrSessionNotFound.Error()
	case errors.Is(err, ErrEmptyText):
		return 400, ErrEmptyText.Error()
	case errors.Is(err, ErrBackendUnavailable):
		return 503, ErrBackendUnavailable.Error()
	case errors.Is(err, ErrChunkTimeout):
		return 504, ErrChunkTimeout.Error()
	default:
		return 500, "synthesis failed"
	}
}

// Close stops the workers and waits for in-flight sessions to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	q.wg.Wait()
}
