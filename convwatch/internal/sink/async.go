package sink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/convwatch/convwatch/conversation"
)

// ErrQueueFull is returned by Async.SendUpdate when the queue is full and
// the update is dropped.
var ErrQueueFull = errors.New("sink: queue full, update dropped")

// ErrClosed is returned by Async.SendUpdate after Close.
var ErrClosed = errors.New("sink: closed")

// Async hands updates to a background goroutine that delivers them to the
// wrapped sink, so callers never wait on delivery or retries. The queue is
// bounded; when it is full the update is dropped. Deliveries use a context
// detached from the caller.
type Async struct {
	next   Sink
	queue  chan conversation.Update
	done   chan struct{}
	grace  time.Duration
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	closed  bool
	once     sync.Once
	closeErr error
	dropped  atomic.Int64
}

// AsyncOption configures an Async sink.
type AsyncOption func(*Async)

// WithAsyncGrace sets how long Close waits for queued updates before
// cancelling in-flight deliveries. Default: 2s.
func WithAsyncGrace(d time.Duration) AsyncOption {
	return func(a *Async) { a.grace = d }
}

// WithAsyncLogger sets a custom logger.
func WithAsyncLogger(l *slog.Logger) AsyncOption {
	return func(a *Async) { a.logger = l }
}

// NewAsync wraps next with a queue of size updates (default 256).
func NewAsync(next Sink, size int, opts ...AsyncOption) *Async {
	if size <= 0 {
		size = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Async{
		next:   next,
		queue:  make(chan conversation.Update, size),
		done:   make(chan struct{}),
		grace:  2 * time.Second,
		logger: slog.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(a)
	}
	go a.run()
	return a
}

// SendUpdate queues u and returns at once.
func (a *Async) SendUpdate(_ context.Context, u conversation.Update) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.queue <- u:
		return nil
	default:
		a.dropped.Add(1)
		a.logger.Warn("sink: queue full, update dropped", "conv_id", u.ConvID)
		return ErrQueueFull
	}
}

// Dropped returns the number of updates dropped on a full queue.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting updates, waits up to the grace period for the
// queue to drain, cancels what is still in flight, then closes the
// wrapped sink. Later calls return the first result.
func (a *Async) Close() error {
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()

		t := time.NewTimer(a.grace)
		defer t.Stop()
		select {
		case <-a.done:
		case <-t.C:
			a.cancel()
			<-a.done
		}
		a.cancel()
		a.closeErr = a.next.Close()
	})
	return a.closeErr
}

func (a *Async) run() {
	defer close(a.done)
	for u := range a.queue {
		if err := a.next.SendUpdate(a.ctx, u); err != nil {
			a.logger.Debug("sink: async delivery failed", "conv_id", u.ConvID, "error", err)
		}
	}
}
