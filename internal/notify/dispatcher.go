package notify

import (
	"context"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"
)

// Sink delivers an event to one channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

type DispatcherOptions struct {
	QueueSize  int
	Workers    int
	Attempts   uint
	RetryDelay time.Duration
}

func (o *DispatcherOptions) withDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.Attempts == 0 {
		o.Attempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
}

// Dispatcher fans events out to sinks on a pool of workers. Emit never blocks:
// when the queue is full the event is dropped and logged.
type Dispatcher struct {
	sinks  []Sink
	opts   DispatcherOptions
	logger *zap.Logger

	queue  chan Event
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher создаёт диспетчер уведомлений
func NewDispatcher(sinks []Sink, opts DispatcherOptions, logger *zap.Logger) *Dispatcher {
	opts.withDefaults()
	return &Dispatcher{
		sinks:  sinks,
		opts:   opts,
		logger: logger,
		queue:  make(chan Event, opts.QueueSize),
	}
}

// Start запускает воркеры доставки
func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting notification dispatcher",
		zap.Int("workers", d.opts.Workers),
		zap.Int("queue_size", d.opts.QueueSize),
		zap.Int("sinks", len(d.sinks)))

	for i := 0; i < d.opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
}

// Stop closes the queue and waits until queued events are delivered
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("Notification dispatcher stopped")
}

func (d *Dispatcher) Emit(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("Dispatcher stopped, dropping notification",
			zap.String("event_id", ev.ID.String()),
			zap.String("type", string(ev.Type)))
		return
	}

	select {
	case d.queue <- ev:
	default:
		d.logger.Error("Notification queue is full, dropping event",
			zap.String("event_id", ev.ID.String()),
			zap.String("type", string(ev.Type)),
			zap.Int64("session_id", ev.SessionID),
			zap.Int64("recipient_id", ev.RecipientID))
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for ev := range d.queue {
		d.deliver(ctx, ev)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	for _, sink := range d.sinks {
		err := retry.Do(func() error {
			return sink.Deliver(ctx, ev)
		},
			retry.Context(ctx),
			retry.Attempts(d.opts.Attempts),
			retry.Delay(d.opts.RetryDelay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		)
		if err != nil {
			d.logger.Error("Failed to deliver notification",
				zap.String("sink", sink.Name()),
				zap.String("event_id", ev.ID.String()),
				zap.String("type", string(ev.Type)),
				zap.Int64("recipient_id", ev.RecipientID),
				zap.Error(err))
		}
	}
}
