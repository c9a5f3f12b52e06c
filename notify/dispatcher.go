package notify

import (
	"context"
	"sync"
	"time"

	auth "github.com/goliatone/go-courier-auth"
	goerrors "github.com/goliatone/go-errors"
)

const (
	defaultWorkers     = 2
	defaultQueueSize   = 256
	defaultSendTimeout = 10 * time.Second
)

var ErrQueueFull = goerrors.New("notification queue is full", goerrors.CategoryRateLimit).
	WithTextCode("NOTIFICATION_QUEUE_FULL")

var ErrDispatcherClosed = goerrors.New("notification dispatcher is closed", goerrors.CategoryOperation).
	WithTextCode("NOTIFICATION_DISPATCHER_CLOSED")

// Dispatcher queues notifications and delivers them from a fixed pool of
// workers. Send never waits for delivery.
type Dispatcher struct {
	next        auth.Notifier
	logger      auth.Logger
	workers     int
	sendTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan auth.Notification
	wg     sync.WaitGroup
}

type DispatcherOption func(*Dispatcher)

func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithQueueSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan auth.Notification, n)
		}
	}
}

func WithSendTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.sendTimeout = timeout
		}
	}
}

func WithDispatcherLogger(logger auth.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = loggerOr(logger)
	}
}

// NewDispatcher starts the workers right away, call Close to stop them
func NewDispatcher(next auth.Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		next:        next,
		logger:      nopLogger{},
		workers:     defaultWorkers,
		sendTimeout: defaultSendTimeout,
		queue:       make(chan auth.Notification, defaultQueueSize),
	}

	for _, opt := range opts {
		opt(d)
	}

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}

	return d
}

// Send enqueues n. A full queue drops the message.
func (d *Dispatcher) Send(_ context.Context, n auth.Notification) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- n:
		return nil
	default:
		return ErrQueueFull.Clone().WithMetadata(map[string]any{"kind": string(n.Kind)})
	}
}

// Close stops accepting messages and waits for the queue to drain or ctx
// to expire, whichever comes first
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "notification queue not drained")
	}
}

// Pending is the number of queued, not yet picked up, messages
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n auth.Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	if err := d.next.Send(ctx, n); err != nil {
		d.logger.Error("notification %s to %s failed: %v", n.Kind, n.Recipient, err)
		return
	}
	d.logger.Debug("notification %s delivered", n.Kind)
}
