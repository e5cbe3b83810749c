package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/it-helpdesk/internal/domain"
	"github.com/spec-kit/it-helpdesk/internal/functions"
	"github.com/spec-kit/it-helpdesk/internal/observability"
)

var (
	// ErrQueueFull is returned when the queue cannot take another message.
	ErrQueueFull = errors.New("notification queue full")
	// ErrStopped is returned after Stop.
	ErrStopped = errors.New("notification worker stopped")
)

// Report describes a notification that could not be delivered.
type Report struct {
	TicketID string
	Kind     domain.NotificationKind
	To       string
	Err      error
	At       time.Time
}

// NotificationWorker sends queued notification messages on a fixed pool of
// goroutines. Enqueue never blocks and callers never wait for delivery.
type NotificationWorker struct {
	notifier functions.Notifier
	logger   *zap.Logger
	metrics  *observability.Metrics
	workers  int
	timeout  time.Duration

	jobs    chan domain.NotificationMessage
	reports chan Report

	mu      sync.RWMutex
	stopped bool
	started bool
	wg      sync.WaitGroup
}

// Options tunes the worker pool.
type Options struct {
	Workers   int
	QueueSize int
	// SendTimeout bounds one delivery attempt.
	SendTimeout time.Duration
}

// NewNotificationWorker builds a stopped worker.
func NewNotificationWorker(notifier functions.Notifier, logger *zap.Logger, metrics *observability.Metrics, opts Options) *NotificationWorker {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	return &NotificationWorker{
		notifier: notifier,
		logger:   logger,
		metrics:  metrics,
		workers:  opts.Workers,
		timeout:  opts.SendTimeout,
		jobs:     make(chan domain.NotificationMessage, opts.QueueSize),
		reports:  make(chan Report, opts.QueueSize),
	}
}

// Start launches the pool. Calling Start twice is a no-op.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started || w.stopped {
		return
	}
	w.started = true
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

// Enqueue queues msg for delivery.
func (w *NotificationWorker) Enqueue(msg domain.NotificationMessage) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.stopped {
		return ErrStopped
	}
	select {
	case w.jobs <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Reports delivers a Report for every failed send. Reports that nobody reads
// are dropped once the buffer is full; the failure is still logged.
func (w *NotificationWorker) Reports() <-chan Report {
	return w.reports
}

// Stop drains the queue and waits for in-flight sends.
func (w *NotificationWorker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	close(w.jobs)
	w.mu.Unlock()

	w.wg.Wait()
	close(w.reports)
}

func (w *NotificationWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for msg := range w.jobs {
		w.deliver(ctx, msg)
	}
}

func (w *NotificationWorker) deliver(ctx context.Context, msg domain.NotificationMessage) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()

	resp, err := w.notifier.SendNotification(sendCtx, msg)
	if err == nil && !resp.Success {
		err = &functions.Error{Function: "send-notification-email", Message: resp.Error}
	}
	if err == nil {
		w.logger.Debug("notification sent",
			zap.String("ticket_id", msg.TicketID),
			zap.String("type", string(msg.Type)))
		return
	}

	w.logger.Warn("notification failed",
		zap.String("ticket_id", msg.TicketID),
		zap.String("type", string(msg.Type)),
		zap.String("to", msg.To),
		zap.Error(err))
	w.metrics.RecordSoftFailure("notification")

	report := Report{TicketID: msg.TicketID, Kind: msg.Type, To: msg.To, Err: err, At: time.Now()}
	select {
	case w.reports <- report:
	default:
	}
}
