package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"c2d-service/pkg/backoff"
	"c2d-service/pkg/circuitbreaker"
	"c2d-service/pkg/cloudevent"
)

// MemoryNotifier is an in-memory async lifecycle event notifier.
// Events are queued in a bounded channel and delivered by a worker pool
// to the single configured callback URL. If the buffer is full, events
// are dropped (logged + metric incremented).
type MemoryNotifier struct {
	queue   chan *queuedEvent
	sender  *cloudevent.Sender
	breaker *circuitbreaker.Breaker
	config  MemoryConfig
	logger  *slog.Logger
	metrics MetricsRecorder

	// Internal counters (for Stats())
	queued       atomic.Int64
	delivered    atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	requeued     atomic.Int64
	retriesTotal atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// queuedEvent pairs an event with its requeue count.
type queuedEvent struct {
	event    *cloudevent.CloudEvent
	requeues int
}

// MetricsRecorder is an optional interface for recording notifier metrics.
type MetricsRecorder interface {
	RecordNotifierDelivered(ctx context.Context, durationSeconds float64)
	RecordNotifierFailed(ctx context.Context)
	RecordNotifierDropped(ctx context.Context)
	RecordNotifierQueueSize(ctx context.Context, size int64)
}

// NewMemory creates a new in-memory notifier.
func NewMemory(cfg MemoryConfig, metrics MetricsRecorder) *MemoryNotifier {
	cfg = cfg.withDefaults()

	n := &MemoryNotifier{
		queue:  make(chan *queuedEvent, cfg.BufferSize),
		sender: cloudevent.NewSender(cfg.HTTPTimeout),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			Threshold: defaultBreakerThreshold,
			Cooldown:  defaultBreakerCooldown,
		}),
		config:   cfg,
		logger:   slog.With("component", "notifier"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	n.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go n.worker()
	}

	if metrics != nil {
		go n.reportQueueSize()
	}

	n.logger.Info("Notifier started", "workers", cfg.Workers, "buffer", cfg.BufferSize, "destination", cfg.CallbackURL)
	return n
}

// reportQueueSize periodically reports the queue size metric.
func (n *MemoryNotifier) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.shutdown:
			return
		case <-ticker.C:
			n.metrics.RecordNotifierQueueSize(context.Background(), int64(len(n.queue)))
		}
	}
}

// Publish queues an event for async delivery.
func (n *MemoryNotifier) Publish(event *cloudevent.CloudEvent) error {
	if n.closed.Load() {
		return fmt.Errorf("notifier is closed")
	}

	select {
	case n.queue <- &queuedEvent{event: event}:
		n.queued.Add(1)
		return nil
	default:
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifierDropped(context.Background())
		}
		n.logger.Warn("Event dropped, buffer full", "type", event.Type, "subject", event.Subject)
		return ErrBufferFull
	}
}

// Stats returns current notifier statistics.
func (n *MemoryNotifier) Stats() Stats {
	return Stats{
		QueueDepth:   len(n.queue),
		Queued:       n.queued.Load(),
		Delivered:    n.delivered.Load(),
		Failed:       n.failed.Load(),
		Dropped:      n.dropped.Load(),
		Requeued:     n.requeued.Load(),
		RetriesTotal: n.retriesTotal.Load(),
		BreakerOpen:  n.breaker.State() == circuitbreaker.Open,
	}
}

// Close gracefully shuts down the notifier.
func (n *MemoryNotifier) Close(ctx context.Context) error {
	if n.closed.Swap(true) {
		return nil // already closed
	}

	n.logger.Info("Notifier shutting down", "queued", len(n.queue))

	close(n.shutdown)

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Info("Notifier shutdown complete",
			"delivered", n.delivered.Load(),
			"failed", n.failed.Load(),
			"dropped", n.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		n.logger.Warn("Notifier shutdown timed out", "remaining", len(n.queue))
		return ctx.Err()
	}
}

// worker processes events from the queue.
func (n *MemoryNotifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.shutdown:
			// Drain remaining events before exiting
			n.drainQueue()
			return
		case qe := <-n.queue:
			n.deliver(qe)
		}
	}
}

// drainQueue delivers remaining events after shutdown signal.
func (n *MemoryNotifier) drainQueue() {
	for {
		select {
		case qe := <-n.queue:
			n.deliver(qe)
		default:
			return // queue empty
		}
	}
}

// deliver attempts to deliver an event with retry and circuit breaker.
func (n *MemoryNotifier) deliver(qe *queuedEvent) {
	if !n.breaker.Allow() {
		n.requeue(qe)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := n.sendWithRetry(ctx, qe.event); err != nil {
		n.breaker.RecordFailure()
		n.failed.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifierFailed(ctx)
		}
		n.logger.Warn("Delivery failed", "type", qe.event.Type, "subject", qe.event.Subject, "error", err)
		return
	}

	n.breaker.RecordSuccess()
	n.delivered.Add(1)
	if n.metrics != nil {
		n.metrics.RecordNotifierDelivered(ctx, time.Since(start).Seconds())
	}
}

// requeue puts an event back in the queue after a delay when the circuit is open.
func (n *MemoryNotifier) requeue(qe *queuedEvent) {
	if qe.requeues >= defaultMaxRequeues {
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifierDropped(context.Background())
		}
		n.logger.Warn("Event dropped, max requeues reached", "type", qe.event.Type, "requeues", qe.requeues)
		return
	}

	qe.requeues++
	n.requeued.Add(1)

	// Requeue after cooldown period so circuit has time to recover
	go func() {
		select {
		case <-n.shutdown:
			return
		case <-time.After(defaultBreakerCooldown):
		}

		select {
		case n.queue <- qe:
			n.logger.Debug("Event requeued", "type", qe.event.Type, "requeues", qe.requeues)
		case <-n.shutdown:
		default:
			// Buffer full, drop
			n.dropped.Add(1)
			if n.metrics != nil {
				n.metrics.RecordNotifierDropped(context.Background())
			}
			n.logger.Warn("Event dropped on requeue, buffer full", "type", qe.event.Type)
		}
	}()
}

func (n *MemoryNotifier) sendWithRetry(ctx context.Context, event *cloudevent.CloudEvent) error {
	var lastErr error
	for attempt := range defaultMaxRetries + 1 {
		if attempt > 0 {
			n.retriesTotal.Add(1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff.Exponential(attempt, defaultInitialBackoff, defaultMaxBackoff)):
			}
		}

		lastErr = n.sender.Send(ctx, n.config.CallbackURL, event, n.config.SigningKey)
		if lastErr == nil {
			return nil
		}
		if cloudevent.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// Verify MemoryNotifier implements Notifier
var _ Notifier = (*MemoryNotifier)(nil)
