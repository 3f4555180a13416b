// Package notifier provides async delivery of job lifecycle events with
// buffering and retry.
package notifier

import (
	"context"
	"errors"

	"c2d-service/pkg/cloudevent"
)

// Job lifecycle event types.
const (
	EventJobStarted   = "compute.job.started"
	EventJobCompleted = "compute.job.completed"
	EventJobFailed    = "compute.job.failed"
)

// ErrBufferFull is returned when the notifier's buffer is full and the event is dropped.
var ErrBufferFull = errors.New("notifier buffer full, event dropped")

// Notifier handles async delivery of lifecycle events to a callback URL.
type Notifier interface {
	// Publish queues an event for async delivery. Non-blocking.
	// Returns ErrBufferFull if the event cannot be queued.
	Publish(event *cloudevent.CloudEvent) error

	// Stats returns current notifier statistics.
	Stats() Stats

	// Close gracefully shuts down, attempting to deliver queued events.
	// The context deadline controls how long to wait for drain.
	Close(ctx context.Context) error
}

// Stats holds notifier statistics.
type Stats struct {
	QueueDepth   int   // current queue size
	Queued       int64 // total events queued
	Delivered    int64 // successful deliveries
	Failed       int64 // failed after retries
	Dropped      int64 // dropped due to full buffer or max requeues
	Requeued     int64 // requeued due to open circuit
	RetriesTotal int64 // total retry attempts
	BreakerOpen  bool  // whether the destination circuit is currently open
}
